package rpcnode

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/hapisim/hapisim/ledger"
)

var _ = ledger.Node(&Client{})

// Client is a ledger.Node backed by a JSON-RPC connection.
type Client struct {
	c     *rpc.Client
	payer ledger.AccountID
}

// Dial connects to the node API at endpoint (http, ws or ipc).
func Dial(ctx context.Context, endpoint string) (*Client, error) {
	c, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return NewClient(c), nil
}

// NewClient wraps an existing RPC client.
func NewClient(c *rpc.Client) *Client {
	return &Client{c: c}
}

// SetDefaultPayer sets the payer of transactions that do not name one.
func (c *Client) SetDefaultPayer(id ledger.AccountID) {
	c.payer = id
}

// Close closes the connection.
func (c *Client) Close() {
	c.c.Close()
}

func (c *Client) CreateAccount(ctx context.Context, req ledger.CreateAccountRequest) (*ledger.Receipt, error) {
	if req.Payer.IsZero() {
		req.Payer = c.payer
	}
	var rcpt ledger.Receipt
	if err := c.call(ctx, &rcpt, "createAccount", req); err != nil {
		return nil, err
	}
	return &rcpt, nil
}

func (c *Client) Transfer(ctx context.Context, req ledger.TransferRequest) (*ledger.Receipt, error) {
	// Signatures cover the payer, so it can't be filled in here once signed.
	if req.Payer.IsZero() && len(req.Sigs) == 0 {
		req.Payer = c.payer
	}
	var rcpt ledger.Receipt
	if err := c.call(ctx, &rcpt, "transfer", req); err != nil {
		return nil, err
	}
	return &rcpt, nil
}

func (c *Client) GetAccountInfo(ctx context.Context, ref ledger.AccountRef) (*ledger.AccountInfo, error) {
	var info ledger.AccountInfo
	if err := c.call(ctx, &info, "getAccountInfo", ref); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) GetBalance(ctx context.Context, ref ledger.AccountRef) (int64, error) {
	var balance int64
	err := c.call(ctx, &balance, "getBalance", ref)
	return balance, err
}

func (c *Client) GetReceipt(ctx context.Context, id ledger.TxnID) (*ledger.Receipt, error) {
	var rcpt ledger.Receipt
	if err := c.call(ctx, &rcpt, "getReceipt", id); err != nil {
		return nil, err
	}
	return &rcpt, nil
}

func (c *Client) GetTxnRecord(ctx context.Context, id ledger.TxnID, includeChildren bool) (*ledger.Record, error) {
	var rec ledger.Record
	if err := c.call(ctx, &rec, "getTxnRecord", id, includeChildren); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	err := c.c.CallContext(ctx, result, Namespace+"_"+method, args...)
	return convertError(err)
}

// convertError turns precheck failures sent by the server back into
// *ledger.PrecheckError.
func convertError(err error) error {
	var rpcErr rpc.Error
	if err == nil || !errors.As(err, &rpcErr) || rpcErr.ErrorCode() != ledger.PrecheckErrorCode {
		return err
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if status, ok := dataErr.ErrorData().(string); ok {
			return &ledger.PrecheckError{Status: ledger.Status(status)}
		}
	}
	return err
}
