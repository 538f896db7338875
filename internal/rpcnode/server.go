// Package rpcnode carries the ledger.Node API over JSON-RPC. The server side exposes
// any ledger.Node as the "crypto" namespace, the client side implements ledger.Node
// on top of a connection to such a server.
package rpcnode

import (
	"context"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/hapisim/hapisim/ledger"
)

// Namespace is the JSON-RPC namespace of the node API.
const Namespace = "crypto"

// NewServer creates an RPC server serving node.
func NewServer(node ledger.Node) (*rpc.Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName(Namespace, &API{node: node}); err != nil {
		return nil, err
	}
	return srv, nil
}

// API is the RPC receiver of the crypto namespace.
type API struct {
	node ledger.Node
}

func (api *API) CreateAccount(ctx context.Context, req ledger.CreateAccountRequest) (*ledger.Receipt, error) {
	return api.node.CreateAccount(ctx, req)
}

func (api *API) Transfer(ctx context.Context, req ledger.TransferRequest) (*ledger.Receipt, error) {
	return api.node.Transfer(ctx, req)
}

func (api *API) GetAccountInfo(ctx context.Context, ref ledger.AccountRef) (*ledger.AccountInfo, error) {
	return api.node.GetAccountInfo(ctx, ref)
}

func (api *API) GetBalance(ctx context.Context, ref ledger.AccountRef) (int64, error) {
	return api.node.GetBalance(ctx, ref)
}

func (api *API) GetReceipt(ctx context.Context, id ledger.TxnID) (*ledger.Receipt, error) {
	return api.node.GetReceipt(ctx, id)
}

func (api *API) GetTxnRecord(ctx context.Context, id ledger.TxnID, includeChildren bool) (*ledger.Record, error) {
	return api.node.GetTxnRecord(ctx, id, includeChildren)
}
