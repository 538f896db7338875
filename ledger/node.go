package ledger

import "context"

// Node is the public transaction and query API of the ledger node under test.
//
// Transactions that reach consensus return a receipt, whatever its status. A
// transaction or query rejected before consensus fails with *PrecheckError. Any
// other error is a transport failure.
type Node interface {
	CreateAccount(ctx context.Context, req CreateAccountRequest) (*Receipt, error)
	Transfer(ctx context.Context, req TransferRequest) (*Receipt, error)

	GetAccountInfo(ctx context.Context, ref AccountRef) (*AccountInfo, error)
	GetBalance(ctx context.Context, ref AccountRef) (int64, error)
	GetReceipt(ctx context.Context, id TxnID) (*Receipt, error)
	GetTxnRecord(ctx context.Context, id TxnID, includeChildren bool) (*Record, error)
}
