package bdd

import (
	"fmt"

	"github.com/hapisim/hapisim/keys"
	"github.com/hapisim/hapisim/ledger"
)

// Step is one operation of a scenario. The set of steps is closed; Env.Exec
// interprets each variant.
type Step interface {
	stepName() string
}

// Party names the account on one side of a transaction: either a registry name
// or a raw alias.
type Party struct {
	Name  string
	Alias []byte
}

// Named refers to the account or key registered as name. When no account id is
// registered but a key is, the key's envelope is used as alias, so transfers to a
// fresh key name auto-create the account.
func Named(name string) Party { return Party{Name: name} }

// AliasOf refers to an account by raw alias bytes.
func AliasOf(alias []byte) Party { return Party{Alias: alias} }

func (p Party) String() string {
	if p.Alias != nil {
		return fmt.Sprintf("alias %x", p.Alias)
	}
	return p.Name
}

// NewKey generates a key and stores it under Name.
type NewKey struct {
	Name  string
	Shape keys.Type
}

// CreateAccount provisions an account and saves its id under Name. When Key is
// empty a new ed25519 key is generated and saved under Name as well.
type CreateAccount struct {
	Name                string
	Key                 string
	Balance             int64
	Memo                string
	ReceiverSigRequired bool
	Alias               []byte
	Payer               string

	Precheck ledger.Status // expected precheck failure, if any
	Status   ledger.Status // expected status, SUCCESS when empty
	Via      string        // saves the transaction id under this name
}

// Transfer moves tinybars From -> To. SignedBy names additional keys that sign the
// transaction.
type Transfer struct {
	From     Party
	To       Party
	Amount   int64
	Payer    string
	SignedBy []string
	Memo     string

	Precheck ledger.Status
	Status   ledger.Status
	Via      string
}

// GetAccountInfo queries an account and checks it against Expect.
type GetAccountInfo struct {
	Account  Party
	Expect   *AccountExpectation
	Precheck ledger.Status
	Expose   func(*ledger.AccountInfo)
}

// GetBalance checks the balance of an account.
type GetBalance struct {
	Account Party
	Want    int64
}

// GetReceipt fetches the receipt of a named transaction and checks its status.
type GetReceipt struct {
	Txn    string
	Status ledger.Status
}

// GetTxnRecord fetches the record of a named transaction.
type GetTxnRecord struct {
	Txn             string
	IncludeChildren bool
	Expect          *RecordExpectation
	Expose          func(*ledger.Record)
}

// Func runs custom logic against the run environment.
type Func struct {
	Name string
	Fn   func(env *Env) error
}

// Sequence groups steps that run in order as one step.
type Sequence struct {
	Name  string
	Steps []Step
}

func (s NewKey) stepName() string         { return "newKey " + s.Name }
func (s CreateAccount) stepName() string  { return "createAccount " + s.Name }
func (s Transfer) stepName() string       { return fmt.Sprintf("transfer %s -> %s", s.From, s.To) }
func (s GetAccountInfo) stepName() string { return "getAccountInfo " + s.Account.String() }
func (s GetBalance) stepName() string     { return "getBalance " + s.Account.String() }
func (s GetReceipt) stepName() string     { return "getReceipt " + s.Txn }
func (s GetTxnRecord) stepName() string   { return "getTxnRecord " + s.Txn }
func (s Func) stepName() string           { return s.Name }
func (s Sequence) stepName() string       { return s.Name }
