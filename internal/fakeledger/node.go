// Package fakeledger implements ledger.Node in memory, for running scenarios and
// suites without a real node.
//
// It models only what the crypto suites observe: fee-charging account creation and
// transfers, implicit creation of hollow and key-aliased accounts with their child
// records, hollow account finalization and staking-period records.
package fakeledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hapisim/hapisim/keys"
	"github.com/hapisim/hapisim/ledger"
	"gopkg.in/inconshreveable/log15.v2"
)

// Defaults of Config.
const (
	DefaultFee             int64 = 100_000
	DefaultOperatorBalance int64 = 5_000_000_000 * ledger.OneHbar
	DefaultFirstAccount    int64 = 1001

	minAutoRenew int64 = 2_592_000
	maxAutoRenew int64 = 8_000_001
)

// DefaultOperator is the account paying for transactions without an explicit payer.
var DefaultOperator = ledger.NewAccountID(2)

// Config configures a Node. Zero fields take the defaults above.
type Config struct {
	Operator        ledger.AccountID
	OperatorKey     *keys.Key
	OperatorBalance int64
	Fee             int64
	FirstAccount    int64

	// StakingPeriodTxns, when non-zero, makes every n-th transaction the first of a
	// new staking period. Its record then starts with a staking-period child record.
	StakingPeriodTxns int

	// Start is the consensus time of the first transaction.
	Start time.Time
}

func (cfg *Config) withDefaults() Config {
	c := *cfg
	if c.Operator.IsZero() {
		c.Operator = DefaultOperator
	}
	if c.OperatorBalance == 0 {
		c.OperatorBalance = DefaultOperatorBalance
	}
	if c.Fee == 0 {
		c.Fee = DefaultFee
	}
	if c.FirstAccount == 0 {
		c.FirstAccount = DefaultFirstAccount
	}
	if c.Start.IsZero() {
		c.Start = time.Unix(1700000000, 0)
	}
	return c
}

var _ = ledger.Node(&Node{})

// Node is an in-memory ledger.
type Node struct {
	cfg Config
	log log15.Logger

	mu       sync.Mutex
	accounts map[ledger.AccountID]*account
	byEVM    map[common.Address]ledger.AccountID
	byKey    map[string]ledger.AccountID
	records  map[ledger.TxnID]*ledger.Record
	nextNum  int64
	txnCount int64
}

type account struct {
	id                  ledger.AccountID
	key                 []byte
	alias               []byte
	evm                 []byte
	balance             int64
	autoRenew           int64
	receiverSigRequired bool
	memo                string
}

func (a *account) hollow() bool {
	return len(a.key) == 0
}

func (a *account) info() *ledger.AccountInfo {
	return &ledger.AccountInfo{
		AccountID:           a.id,
		Key:                 clone(a.key),
		Alias:               clone(a.alias),
		EvmAddress:          clone(a.evm),
		Balance:             a.balance,
		AutoRenewPeriod:     a.autoRenew,
		ReceiverSigRequired: a.receiverSigRequired,
		Memo:                a.memo,
	}
}

// New creates a node holding only the funded operator account.
func New(cfg *Config) *Node {
	if cfg == nil {
		cfg = new(Config)
	}
	c := cfg.withDefaults()
	n := &Node{
		cfg:      c,
		log:      log15.New("node", "fake"),
		accounts: make(map[ledger.AccountID]*account),
		byEVM:    make(map[common.Address]ledger.AccountID),
		byKey:    make(map[string]ledger.AccountID),
		records:  make(map[ledger.TxnID]*ledger.Record),
		nextNum:  c.FirstAccount,
	}
	op := &account{
		id:        c.Operator,
		balance:   c.OperatorBalance,
		autoRenew: ledger.ThreeMonthsInSeconds,
	}
	if c.OperatorKey != nil {
		op.key = c.OperatorKey.Marshal()
	} else {
		// The operator is never hollow. Its key is unused unless configured.
		op.key = keys.Key{Type: keys.Ed25519, Bytes: make([]byte, 32)}.Marshal()
	}
	n.accounts[op.id] = op
	return n
}

// Operator returns the default payer account.
func (n *Node) Operator() ledger.AccountID {
	return n.cfg.Operator
}

// CreateAccount implements ledger.Node.
func (n *Node) CreateAccount(ctx context.Context, req ledger.CreateAccountRequest) (*ledger.Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	payer, err := n.precheckPayer(req.Payer)
	if err != nil {
		return nil, err
	}
	if len(req.Key) == 0 {
		return nil, &ledger.PrecheckError{Status: ledger.StatusKeyRequired}
	}
	if _, err := keys.ParseAlias(req.Key); err != nil {
		return nil, &ledger.PrecheckError{Status: ledger.StatusBadEncoding}
	}
	if req.Balance < 0 {
		return nil, &ledger.PrecheckError{Status: ledger.StatusInvalidInitialBalance}
	}
	autoRenew := req.AutoRenewPeriod
	if autoRenew == 0 {
		autoRenew = ledger.ThreeMonthsInSeconds
	}
	if autoRenew < minAutoRenew || autoRenew > maxAutoRenew {
		return nil, &ledger.PrecheckError{Status: ledger.StatusAutoRenewDurationNotInRng}
	}
	if len(req.Alias) > 0 {
		if _, taken := n.lookupAlias(req.Alias); taken {
			return nil, &ledger.PrecheckError{Status: ledger.StatusInvalidAliasKey}
		}
		if len(req.Alias) != common.AddressLength {
			if _, err := keys.ParseAlias(req.Alias); err != nil {
				return nil, &ledger.PrecheckError{Status: ledger.StatusInvalidAliasKey}
			}
		}
	}
	if payer.balance < n.cfg.Fee+req.Balance {
		return nil, &ledger.PrecheckError{Status: ledger.StatusInsufficientPayerBalance}
	}

	rec := n.newRecord(payer, req.Memo)
	payer.balance -= req.Balance
	acct := n.addAccount(req.Key, req.Alias, req.Balance, req.Memo)
	acct.autoRenew = autoRenew
	acct.receiverSigRequired = req.ReceiverSigRequired
	rec.Receipt.Status = ledger.StatusSuccess
	rec.Receipt.AccountID = acct.id
	n.log.Debug("account created", "id", acct.id, "balance", req.Balance, "txn", rec.TxnID)
	return n.receipt(rec), nil
}

// Transfer implements ledger.Node. The receiver may be a yet unknown alias: an EVM
// address creates a hollow account, a serialized key creates an account with that
// key.
func (n *Node) Transfer(ctx context.Context, req ledger.TransferRequest) (*ledger.Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	payer, err := n.precheckPayer(req.Payer)
	if err != nil {
		return nil, err
	}
	if payer.balance < n.cfg.Fee {
		return nil, &ledger.PrecheckError{Status: ledger.StatusInsufficientPayerBalance}
	}
	rec := n.newRecord(payer, req.Memo)
	rec.Receipt.Status = n.transfer(rec, req)
	n.log.Debug("transfer", "from", req.From, "to", req.To, "amount", req.Amount, "txn", rec.TxnID, "status", rec.Receipt.Status)
	return n.receipt(rec), nil
}

func (n *Node) transfer(rec *ledger.Record, req ledger.TransferRequest) ledger.Status {
	signers, ok := verifySigs(req)
	if !ok {
		return ledger.StatusInvalidSignature
	}
	if req.Amount <= 0 {
		return ledger.StatusInvalidAccountAmounts
	}
	from, ok := n.resolve(req.From)
	if !ok {
		return ledger.StatusInvalidAccountID
	}

	// Signatures by ECDSA keys finalize the hollow accounts at their addresses.
	for _, k := range signers {
		if addr, err := k.EVMAddress(); err == nil {
			if id, ok := n.byEVM[addr]; ok && n.accounts[id].hollow() {
				n.accounts[id].key = k.Marshal()
				n.log.Debug("hollow account finalized", "id", id, "key", k)
			}
		}
	}
	if from.hollow() {
		return ledger.StatusInvalidSignature
	}

	to, ok := n.resolve(req.To)
	var create func() *account
	switch {
	case ok:
		if to == from {
			return ledger.StatusAccountRepeatedInList
		}
		if to.receiverSigRequired && !signedBy(signers, to.key) {
			return ledger.StatusInvalidSignature
		}
	case !req.To.IsAlias():
		return ledger.StatusInvalidAccountID
	case len(req.To.Alias) == common.AddressLength:
		create = func() *account {
			return n.addAccount(nil, req.To.Alias, 0, ledger.LazyMemo)
		}
	default:
		if _, err := keys.ParseAlias(req.To.Alias); err != nil {
			return ledger.StatusInvalidAliasKey
		}
		create = func() *account {
			return n.addAccount(req.To.Alias, req.To.Alias, 0, ledger.AutoMemo)
		}
	}
	if from.balance < req.Amount {
		return ledger.StatusInsufficientAccountBal
	}
	if create != nil {
		to = create()
		child := childTxnID(rec.TxnID, len(rec.Children)+1)
		rec.Children = append(rec.Children, ledger.Record{
			TxnID:      child,
			Receipt:    ledger.Receipt{TxnID: child, Status: ledger.StatusSuccess, AccountID: to.id},
			Memo:       to.memo,
			Alias:      clone(to.alias),
			EvmAddress: clone(to.evm),
		})
	}
	from.balance -= req.Amount
	to.balance += req.Amount
	return ledger.StatusSuccess
}

// GetAccountInfo implements ledger.Node.
func (n *Node) GetAccountInfo(ctx context.Context, ref ledger.AccountRef) (*ledger.AccountInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	acct, ok := n.resolve(ref)
	if !ok {
		return nil, &ledger.PrecheckError{Status: ledger.StatusInvalidAccountID}
	}
	return acct.info(), nil
}

// GetBalance implements ledger.Node.
func (n *Node) GetBalance(ctx context.Context, ref ledger.AccountRef) (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	acct, ok := n.resolve(ref)
	if !ok {
		return 0, &ledger.PrecheckError{Status: ledger.StatusInvalidAccountID}
	}
	return acct.balance, nil
}

// GetReceipt implements ledger.Node.
func (n *Node) GetReceipt(ctx context.Context, id ledger.TxnID) (*ledger.Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	rec, ok := n.records[id]
	if !ok {
		return nil, &ledger.PrecheckError{Status: ledger.StatusReceiptNotFound}
	}
	return n.receipt(rec), nil
}

// GetTxnRecord implements ledger.Node.
func (n *Node) GetTxnRecord(ctx context.Context, id ledger.TxnID, includeChildren bool) (*ledger.Record, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	rec, ok := n.records[id]
	if !ok {
		return nil, &ledger.PrecheckError{Status: ledger.StatusRecordNotFound}
	}
	cpy := *rec
	cpy.Children = nil
	if includeChildren {
		cpy.Children = append([]ledger.Record(nil), rec.Children...)
	}
	return &cpy, nil
}

func (n *Node) precheckPayer(id ledger.AccountID) (*account, error) {
	if id.IsZero() {
		id = n.cfg.Operator
	}
	payer, ok := n.accounts[id]
	if !ok {
		return nil, &ledger.PrecheckError{Status: ledger.StatusPayerAccountNotFound}
	}
	return payer, nil
}

// newRecord starts the record of a transaction that passed precheck and charges
// its fee.
func (n *Node) newRecord(payer *account, memo string) *ledger.Record {
	n.txnCount++
	ts := n.cfg.Start.Add(time.Duration(n.txnCount))
	id := ledger.TxnID(fmt.Sprintf("%v@%d.%09d", payer.id, ts.Unix(), ts.Nanosecond()))
	rec := &ledger.Record{
		TxnID:          id,
		Receipt:        ledger.Receipt{TxnID: id},
		Memo:           memo,
		TransactionFee: n.cfg.Fee,
	}
	payer.balance -= n.cfg.Fee
	if p := n.cfg.StakingPeriodTxns; p > 0 && n.txnCount%int64(p) == 0 {
		rec.Children = append(rec.Children, ledger.Record{
			TxnID:   childTxnID(id, 1),
			Receipt: ledger.Receipt{TxnID: childTxnID(id, 1), Status: ledger.StatusSuccess},
			Memo:    ledger.StakingRecordMemo,
		})
	}
	n.records[id] = rec
	return rec
}

func (n *Node) receipt(rec *ledger.Record) *ledger.Receipt {
	r := rec.Receipt
	return &r
}

func (n *Node) addAccount(key, alias []byte, balance int64, memo string) *account {
	acct := &account{
		id:        ledger.NewAccountID(n.nextNum),
		key:       clone(key),
		alias:     clone(alias),
		balance:   balance,
		autoRenew: ledger.ThreeMonthsInSeconds,
		memo:      memo,
	}
	n.nextNum++
	switch {
	case len(alias) == common.AddressLength:
		acct.evm = clone(alias)
		n.byEVM[common.BytesToAddress(alias)] = acct.id
	case len(alias) > 0:
		n.byKey[string(alias)] = acct.id
		if k, err := keys.ParseAlias(alias); err == nil {
			if addr, err := k.EVMAddress(); err == nil {
				acct.evm = addr.Bytes()
				n.byEVM[addr] = acct.id
			}
		}
	}
	n.accounts[acct.id] = acct
	return acct
}

func (n *Node) resolve(ref ledger.AccountRef) (*account, bool) {
	id := ref.ID
	if ref.IsAlias() {
		var ok bool
		if id, ok = n.lookupAlias(ref.Alias); !ok {
			return nil, false
		}
	}
	acct, ok := n.accounts[id]
	return acct, ok
}

func (n *Node) lookupAlias(alias []byte) (ledger.AccountID, bool) {
	if len(alias) == common.AddressLength {
		id, ok := n.byEVM[common.BytesToAddress(alias)]
		return id, ok
	}
	if id, ok := n.byKey[string(alias)]; ok {
		return id, true
	}
	// An ECDSA key alias also names the account at its EVM address.
	if k, err := keys.ParseAlias(alias); err == nil {
		if addr, err := k.EVMAddress(); err == nil {
			id, ok := n.byEVM[addr]
			return id, ok
		}
	}
	return ledger.AccountID{}, false
}

// verifySigs checks all signatures of req and returns the signing keys.
func verifySigs(req ledger.TransferRequest) ([]keys.Key, bool) {
	if len(req.Sigs) == 0 {
		return nil, true
	}
	hash := req.SigningHash()
	signers := make([]keys.Key, 0, len(req.Sigs))
	for _, sig := range req.Sigs {
		k, err := keys.ParseAlias(sig.Key)
		if err != nil || !keys.Verify(k, hash.Bytes(), sig.Signature) {
			return nil, false
		}
		signers = append(signers, k)
	}
	return signers, true
}

func signedBy(signers []keys.Key, envelope []byte) bool {
	for _, k := range signers {
		if string(k.Marshal()) == string(envelope) {
			return true
		}
	}
	return false
}

func childTxnID(parent ledger.TxnID, nonce int) ledger.TxnID {
	return ledger.TxnID(fmt.Sprintf("%s/%d", parent, nonce))
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}
