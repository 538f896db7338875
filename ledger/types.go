// Package ledger defines the types exchanged with a ledger node through its public
// transaction and query API, and the Node interface that test code drives.
package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Amounts are denominated in tinybars.
const (
	OneHbar         int64 = 100_000_000
	OneHundredHbars int64 = 100 * OneHbar
)

// ThreeMonthsInSeconds is the default auto-renew period of new accounts.
const ThreeMonthsInSeconds int64 = 7_776_000

// Memos attached by the node to implicitly created accounts and to
// records it generates on its own.
const (
	LazyMemo          = "lazy-created account"
	AutoMemo          = "auto-created account"
	StakingRecordMemo = "End of staking period calculation record"
)

// AccountID identifies an account on the ledger.
type AccountID struct {
	Shard int64
	Realm int64
	Num   int64
}

// NewAccountID returns the id 0.0.num.
func NewAccountID(num int64) AccountID {
	return AccountID{Num: num}
}

// ParseAccountID parses ids of the form shard.realm.num.
func ParseAccountID(s string) (AccountID, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return AccountID{}, fmt.Errorf("invalid account id %q", s)
	}
	var nums [3]int64
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return AccountID{}, fmt.Errorf("invalid account id %q", s)
		}
		nums[i] = n
	}
	return AccountID{Shard: nums[0], Realm: nums[1], Num: nums[2]}, nil
}

// IsZero reports whether the id is unset.
func (id AccountID) IsZero() bool {
	return id == AccountID{}
}

func (id AccountID) String() string {
	return fmt.Sprintf("%d.%d.%d", id.Shard, id.Realm, id.Num)
}

// MarshalText implements encoding.TextMarshaler.
func (id AccountID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *AccountID) UnmarshalText(input []byte) error {
	if len(input) == 0 {
		*id = AccountID{}
		return nil
	}
	v, err := ParseAccountID(string(input))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// TxnID identifies a submitted transaction, e.g. "0.0.2@1700000000.000000001".
type TxnID string

// AccountRef addresses an account either by its ledger id or by an alias. An alias
// is a 20-byte EVM address or a serialized public key.
type AccountRef struct {
	ID    AccountID     `json:"id"`
	Alias hexutil.Bytes `json:"alias,omitempty"`
}

// ByID references an account by id.
func ByID(id AccountID) AccountRef {
	return AccountRef{ID: id}
}

// ByAlias references an account by alias.
func ByAlias(alias []byte) AccountRef {
	return AccountRef{Alias: alias}
}

// IsAlias reports whether the reference uses an alias.
func (r AccountRef) IsAlias() bool {
	return len(r.Alias) > 0
}

func (r AccountRef) String() string {
	if r.IsAlias() {
		return r.Alias.String()
	}
	return r.ID.String()
}

// CreateAccountRequest provisions a new account. A zero Payer means the node's
// default payer. A zero AutoRenewPeriod means the node default.
type CreateAccountRequest struct {
	Payer               AccountID     `json:"payer"`
	Key                 hexutil.Bytes `json:"key,omitempty"`
	Alias               hexutil.Bytes `json:"alias,omitempty"`
	Balance             int64         `json:"balance"`
	Memo                string        `json:"memo,omitempty"`
	ReceiverSigRequired bool          `json:"receiverSigRequired"`
	AutoRenewPeriod     int64         `json:"autoRenewPeriod,omitempty"`
}

// TransferRequest moves tinybars between two accounts. Sigs holds signatures over
// SigningHash by keys other than the payer's.
type TransferRequest struct {
	Payer  AccountID  `json:"payer"`
	From   AccountRef `json:"from"`
	To     AccountRef `json:"to"`
	Amount int64      `json:"amount"`
	Memo   string     `json:"memo,omitempty"`
	Sigs   []SigPair  `json:"sigs,omitempty"`
}

// SigningHash is the digest signers sign: keccak256 of the JSON encoding of the
// request without its signatures.
func (r TransferRequest) SigningHash() common.Hash {
	r.Sigs = nil
	enc, err := json.Marshal(r)
	if err != nil {
		panic(err)
	}
	return crypto.Keccak256Hash(enc)
}

// SigPair is a signature together with the serialized key envelope that made it.
type SigPair struct {
	Key       hexutil.Bytes `json:"key"`
	Signature hexutil.Bytes `json:"signature"`
}

// Receipt is the consensus outcome of a transaction.
type Receipt struct {
	TxnID     TxnID     `json:"txnId"`
	Status    Status    `json:"status"`
	AccountID AccountID `json:"accountId"`
}

// Record is the full consensus record of a transaction. Children holds the records
// of side-effect transactions triggered by this one, such as implicit account
// creations. Children is only populated when requested.
type Record struct {
	TxnID          TxnID         `json:"txnId"`
	Receipt        Receipt       `json:"receipt"`
	Memo           string        `json:"memo,omitempty"`
	TransactionFee int64         `json:"transactionFee"`
	Alias          hexutil.Bytes `json:"alias,omitempty"`
	EvmAddress     hexutil.Bytes `json:"evmAddress,omitempty"`
	Children       []Record      `json:"children,omitempty"`
}

// IsStakingRecord reports whether r is a staking-period record the node attaches
// to the first transaction of a new staking period.
func (r *Record) IsStakingRecord() bool {
	return strings.HasPrefix(r.Memo, StakingRecordMemo)
}

// FirstNonStakingChild returns the first child record that is not a staking-period
// record.
func (r *Record) FirstNonStakingChild() (*Record, bool) {
	for i := range r.Children {
		if !r.Children[i].IsStakingRecord() {
			return &r.Children[i], true
		}
	}
	return nil, false
}

// NonStakingChildren returns the number of child records that are not staking records.
func (r *Record) NonStakingChildren() int {
	n := 0
	for i := range r.Children {
		if !r.Children[i].IsStakingRecord() {
			n++
		}
	}
	return n
}

// AccountInfo is the state of an account as returned by an info query. Key is the
// serialized key envelope, empty for hollow accounts.
type AccountInfo struct {
	AccountID           AccountID     `json:"accountId"`
	Key                 hexutil.Bytes `json:"key,omitempty"`
	Alias               hexutil.Bytes `json:"alias,omitempty"`
	EvmAddress          hexutil.Bytes `json:"evmAddress,omitempty"`
	Balance             int64         `json:"balance"`
	AutoRenewPeriod     int64         `json:"autoRenewPeriod"`
	ReceiverSigRequired bool          `json:"receiverSigRequired"`
	Memo                string        `json:"memo"`
}
