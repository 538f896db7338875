package bdd

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hapisim/hapisim/ledger"
)

// AccountExpectation is a set of assertions on queried account state.
type AccountExpectation struct {
	checks []func(*Env, *ledger.AccountInfo) error
}

// AccountWith starts an account expectation.
func AccountWith() *AccountExpectation {
	return new(AccountExpectation)
}

func (e *AccountExpectation) add(fn func(*Env, *ledger.AccountInfo) error) *AccountExpectation {
	e.checks = append(e.checks, fn)
	return e
}

// EmptyKey expects the account to have no key, as hollow accounts do.
func (e *AccountExpectation) EmptyKey() *AccountExpectation {
	return e.add(func(_ *Env, info *ledger.AccountInfo) error {
		if len(info.Key) != 0 {
			return fmt.Errorf("key: got %x, want empty", []byte(info.Key))
		}
		return nil
	})
}

// Key expects the account key to be the registry key named name.
func (e *AccountExpectation) Key(name string) *AccountExpectation {
	return e.add(func(env *Env, info *ledger.AccountInfo) error {
		key, err := env.Registry.Key(name)
		if err != nil {
			return err
		}
		if want := key.Marshal(); !bytes.Equal(info.Key, want) {
			return fmt.Errorf("key: got %x, want %s (%x)", []byte(info.Key), name, want)
		}
		return nil
	})
}

// Balance expects an exact balance.
func (e *AccountExpectation) Balance(tinybars int64) *AccountExpectation {
	return e.add(func(_ *Env, info *ledger.AccountInfo) error {
		if info.Balance != tinybars {
			return fmt.Errorf("balance: got %d, want %d", info.Balance, tinybars)
		}
		return nil
	})
}

// AutoRenew expects the auto-renew period in seconds.
func (e *AccountExpectation) AutoRenew(seconds int64) *AccountExpectation {
	return e.add(func(_ *Env, info *ledger.AccountInfo) error {
		if info.AutoRenewPeriod != seconds {
			return fmt.Errorf("autoRenewPeriod: got %d, want %d", info.AutoRenewPeriod, seconds)
		}
		return nil
	})
}

// ReceiverSigRequired expects the receiver-signature-required flag.
func (e *AccountExpectation) ReceiverSigRequired(v bool) *AccountExpectation {
	return e.add(func(_ *Env, info *ledger.AccountInfo) error {
		if info.ReceiverSigRequired != v {
			return fmt.Errorf("receiverSigRequired: got %t, want %t", info.ReceiverSigRequired, v)
		}
		return nil
	})
}

// Memo expects the account memo.
func (e *AccountExpectation) Memo(memo string) *AccountExpectation {
	return e.add(func(_ *Env, info *ledger.AccountInfo) error {
		if info.Memo != memo {
			return fmt.Errorf("memo: got %q, want %q", info.Memo, memo)
		}
		return nil
	})
}

// EvmAddress expects the account's EVM address.
func (e *AccountExpectation) EvmAddress(addr common.Address) *AccountExpectation {
	return e.add(func(_ *Env, info *ledger.AccountInfo) error {
		if !bytes.Equal(info.EvmAddress, addr.Bytes()) {
			return fmt.Errorf("evmAddress: got %x, want %x", []byte(info.EvmAddress), addr)
		}
		return nil
	})
}

// NoKeyAlias expects the account not to be aliased by a serialized key. An EVM
// address alias is allowed.
func (e *AccountExpectation) NoKeyAlias() *AccountExpectation {
	return e.add(func(_ *Env, info *ledger.AccountInfo) error {
		if len(info.Alias) != 0 && len(info.Alias) != common.AddressLength {
			return fmt.Errorf("alias: got key alias %x, want none", []byte(info.Alias))
		}
		return nil
	})
}

func (e *AccountExpectation) check(env *Env, info *ledger.AccountInfo) error {
	var failures []string
	for _, fn := range e.checks {
		if err := fn(env, info); err != nil {
			failures = append(failures, err.Error())
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("account %v: %s", info.AccountID, strings.Join(failures, "; "))
	}
	return nil
}

// RecordExpectation is a set of assertions on a transaction record.
type RecordExpectation struct {
	status     ledger.Status
	memo       *string
	childCount int
	children   []*RecordExpectation
}

// RecordWith starts a record expectation.
func RecordWith() *RecordExpectation {
	return &RecordExpectation{childCount: -1}
}

// Status expects the receipt status.
func (e *RecordExpectation) Status(s ledger.Status) *RecordExpectation {
	e.status = s
	return e
}

// Memo expects the record memo.
func (e *RecordExpectation) Memo(memo string) *RecordExpectation {
	e.memo = &memo
	return e
}

// NonStakingChildCount expects the number of child records, ignoring staking
// period records.
func (e *RecordExpectation) NonStakingChildCount(n int) *RecordExpectation {
	e.childCount = n
	return e
}

// Children expects the non-staking child records to match in order.
func (e *RecordExpectation) Children(children ...*RecordExpectation) *RecordExpectation {
	e.children = children
	return e
}

func (e *RecordExpectation) check(rec *ledger.Record) error {
	if e.status != "" && rec.Receipt.Status != e.status {
		return fmt.Errorf("record %s: status %s, want %s", rec.TxnID, rec.Receipt.Status, e.status)
	}
	if e.memo != nil && rec.Memo != *e.memo {
		return fmt.Errorf("record %s: memo %q, want %q", rec.TxnID, rec.Memo, *e.memo)
	}
	if e.childCount >= 0 && rec.NonStakingChildren() != e.childCount {
		return fmt.Errorf("record %s: %d non-staking child records, want %d", rec.TxnID, rec.NonStakingChildren(), e.childCount)
	}
	if len(e.children) == 0 {
		return nil
	}
	var children []ledger.Record
	for _, c := range rec.Children {
		if !c.IsStakingRecord() {
			children = append(children, c)
		}
	}
	if len(children) < len(e.children) {
		return fmt.Errorf("record %s: %d non-staking child records, want at least %d", rec.TxnID, len(children), len(e.children))
	}
	for i, ce := range e.children {
		if err := ce.check(&children[i]); err != nil {
			return fmt.Errorf("child %d: %v", i, err)
		}
	}
	return nil
}
