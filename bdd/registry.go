package bdd

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hapisim/hapisim/keys"
	"github.com/hapisim/hapisim/ledger"
)

var (
	ErrNoSuchKey     = errors.New("no such key")
	ErrNoSuchAccount = errors.New("no such account")
	ErrNoSuchTxn     = errors.New("no such transaction")
)

// Registry holds the fixtures of a test run under logical names: generated keys,
// resolved account ids, alias mappings and transaction handles.
//
// A registry lives as long as the scenarios sharing it. It is safe for concurrent
// use, but scenarios running concurrently must use distinct names.
type Registry struct {
	mu       sync.RWMutex
	keys     map[string]*keys.Pair
	accounts map[string]ledger.AccountID
	aliases  map[string]ledger.AccountID
	txns     map[string]ledger.TxnID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		keys:     make(map[string]*keys.Pair),
		accounts: make(map[string]ledger.AccountID),
		aliases:  make(map[string]ledger.AccountID),
		txns:     make(map[string]ledger.TxnID),
	}
}

// SaveKey stores a key pair under name.
func (r *Registry) SaveKey(name string, pair *keys.Pair) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[name] = pair
}

// KeyPair returns the key pair stored under name.
func (r *Registry) KeyPair(name string) (*keys.Pair, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pair, ok := r.keys[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrNoSuchKey, name)
	}
	return pair, nil
}

// Key returns the public key stored under name.
func (r *Registry) Key(name string) (keys.Key, error) {
	pair, err := r.KeyPair(name)
	if err != nil {
		return keys.Key{}, err
	}
	return pair.Public(), nil
}

// HasKey reports whether a key is stored under name.
func (r *Registry) HasKey(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.keys[name]
	return ok
}

// SaveAccountID stores the ledger id of the account known as name.
func (r *Registry) SaveAccountID(name string, id ledger.AccountID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[name] = id
}

// AccountID returns the ledger id saved under name.
func (r *Registry) AccountID(name string) (ledger.AccountID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.accounts[name]
	if !ok {
		return ledger.AccountID{}, fmt.Errorf("%w %q", ErrNoSuchAccount, name)
	}
	return id, nil
}

// HasAccount reports whether an account id is saved under name.
func (r *Registry) HasAccount(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.accounts[name]
	return ok
}

// SaveAccountAlias maps an alias (EVM address or serialized key) to an account id.
func (r *Registry) SaveAccountAlias(alias []byte, id ledger.AccountID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[string(alias)] = id
}

// AliasedAccountID returns the account id mapped to alias.
func (r *Registry) AliasedAccountID(alias []byte) (ledger.AccountID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.aliases[string(alias)]
	if !ok {
		return ledger.AccountID{}, fmt.Errorf("%w with alias %x", ErrNoSuchAccount, alias)
	}
	return id, nil
}

// SaveTxnID stores a transaction handle.
func (r *Registry) SaveTxnID(name string, id ledger.TxnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txns[name] = id
}

// TxnID returns the transaction saved under name.
func (r *Registry) TxnID(name string) (ledger.TxnID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.txns[name]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrNoSuchTxn, name)
	}
	return id, nil
}
