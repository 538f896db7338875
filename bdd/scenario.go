// Package bdd composes ledger test scenarios from declarative steps and interprets
// them against a node.
//
// A scenario is an ordered list of steps. Steps run strictly in order, each one
// blocking until the node has answered, and the first failing step aborts the
// scenario:
//
//	sc := bdd.NewScenario("hollow account",
//		bdd.NewKey{Name: "alias", Shape: keys.ECDSASecp256k1},
//		bdd.DefaultHollowAccountFrom("alias"),
//		bdd.GetBalance{Account: bdd.Named("alias"), Want: ledger.OneHundredHbars},
//	)
//	err := sc.Run(ctx, node, bdd.NewRegistry())
//
// Errors returned by Run wrap the failing step's name around the original cause,
// which errors.Cause recovers unchanged.
package bdd

import (
	"context"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/hapisim/hapisim/keys"
	"github.com/hapisim/hapisim/ledger"
	"github.com/pkg/errors"
	"gopkg.in/inconshreveable/log15.v2"
)

// Scenario is a named list of steps.
type Scenario struct {
	Name  string
	Steps []Step
}

// NewScenario creates a scenario.
func NewScenario(name string, steps ...Step) *Scenario {
	return &Scenario{Name: name, Steps: steps}
}

// Run executes all steps against node, using reg for fixtures.
func (s *Scenario) Run(ctx context.Context, node ledger.Node, reg *Registry) error {
	env := &Env{
		Ctx:      ctx,
		Node:     node,
		Registry: reg,
		Log:      log15.New("scenario", s.Name),
	}
	env.Log.Debug("scenario started", "steps", len(s.Steps))
	if err := env.Run(s.Steps...); err != nil {
		env.Log.Debug("scenario failed", "err", err)
		return err
	}
	env.Log.Debug("scenario passed")
	return nil
}

// Env is the state shared by the steps of a running scenario.
type Env struct {
	Ctx      context.Context
	Node     ledger.Node
	Registry *Registry
	Log      log15.Logger
}

// Run executes steps in order, stopping at the first failure.
func (env *Env) Run(steps ...Step) error {
	for i, step := range steps {
		if err := env.Exec(step); err != nil {
			return errors.Wrapf(err, "step %d (%s)", i, step.stepName())
		}
	}
	return nil
}

// Exec executes a single step.
func (env *Env) Exec(step Step) error {
	env.Log.Debug("running step", "step", step.stepName())
	switch s := step.(type) {
	case NewKey:
		return env.newKey(s)
	case CreateAccount:
		return env.createAccount(s)
	case Transfer:
		return env.transfer(s)
	case GetAccountInfo:
		return env.getAccountInfo(s)
	case GetBalance:
		return env.getBalance(s)
	case GetReceipt:
		return env.getReceipt(s)
	case GetTxnRecord:
		return env.getTxnRecord(s)
	case Func:
		return s.Fn(env)
	case Sequence:
		return env.Run(s.Steps...)
	default:
		return errors.Errorf("unknown step type %T", step)
	}
}

func (env *Env) newKey(s NewKey) error {
	shape := s.Shape
	if shape == 0 {
		shape = keys.Ed25519
	}
	pair, err := keys.Generate(shape)
	if err != nil {
		return err
	}
	env.Registry.SaveKey(s.Name, pair)
	return nil
}

func (env *Env) createAccount(s CreateAccount) error {
	var key keys.Key
	if s.Key != "" {
		k, err := env.Registry.Key(s.Key)
		if err != nil {
			return err
		}
		key = k
	} else {
		pair, err := keys.Generate(keys.Ed25519)
		if err != nil {
			return err
		}
		env.Registry.SaveKey(s.Name, pair)
		key = pair.Public()
	}
	payer, err := env.payer(s.Payer)
	if err != nil {
		return err
	}
	req := ledger.CreateAccountRequest{
		Payer:               payer,
		Key:                 key.Marshal(),
		Alias:               s.Alias,
		Balance:             s.Balance,
		Memo:                s.Memo,
		ReceiverSigRequired: s.ReceiverSigRequired,
	}
	rcpt, err := env.Node.CreateAccount(env.Ctx, req)
	success, err := env.checkSubmission(rcpt, err, s.Precheck, s.Status, s.Via)
	if err != nil || !success {
		return err
	}
	env.Registry.SaveAccountID(s.Name, rcpt.AccountID)
	if len(s.Alias) > 0 {
		env.Registry.SaveAccountAlias(s.Alias, rcpt.AccountID)
	}
	env.Log.Debug("account created", "name", s.Name, "id", rcpt.AccountID)
	return nil
}

func (env *Env) transfer(s Transfer) error {
	from, err := env.resolve(s.From)
	if err != nil {
		return err
	}
	to, err := env.resolve(s.To)
	if err != nil {
		return err
	}
	payer, err := env.payer(s.Payer)
	if err != nil {
		return err
	}
	req := ledger.TransferRequest{
		Payer:  payer,
		From:   from,
		To:     to,
		Amount: s.Amount,
		Memo:   s.Memo,
	}
	hash := req.SigningHash()
	for _, name := range s.SignedBy {
		pair, err := env.Registry.KeyPair(name)
		if err != nil {
			return err
		}
		sig, err := pair.Sign(hash.Bytes())
		if err != nil {
			return errors.Wrapf(err, "can't sign with %s", name)
		}
		req.Sigs = append(req.Sigs, ledger.SigPair{Key: pair.Public().Marshal(), Signature: sig})
	}
	rcpt, err := env.Node.Transfer(env.Ctx, req)
	_, err = env.checkSubmission(rcpt, err, s.Precheck, s.Status, s.Via)
	return err
}

func (env *Env) getAccountInfo(s GetAccountInfo) error {
	ref, err := env.resolve(s.Account)
	if err != nil {
		return err
	}
	info, err := env.Node.GetAccountInfo(env.Ctx, ref)
	if err != nil {
		return env.checkPrecheck(err, s.Precheck)
	}
	if s.Precheck != "" {
		return errors.Errorf("info query for %v passed precheck, want %s", ref, s.Precheck)
	}
	if s.Expect != nil {
		if err := s.Expect.check(env, info); err != nil {
			return err
		}
	}
	if s.Expose != nil {
		s.Expose(info)
	}
	return nil
}

func (env *Env) getBalance(s GetBalance) error {
	ref, err := env.resolve(s.Account)
	if err != nil {
		return err
	}
	balance, err := env.Node.GetBalance(env.Ctx, ref)
	if err != nil {
		return err
	}
	if balance != s.Want {
		return errors.Errorf("balance of %v is %d, want %d", s.Account, balance, s.Want)
	}
	return nil
}

func (env *Env) getReceipt(s GetReceipt) error {
	id, err := env.Registry.TxnID(s.Txn)
	if err != nil {
		return err
	}
	rcpt, err := env.Node.GetReceipt(env.Ctx, id)
	if err != nil {
		return err
	}
	want := s.Status
	if want == "" {
		want = ledger.StatusSuccess
	}
	if rcpt.Status != want {
		return &ledger.StatusError{TxnID: id, Want: want, Got: rcpt.Status}
	}
	return nil
}

func (env *Env) getTxnRecord(s GetTxnRecord) error {
	id, err := env.Registry.TxnID(s.Txn)
	if err != nil {
		return err
	}
	rec, err := env.Node.GetTxnRecord(env.Ctx, id, s.IncludeChildren)
	if err != nil {
		return err
	}
	env.Log.Debug("fetched record", "txn", s.Txn, "record", log15.Lazy{Fn: func() string { return spew.Sdump(rec) }})
	if s.Expect != nil {
		if err := s.Expect.check(rec); err != nil {
			return err
		}
	}
	if s.Expose != nil {
		s.Expose(rec)
	}
	return nil
}

// checkSubmission applies the precheck and status expectations of a transaction
// step. It reports whether the transaction succeeded.
func (env *Env) checkSubmission(rcpt *ledger.Receipt, err error, precheck, status ledger.Status, via string) (bool, error) {
	if err != nil {
		return false, env.checkPrecheck(err, precheck)
	}
	if precheck != "" {
		return false, errors.Errorf("txn %s passed precheck, want %s", rcpt.TxnID, precheck)
	}
	if via != "" {
		env.Registry.SaveTxnID(via, rcpt.TxnID)
	}
	want := status
	if want == "" {
		want = ledger.StatusSuccess
	}
	if rcpt.Status != want {
		return false, &ledger.StatusError{TxnID: rcpt.TxnID, Want: want, Got: rcpt.Status}
	}
	return rcpt.Status == ledger.StatusSuccess, nil
}

// checkPrecheck returns nil if err is the expected precheck failure.
func (env *Env) checkPrecheck(err error, want ledger.Status) error {
	var pe *ledger.PrecheckError
	if want == "" || !errors.As(err, &pe) {
		return err
	}
	if pe.Status != want {
		return errors.Errorf("precheck %s, want %s", pe.Status, want)
	}
	return nil
}

// resolve turns a party into an account reference.
func (env *Env) resolve(p Party) (ledger.AccountRef, error) {
	if p.Alias != nil {
		return ledger.ByAlias(p.Alias), nil
	}
	if id, err := env.Registry.AccountID(p.Name); err == nil {
		return ledger.ByID(id), nil
	}
	key, err := env.Registry.Key(p.Name)
	if err != nil {
		return ledger.AccountRef{}, fmt.Errorf("unknown party %q: no account or key by that name", p.Name)
	}
	return ledger.ByAlias(key.Marshal()), nil
}

func (env *Env) payer(name string) (ledger.AccountID, error) {
	if name == "" {
		return ledger.AccountID{}, nil
	}
	return env.Registry.AccountID(name)
}
