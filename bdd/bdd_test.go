package bdd

import (
	"context"
	"errors"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hapisim/hapisim/internal/fakeledger"
	"github.com/hapisim/hapisim/keys"
	"github.com/hapisim/hapisim/ledger"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gopkg.in/inconshreveable/log15.v2"
)

func run(t *testing.T, node ledger.Node, reg *Registry, steps ...Step) error {
	t.Helper()
	return NewScenario(t.Name(), steps...).Run(context.Background(), node, reg)
}

func TestHollowAccountFrom(t *testing.T) {
	var (
		node = fakeledger.New(nil)
		reg  = NewRegistry()
	)
	err := run(t, node, reg,
		NewKey{Name: "alias", Shape: keys.ECDSASecp256k1},
		HollowAccountFrom("alias", 100_00000000, 1_000),
	)
	require.NoError(t, err)

	id, err := reg.AccountID("alias")
	require.NoError(t, err)
	key, err := reg.Key("alias")
	require.NoError(t, err)
	addr, err := key.EVMAddress()
	require.NoError(t, err)
	aliased, err := reg.AliasedAccountID(addr.Bytes())
	require.NoError(t, err)
	require.Equal(t, id, aliased)

	info, err := node.GetAccountInfo(context.Background(), ledger.ByID(id))
	require.NoError(t, err)
	if len(info.Key) != 0 || info.Balance != 1000 || info.Memo != ledger.LazyMemo ||
		info.AutoRenewPeriod != ledger.ThreeMonthsInSeconds || info.ReceiverSigRequired {
		t.Fatalf("wrong hollow account: %s", spew.Sdump(info))
	}

	// The CREATE1 address was funded too.
	create1 := keys.DeriveCreate1Address(addr, 0)
	balance, err := node.GetBalance(context.Background(), ledger.ByAlias(create1.Bytes()))
	require.NoError(t, err)
	require.Equal(t, Create1TransferAmount, balance)

	// The account is now addressable by name.
	err = run(t, node, reg,
		GetBalance{Account: Named("alias"), Want: 1000},
		GetAccountInfo{Account: Named("alias"), Expect: AccountWith().EmptyKey().EvmAddress(addr)},
	)
	require.NoError(t, err)
}

func TestDefaultHollowAccountFrom(t *testing.T) {
	var (
		node = fakeledger.New(nil)
		reg  = NewRegistry()
	)
	err := run(t, node, reg,
		NewKey{Name: "k", Shape: keys.ECDSASecp256k1},
		DefaultHollowAccountFrom("k"),
		GetBalance{Account: Named("k"), Want: ledger.OneHundredHbars},
		GetBalance{Account: Named("k" + SponsorSuffix), Want: 1000*ledger.OneHbar - ledger.OneHundredHbars - Create1TransferAmount},
		GetBalance{Account: Named("k" + ReceiverSuffix), Want: ReceiverBalance},
		GetReceipt{Txn: "k" + HollowTxnSuffix},
		GetReceipt{Txn: "k" + Create1TxnSuffix},
	)
	require.NoError(t, err)
}

func TestHollowAccountTwoKeys(t *testing.T) {
	var (
		node = fakeledger.New(nil)
		reg  = NewRegistry()
	)
	err := run(t, node, reg,
		NewKey{Name: "k1", Shape: keys.ECDSASecp256k1},
		NewKey{Name: "k2", Shape: keys.ECDSASecp256k1},
		HollowAccountFrom("k1", 100_00000000, 1_000),
		HollowAccountFrom("k2", 100_00000000, 1_000),
	)
	require.NoError(t, err)

	id1, err := reg.AccountID("k1")
	require.NoError(t, err)
	id2, err := reg.AccountID("k2")
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	key1, _ := reg.Key("k1")
	key2, _ := reg.Key("k2")
	addr1, err := key1.EVMAddress()
	require.NoError(t, err)
	addr2, err := key2.EVMAddress()
	require.NoError(t, err)
	require.NotEqual(t, addr1, addr2)
}

func TestHollowAccountZeroAmount(t *testing.T) {
	reg := NewRegistry()
	err := run(t, fakeledger.New(nil), reg,
		NewKey{Name: "alias", Shape: keys.ECDSASecp256k1},
		HollowAccountFrom("alias", 100_00000000, 0),
	)
	var serr *ledger.StatusError
	require.True(t, errors.As(err, &serr), "got %v", err)
	require.Equal(t, ledger.StatusSuccess, serr.Want)
	require.Equal(t, ledger.StatusInvalidAccountAmounts, serr.Got)
	require.Equal(t, serr, pkgerrors.Cause(err))
	require.False(t, reg.HasAccount("alias"))
}

func TestHollowAccountInsufficientSponsor(t *testing.T) {
	err := run(t, fakeledger.New(nil), NewRegistry(),
		NewKey{Name: "alias", Shape: keys.ECDSASecp256k1},
		HollowAccountFrom("alias", 500, 1_000),
	)
	var serr *ledger.StatusError
	require.True(t, errors.As(err, &serr), "got %v", err)
	require.Equal(t, ledger.StatusInsufficientAccountBal, serr.Got)
}

func TestHollowAccountNeedsECDSAKey(t *testing.T) {
	err := run(t, fakeledger.New(nil), NewRegistry(),
		NewKey{Name: "ed", Shape: keys.Ed25519},
		HollowAccountFrom("ed", 100_00000000, 1_000),
	)
	require.Error(t, err)

	err = run(t, fakeledger.New(nil), NewRegistry(), HollowAccountFrom("missing", 100_00000000, 1_000))
	require.True(t, errors.Is(err, ErrNoSuchKey), "got %v", err)
}

func TestHollowAccountSkipsStakingRecords(t *testing.T) {
	var (
		node = fakeledger.New(&fakeledger.Config{StakingPeriodTxns: 1})
		reg  = NewRegistry()
	)
	err := run(t, node, reg,
		NewKey{Name: "alias", Shape: keys.ECDSASecp256k1},
		HollowAccountFrom("alias", 100_00000000, 1_000),
		GetTxnRecord{
			Txn:             "alias" + HollowTxnSuffix,
			IncludeChildren: true,
			Expect: RecordWith().
				Status(ledger.StatusSuccess).
				NonStakingChildCount(1).
				Children(RecordWith().Memo(ledger.LazyMemo)),
		},
	)
	require.NoError(t, err)

	id, err := reg.AccountID("alias")
	require.NoError(t, err)
	balance, err := node.GetBalance(context.Background(), ledger.ByID(id))
	require.NoError(t, err)
	require.Equal(t, int64(1000), balance)
}

func TestHollowAccountFinalization(t *testing.T) {
	var (
		node = fakeledger.New(nil)
		reg  = NewRegistry()
	)
	err := run(t, node, reg,
		NewKey{Name: "alias", Shape: keys.ECDSASecp256k1},
		DefaultHollowAccountFrom("alias"),
		CreateAccount{Name: "target"},
		// Without the key's signature the hollow account can't pay.
		Transfer{From: Named("alias"), To: Named("target"), Amount: 10, Status: ledger.StatusInvalidSignature},
		Transfer{From: Named("alias"), To: Named("target"), Amount: 10, SignedBy: []string{"alias"}, Via: "finalize"},
		GetReceipt{Txn: "finalize"},
		GetAccountInfo{
			Account: Named("alias"),
			Expect:  AccountWith().Key("alias").Balance(ledger.OneHundredHbars - 10).Memo(ledger.LazyMemo),
		},
		GetBalance{Account: Named("target"), Want: 10},
	)
	require.NoError(t, err)
}

func TestAutoAccountCreation(t *testing.T) {
	var (
		node = fakeledger.New(nil)
		reg  = NewRegistry()
	)
	err := run(t, node, reg,
		CreateAccount{Name: "payer", Balance: 10 * ledger.OneHbar},
		NewKey{Name: "ecdsa", Shape: keys.ECDSASecp256k1},
		NewKey{Name: "ed"},
		Transfer{From: Named("payer"), To: Named("ecdsa"), Amount: ledger.OneHbar, Via: "autoCreate"},
		Transfer{From: Named("payer"), To: Named("ed"), Amount: ledger.OneHbar},
		GetTxnRecord{
			Txn:             "autoCreate",
			IncludeChildren: true,
			Expect:          RecordWith().NonStakingChildCount(1).Children(RecordWith().Memo(ledger.AutoMemo)),
		},
		UpdateRegistryFor("ecdsa"),
		UpdateRegistryFor("ed"),
		GetAccountInfo{
			Account: Named("ecdsa"),
			Expect: AccountWith().
				Key("ecdsa").
				Balance(ledger.OneHbar).
				AutoRenew(ledger.ThreeMonthsInSeconds).
				ReceiverSigRequired(false).
				Memo(ledger.AutoMemo),
		},
		GetAccountInfo{Account: Named("ed"), Expect: AccountWith().Key("ed").Memo(ledger.AutoMemo)},
	)
	require.NoError(t, err)
	require.True(t, reg.HasAccount("ecdsa"))

	key, err := reg.Key("ecdsa")
	require.NoError(t, err)
	id, err := reg.AliasedAccountID(key.Marshal())
	require.NoError(t, err)
	addr, err := key.EVMAddress()
	require.NoError(t, err)
	byAddr, err := reg.AliasedAccountID(addr.Bytes())
	require.NoError(t, err)
	require.Equal(t, id, byAddr)
}

func TestInvalidAlias(t *testing.T) {
	err := run(t, fakeledger.New(nil), NewRegistry(),
		CreateAccount{Name: "payer", Balance: ledger.OneHbar},
		Transfer{From: Named("payer"), To: AliasOf([]byte("not a key")), Amount: 1, Status: ledger.StatusInvalidAliasKey},
		Transfer{From: Named("payer"), To: AliasOf(keys.BuildEd25519AliasBytes()), Amount: 1},
	)
	require.NoError(t, err)
}

func TestPrecheckExpectations(t *testing.T) {
	node := fakeledger.New(nil)
	err := run(t, node, NewRegistry(),
		CreateAccount{Name: "a", Payer: "a", Precheck: ledger.StatusPayerAccountNotFound},
	)
	require.True(t, errors.Is(err, ErrNoSuchAccount), "got %v", err)

	reg := NewRegistry()
	reg.SaveAccountID("ghost", ledger.NewAccountID(999))
	err = run(t, node, reg,
		CreateAccount{Name: "a", Payer: "ghost", Precheck: ledger.StatusPayerAccountNotFound},
		GetAccountInfo{Account: Named("ghost"), Precheck: ledger.StatusInvalidAccountID},
	)
	require.NoError(t, err)

	// An expected precheck failure that doesn't happen fails the step.
	err = run(t, node, reg, CreateAccount{Name: "b", Precheck: ledger.StatusKeyRequired})
	require.Error(t, err)

	// So does an unexpected one, which is passed through unchanged.
	err = run(t, node, reg, GetAccountInfo{Account: Named("ghost")})
	var pe *ledger.PrecheckError
	require.True(t, errors.As(err, &pe), "got %v", err)
	require.Equal(t, pe, pkgerrors.Cause(err))
}

func TestAccountExpectationFailures(t *testing.T) {
	node := fakeledger.New(nil)
	reg := NewRegistry()
	err := run(t, node, reg,
		CreateAccount{Name: "a", Balance: 10, Memo: "hello"},
		NewKey{Name: "other"},
		GetAccountInfo{
			Account: Named("a"),
			Expect:  AccountWith().Balance(11).Memo("bye").Key("other").EmptyKey().NoKeyAlias(),
		},
	)
	require.Error(t, err)
	for _, part := range []string{"balance: got 10, want 11", `memo: got "hello", want "bye"`, "key: got", "want empty"} {
		require.Contains(t, err.Error(), part)
	}
}

func TestRecordExpectationFailures(t *testing.T) {
	reg := NewRegistry()
	node := fakeledger.New(nil)
	err := run(t, node, reg,
		CreateAccount{Name: "a", Balance: 10, Via: "create"},
		GetTxnRecord{Txn: "create", Expect: RecordWith().NonStakingChildCount(1)},
	)
	require.ErrorContains(t, err, "0 non-staking child records, want 1")

	err = run(t, node, reg, GetTxnRecord{Txn: "create", Expect: RecordWith().Status(ledger.StatusInvalidSignature)})
	require.ErrorContains(t, err, "status SUCCESS, want INVALID_SIGNATURE")

	var exposed *ledger.Record
	err = run(t, node, reg, GetTxnRecord{Txn: "create", Expose: func(r *ledger.Record) { exposed = r }})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusSuccess, exposed.Receipt.Status)
}

func TestFuncAndSequence(t *testing.T) {
	var calls []string
	step := func(name string) Step {
		return Func{Name: name, Fn: func(env *Env) error {
			calls = append(calls, name)
			return nil
		}}
	}
	fail := Func{Name: "fail", Fn: func(*Env) error { return errors.New("boom") }}

	err := run(t, fakeledger.New(nil), NewRegistry(),
		step("a"),
		Sequence{Name: "seq", Steps: []Step{step("b"), step("c")}},
		fail,
		step("d"),
	)
	require.Equal(t, []string{"a", "b", "c"}, calls)
	require.EqualError(t, err, "step 2 (fail): boom")
}

func TestResolveParty(t *testing.T) {
	reg := NewRegistry()
	env := &Env{Registry: reg}

	pair, err := keys.Generate(keys.Ed25519)
	require.NoError(t, err)
	reg.SaveKey("k", pair)

	ref, err := env.resolve(Named("k"))
	require.NoError(t, err)
	require.Equal(t, pair.Public().Marshal(), []byte(ref.Alias))

	reg.SaveAccountID("k", ledger.NewAccountID(1005))
	ref, err = env.resolve(Named("k"))
	require.NoError(t, err)
	require.Equal(t, ledger.ByID(ledger.NewAccountID(1005)), ref)

	addr := common.HexToAddress("0x7435ed30A8b4AEb0877CEf0c6E8cFFe834eb865f")
	ref, err = env.resolve(AliasOf(addr.Bytes()))
	require.NoError(t, err)
	require.True(t, ref.IsAlias())

	_, err = env.resolve(Named("nobody"))
	require.Error(t, err)
}

// Record dumps are only rendered by handlers that pass the debug level.
func TestRecordDumpIsLazy(t *testing.T) {
	var (
		node = fakeledger.New(nil)
		reg  = NewRegistry()
		dump interface{}
	)
	saved := log15.Root().GetHandler()
	defer log15.Root().SetHandler(saved)
	log15.Root().SetHandler(log15.FuncHandler(func(r *log15.Record) error {
		if r.Msg != "fetched record" {
			return nil
		}
		for i := 0; i+1 < len(r.Ctx); i += 2 {
			if r.Ctx[i] == "record" {
				dump = r.Ctx[i+1]
			}
		}
		return nil
	}))

	err := run(t, node, reg,
		CreateAccount{Name: "alice", Balance: 10, Via: "create"},
		GetTxnRecord{Txn: "create"},
	)
	require.NoError(t, err)
	require.IsType(t, log15.Lazy{}, dump)
}
