// Package crypto holds the account and transfer suites: hollow accounts created
// by transfers to EVM addresses, their finalization, and accounts auto-created
// from key aliases.
package crypto

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/hapisim/hapisim/bdd"
	"github.com/hapisim/hapisim/hapisim"
	"github.com/hapisim/hapisim/keys"
	"github.com/hapisim/hapisim/ledger"
	"github.com/pkg/errors"
)

const fiveHbars = 5 * ledger.OneHbar

// Suite returns the crypto suite.
func Suite() hapisim.Suite {
	suite := hapisim.Suite{
		Name:        "crypto",
		Description: "Hollow account creation, finalization and alias auto-creation.",
	}
	suite.Add(hapisim.ScenarioSpec{
		Name:        "hollow account creation",
		Description: "A transfer to the EVM address of an ECDSA key creates a keyless account.",
		Steps: []bdd.Step{
			bdd.NewKey{Name: "source", Shape: keys.ECDSASecp256k1},
			bdd.DefaultHollowAccountFrom("source"),
			bdd.GetBalance{Account: bdd.Named("source"), Want: ledger.OneHundredHbars},
			bdd.GetReceipt{Txn: "source" + bdd.HollowTxnSuffix},
			assertStillHollow("source"),
		},
	})
	suite.Add(hapisim.ScenarioSpec{
		Name:        "hollow accounts from two keys",
		Description: "Different keys get different hollow accounts.",
		Steps: []bdd.Step{
			bdd.NewKey{Name: "first", Shape: keys.ECDSASecp256k1},
			bdd.NewKey{Name: "second", Shape: keys.ECDSASecp256k1},
			bdd.DefaultHollowAccountFrom("first"),
			bdd.DefaultHollowAccountFrom("second"),
			distinctAccounts("first", "second"),
		},
	})
	suite.Add(hapisim.ScenarioSpec{
		Name:        "zero amount to EVM address",
		Description: "A zero transfer to an unseen EVM address fails and creates nothing.",
		Steps: []bdd.Step{
			bdd.NewKey{Name: "source", Shape: keys.ECDSASecp256k1},
			bdd.CreateAccount{Name: "sponsor", Balance: ledger.OneHbar},
			withEVMAddress("source", func(env *bdd.Env, addr common.Address) error {
				return env.Run(
					bdd.Transfer{
						From:   bdd.Named("sponsor"),
						To:     bdd.AliasOf(addr.Bytes()),
						Amount: 0,
						Status: ledger.StatusInvalidAccountAmounts,
					},
					bdd.GetAccountInfo{Account: bdd.AliasOf(addr.Bytes()), Precheck: ledger.StatusInvalidAccountID},
				)
			}),
		},
	})
	suite.Add(hapisim.ScenarioSpec{
		Name:        "hollow account needs signature",
		Description: "A hollow account can't send funds without the signature of its key.",
		Steps: []bdd.Step{
			bdd.NewKey{Name: "source", Shape: keys.ECDSASecp256k1},
			bdd.DefaultHollowAccountFrom("source"),
			bdd.CreateAccount{Name: "target"},
			bdd.Transfer{
				From:   bdd.Named("source"),
				To:     bdd.Named("target"),
				Amount: ledger.OneHbar,
				Status: ledger.StatusInvalidSignature,
			},
			assertStillHollow("source"),
			bdd.GetBalance{Account: bdd.Named("target"), Want: 0},
		},
	})
	suite.Add(hapisim.ScenarioSpec{
		Name:        "hollow account completion with crypto transfer",
		Description: "Paying for a transfer with the ECDSA key fills in the key of the hollow account.",
		Steps: []bdd.Step{
			bdd.NewKey{Name: "source", Shape: keys.ECDSASecp256k1},
			bdd.DefaultHollowAccountFrom("source"),
			completeHollow("source", "transferTxn2"),
			bdd.GetTxnRecord{
				Txn:             "transferTxn2",
				IncludeChildren: true,
				Expect:          bdd.RecordWith().Status(ledger.StatusSuccess).NonStakingChildCount(0),
			},
			withEVMAddress("source", func(env *bdd.Env, addr common.Address) error {
				key, err := env.Registry.Key("source")
				if err != nil {
					return err
				}
				return env.Run(
					bdd.CreateAccount{Name: "party", Alias: addr.Bytes(), Balance: ledger.OneHbar, Precheck: ledger.StatusInvalidAliasKey},
					bdd.CreateAccount{Name: "party", Alias: key.Marshal(), Balance: ledger.OneHbar, Precheck: ledger.StatusInvalidAliasKey},
					bdd.GetAccountInfo{
						Account: bdd.AliasOf(addr.Bytes()),
						Expect:  bdd.AccountWith().Key("source").EvmAddress(addr).NoKeyAlias(),
					},
				)
			}),
		},
	})
	suite.Add(hapisim.ScenarioSpec{
		Name:        "completed hollow accounts transfer",
		Description: "Two finalized hollow accounts transfer between their EVM addresses.",
		Steps: []bdd.Step{
			bdd.NewKey{Name: "source", Shape: keys.ECDSASecp256k1},
			bdd.NewKey{Name: "another", Shape: keys.ECDSASecp256k1},
			bdd.DefaultHollowAccountFrom("source"),
			bdd.DefaultHollowAccountFrom("another"),
			completeHollow("source", "transferTxn3"),
			completeHollow("another", "transferTxn4"),
			bdd.Func{
				Name: "transfer between EVM addresses",
				Fn: func(env *bdd.Env) error {
					from, err := evmAddress(env, "source")
					if err != nil {
						return err
					}
					to, err := evmAddress(env, "another")
					if err != nil {
						return err
					}
					return env.Run(
						bdd.Transfer{
							From:     bdd.AliasOf(from.Bytes()),
							To:       bdd.AliasOf(to.Bytes()),
							Amount:   fiveHbars,
							Payer:    "source",
							SignedBy: []string{"source"},
							Via:      "transferTxn5",
						},
						bdd.GetTxnRecord{Txn: "transferTxn5", IncludeChildren: true, Expect: bdd.RecordWith().Status(ledger.StatusSuccess)},
						bdd.GetAccountInfo{
							Account: bdd.AliasOf(to.Bytes()),
							Expect:  bdd.AccountWith().Key("another").EvmAddress(to),
						},
					)
				},
			},
		},
	})
	suite.Add(hapisim.ScenarioSpec{
		Name:        "auto account creation",
		Description: "Transfers to serialized key aliases create accounts holding those keys.",
		Steps: []bdd.Step{
			bdd.CreateAccount{Name: "payer", Balance: 10 * ledger.OneHbar},
			bdd.NewKey{Name: "ecdsa", Shape: keys.ECDSASecp256k1},
			bdd.NewKey{Name: "ed25519", Shape: keys.Ed25519},
			bdd.Transfer{From: bdd.Named("payer"), To: bdd.Named("ecdsa"), Amount: ledger.OneHbar, Via: "ecdsaTxn"},
			bdd.Transfer{From: bdd.Named("payer"), To: bdd.Named("ed25519"), Amount: ledger.OneHbar, Via: "ed25519Txn"},
			bdd.GetTxnRecord{
				Txn:             "ecdsaTxn",
				IncludeChildren: true,
				Expect:          bdd.RecordWith().NonStakingChildCount(1).Children(bdd.RecordWith().Memo(ledger.AutoMemo)),
			},
			bdd.GetTxnRecord{
				Txn:             "ed25519Txn",
				IncludeChildren: true,
				Expect:          bdd.RecordWith().NonStakingChildCount(1),
			},
			bdd.UpdateRegistryFor("ecdsa"),
			bdd.UpdateRegistryFor("ed25519"),
			bdd.GetAccountInfo{
				Account: bdd.Named("ecdsa"),
				Expect: bdd.AccountWith().
					Key("ecdsa").
					Balance(ledger.OneHbar).
					AutoRenew(ledger.ThreeMonthsInSeconds).
					ReceiverSigRequired(false).
					Memo(ledger.AutoMemo),
			},
			bdd.GetAccountInfo{
				Account: bdd.Named("ed25519"),
				Expect:  bdd.AccountWith().Key("ed25519").Balance(ledger.OneHbar).Memo(ledger.AutoMemo),
			},
			// A second transfer goes to the existing account.
			bdd.Transfer{From: bdd.Named("payer"), To: bdd.Named("ecdsa"), Amount: ledger.OneHbar, Via: "secondTxn"},
			bdd.GetTxnRecord{Txn: "secondTxn", IncludeChildren: true, Expect: bdd.RecordWith().NonStakingChildCount(0)},
			bdd.GetBalance{Account: bdd.Named("ecdsa"), Want: 2 * ledger.OneHbar},
		},
	})
	suite.Add(hapisim.ScenarioSpec{
		Name:        "invalid alias",
		Description: "A transfer to an alias that is neither an EVM address nor a key fails.",
		Steps: []bdd.Step{
			bdd.CreateAccount{Name: "payer", Balance: ledger.OneHbar},
			bdd.Transfer{
				From:   bdd.Named("payer"),
				To:     bdd.AliasOf([]byte("not a key")),
				Amount: 1,
				Status: ledger.StatusInvalidAliasKey,
			},
			bdd.GetBalance{Account: bdd.Named("payer"), Want: ledger.OneHbar},
		},
	})
	return suite
}

// evmAddress returns the EVM address of the ECDSA key registered as keyName.
func evmAddress(env *bdd.Env, keyName string) (common.Address, error) {
	key, err := env.Registry.Key(keyName)
	if err != nil {
		return common.Address{}, err
	}
	addr, err := keys.DeriveAccountAddress(key.Bytes)
	if err != nil {
		return common.Address{}, errors.Wrapf(err, "key %s", keyName)
	}
	return addr, nil
}

func withEVMAddress(keyName string, fn func(env *bdd.Env, addr common.Address) error) bdd.Step {
	return bdd.Func{
		Name: "withEVMAddress " + keyName,
		Fn: func(env *bdd.Env) error {
			addr, err := evmAddress(env, keyName)
			if err != nil {
				return err
			}
			return fn(env, addr)
		},
	}
}

// assertStillHollow checks that the account at the key's address has no key yet.
func assertStillHollow(keyName string) bdd.Step {
	return withEVMAddress(keyName, func(env *bdd.Env, addr common.Address) error {
		return env.Exec(bdd.GetAccountInfo{
			Account: bdd.AliasOf(addr.Bytes()),
			Expect:  bdd.AccountWith().EmptyKey().EvmAddress(addr).NoKeyAlias(),
		})
	})
}

// completeHollow finalizes the hollow account of keyName by paying for a
// transfer between its fixture accounts with the key.
func completeHollow(keyName, via string) bdd.Step {
	return bdd.Transfer{
		From:     bdd.Named(keyName + bdd.SponsorSuffix),
		To:       bdd.Named(keyName + bdd.ReceiverSuffix),
		Amount:   ledger.OneHundredHbars,
		Payer:    keyName,
		SignedBy: []string{keyName},
		Via:      via,
	}
}

func distinctAccounts(a, b string) bdd.Step {
	return bdd.Func{
		Name: "distinctAccounts",
		Fn: func(env *bdd.Env) error {
			idA, err := env.Registry.AccountID(a)
			if err != nil {
				return err
			}
			idB, err := env.Registry.AccountID(b)
			if err != nil {
				return err
			}
			if idA == idB {
				return errors.Errorf("%s and %s share account %v", a, b, idA)
			}
			return nil
		},
	}
}
