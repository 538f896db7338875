package bdd

import (
	"github.com/hapisim/hapisim/keys"
	"github.com/hapisim/hapisim/ledger"
	"github.com/pkg/errors"
)

// Create1TransferAmount is sent to the CREATE1 address derived from a hollow
// account's EVM address.
const Create1TransferAmount = ledger.OneHbar

// ReceiverBalance is the initial balance of the receiver fixture created by
// HollowAccountFrom.
const ReceiverBalance = 1000 * ledger.OneHbar

// Fixture name suffixes used by HollowAccountFrom.
const (
	SponsorSuffix    = ".sponsor"
	ReceiverSuffix   = ".receiver"
	HollowTxnSuffix  = ".hollowTxn"
	Create1TxnSuffix = ".create1Txn"
)

// DefaultHollowAccountFrom is HollowAccountFrom with a 1000 hbar sponsor sending
// 100 hbar.
func DefaultHollowAccountFrom(keyName string) Step {
	return HollowAccountFrom(keyName, 1000*ledger.OneHbar, ledger.OneHundredHbars)
}

// HollowAccountFrom creates a hollow account at the EVM address of the ECDSA key
// registered as keyName, and registers the resulting account id under keyName.
//
// It funds a sponsor with sponsorBalance, transfers transferAmount from it to the
// key's address and checks that the node materialized a keyless account holding
// exactly that amount. A second transfer goes to the CREATE1 address the new
// account would deploy its first contract to. The account id is taken from the
// first non-staking child record of the first transfer.
//
// The caller is responsible for sponsorBalance > transferAmount > 0; violating it
// fails the transfer, not this step.
func HollowAccountFrom(keyName string, sponsorBalance, transferAmount int64) Step {
	return Func{
		Name: "hollowAccountFrom " + keyName,
		Fn: func(env *Env) error {
			key, err := env.Registry.Key(keyName)
			if err != nil {
				return err
			}
			addr, err := keys.DeriveAccountAddress(key.Bytes)
			if err != nil {
				return errors.Wrapf(err, "key %s", keyName)
			}
			create1 := keys.DeriveCreate1Address(addr, 0)
			env.Log.Debug("derived hollow account addresses", "key", keyName, "addr", addr, "create1", create1)

			var (
				sponsor  = keyName + SponsorSuffix
				receiver = keyName + ReceiverSuffix
				txn      = keyName + HollowTxnSuffix
				txn2     = keyName + Create1TxnSuffix
				record   *ledger.Record
			)
			return env.Run(
				CreateAccount{Name: sponsor, Balance: sponsorBalance},
				CreateAccount{Name: receiver, Balance: ReceiverBalance},
				Transfer{
					From:   Named(sponsor),
					To:     AliasOf(addr.Bytes()),
					Amount: transferAmount,
					Via:    txn,
				},
				GetAccountInfo{
					Account: AliasOf(addr.Bytes()),
					Expect: AccountWith().
						EmptyKey().
						Balance(transferAmount).
						AutoRenew(ledger.ThreeMonthsInSeconds).
						ReceiverSigRequired(false).
						Memo(ledger.LazyMemo),
				},
				Transfer{
					From:   Named(sponsor),
					To:     AliasOf(create1.Bytes()),
					Amount: Create1TransferAmount,
					Via:    txn2,
				},
				GetTxnRecord{
					Txn:             txn,
					IncludeChildren: true,
					Expose:          func(rec *ledger.Record) { record = rec },
				},
				Func{
					Name: "register " + keyName,
					Fn: func(env *Env) error {
						child, ok := record.FirstNonStakingChild()
						if !ok {
							return errors.Errorf("record of %s has no account creation child", txn)
						}
						id := child.Receipt.AccountID
						env.Registry.SaveAccountID(keyName, id)
						env.Registry.SaveAccountAlias(addr.Bytes(), id)
						return nil
					},
				},
			)
		},
	}
}

// UpdateRegistryFor looks up the account aliased by the key registered as
// keyName and saves its id under keyName. The serialized key and, when present,
// the EVM address are saved as aliases of the account.
func UpdateRegistryFor(keyName string) Step {
	return Func{
		Name: "updateRegistryFor " + keyName,
		Fn: func(env *Env) error {
			key, err := env.Registry.Key(keyName)
			if err != nil {
				return err
			}
			alias := key.Marshal()
			info, err := env.Node.GetAccountInfo(env.Ctx, ledger.ByAlias(alias))
			if err != nil {
				return err
			}
			env.Registry.SaveAccountID(keyName, info.AccountID)
			env.Registry.SaveAccountAlias(alias, info.AccountID)
			if len(info.EvmAddress) > 0 {
				env.Registry.SaveAccountAlias(info.EvmAddress, info.AccountID)
			}
			return nil
		},
	}
}
