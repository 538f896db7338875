package ledger

import "fmt"

// Status is a node response code.
type Status string

const (
	StatusSuccess                   Status = "SUCCESS"
	StatusOK                        Status = "OK"
	StatusInvalidAccountID          Status = "INVALID_ACCOUNT_ID"
	StatusInvalidAccountAmounts     Status = "INVALID_ACCOUNT_AMOUNTS"
	StatusInsufficientAccountBal    Status = "INSUFFICIENT_ACCOUNT_BALANCE"
	StatusInsufficientPayerBalance  Status = "INSUFFICIENT_PAYER_BALANCE"
	StatusPayerAccountNotFound      Status = "PAYER_ACCOUNT_NOT_FOUND"
	StatusInvalidAliasKey           Status = "INVALID_ALIAS_KEY"
	StatusKeyRequired               Status = "KEY_REQUIRED"
	StatusBadEncoding               Status = "BAD_ENCODING"
	StatusInvalidInitialBalance     Status = "INVALID_INITIAL_BALANCE"
	StatusAccountRepeatedInList     Status = "ACCOUNT_REPEATED_IN_ACCOUNT_AMOUNTS"
	StatusReceiptNotFound           Status = "RECEIPT_NOT_FOUND"
	StatusRecordNotFound            Status = "RECORD_NOT_FOUND"
	StatusInvalidSignature          Status = "INVALID_SIGNATURE"
	StatusAutoRenewDurationNotInRng Status = "AUTORENEW_DURATION_NOT_IN_RANGE"
)

// PrecheckErrorCode is the JSON-RPC error code carrying a precheck failure. The
// error data holds the status.
const PrecheckErrorCode = -32090

// PrecheckError is returned when the node rejects a transaction or query before it
// reaches consensus.
type PrecheckError struct {
	Status Status
}

func (e *PrecheckError) Error() string {
	return fmt.Sprintf("precheck failed: %s", e.Status)
}

// ErrorCode implements rpc.Error.
func (e *PrecheckError) ErrorCode() int { return PrecheckErrorCode }

// ErrorData implements rpc.DataError.
func (e *PrecheckError) ErrorData() interface{} { return string(e.Status) }

// StatusError reports a transaction that reached consensus with a status other
// than the expected one.
type StatusError struct {
	TxnID TxnID
	Want  Status
	Got   Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("txn %s: wrong status %s, want %s", e.TxnID, e.Got, e.Want)
}
