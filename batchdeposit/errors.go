package batchdeposit

import (
	"fmt"
	"strings"
)

// ErrorKind is the closed set of failures a contract operation can report
type ErrorKind uint8

const (
	// KindMalformedBatch is a structural length mismatch in the request
	KindMalformedBatch ErrorKind = iota + 1
	// KindAmountOutOfRange is a variable-mode record amount outside [32, 2048] ETH
	KindAmountOutOfRange
	// KindInsufficientFunding is attached funding below n * 32 ETH
	KindInsufficientFunding
	// KindFundingMisalignment is funding above the floor that does not match the required total
	KindFundingMisalignment
	// KindOperationSuspended is a deposit attempted while paused
	KindOperationSuspended
	// KindAlreadyPaused is a pause of a paused contract
	KindAlreadyPaused
	// KindNotPaused is an unpause of an active contract
	KindNotPaused
	// KindUnauthorized is an owner-only call from another account
	KindUnauthorized
	// KindOperationDisabled is a call to an operation this instance never allows
	KindOperationDisabled
	// KindTransferFailed is a withdrawal whose transfer could not be completed
	KindTransferFailed
	// KindDepositLedgerRejected is a record refused by the deposit ledger
	KindDepositLedgerRejected
	// KindInvalidArgument is a zero owner or a negative fee
	KindInvalidArgument
	// KindReentrantCall is an operation started while another one is still running on the same call path
	KindReentrantCall
)

var kindNames = map[ErrorKind]string{
	KindMalformedBatch:        "MalformedBatch",
	KindAmountOutOfRange:      "AmountOutOfRange",
	KindInsufficientFunding:   "InsufficientFunding",
	KindFundingMisalignment:   "FundingMisalignment",
	KindOperationSuspended:    "OperationSuspended",
	KindAlreadyPaused:         "AlreadyPaused",
	KindNotPaused:             "NotPaused",
	KindUnauthorized:          "Unauthorized",
	KindOperationDisabled:     "OperationDisabled",
	KindTransferFailed:        "TransferFailed",
	KindDepositLedgerRejected: "DepositLedgerRejected",
	KindInvalidArgument:       "InvalidArgument",
	KindReentrantCall:         "ReentrantCall",
}

// String implements fmt.Stringer
func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// FundingExpectation tells which mode's funding rule a FundingMisalignment violated
type FundingExpectation string

const (
	// ExpectFee means the funding must be n * 32 ETH plus n * fee
	ExpectFee FundingExpectation = "fee-expected"
	// ExpectExactAmount means the funding must equal the sum of the record amounts
	ExpectExactAmount FundingExpectation = "amount-exact"
)

// Error is returned by every failed contract operation
type Error struct {
	Kind ErrorKind
	// Index is the offending record, or -1 when the failure is not tied to one
	Index       int
	Expectation FundingExpectation
	Reason      string
	// Err is the untouched cause reported by the deposit ledger or the funds transferer
	Err error
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Index: -1, Reason: fmt.Sprintf(format, args...)}
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("batch deposit: ")
	b.WriteString(e.Kind.String())
	if e.Expectation != "" {
		b.WriteString(" (" + string(e.Expectation) + ")")
	}
	if e.Index >= 0 {
		fmt.Fprintf(&b, " at record %d", e.Index)
	}
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the ledger or transfer failure, if any
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by kind. A target with an Expectation also has to match it.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Expectation == "" || t.Expectation == e.Expectation
}

// Sentinels to be used with errors.Is
var (
	ErrMalformedBatch        = &Error{Kind: KindMalformedBatch, Index: -1}
	ErrAmountOutOfRange      = &Error{Kind: KindAmountOutOfRange, Index: -1}
	ErrInsufficientFunding   = &Error{Kind: KindInsufficientFunding, Index: -1}
	ErrFundingMisalignment   = &Error{Kind: KindFundingMisalignment, Index: -1}
	ErrFeeExpected           = &Error{Kind: KindFundingMisalignment, Index: -1, Expectation: ExpectFee}
	ErrAmountExact           = &Error{Kind: KindFundingMisalignment, Index: -1, Expectation: ExpectExactAmount}
	ErrOperationSuspended    = &Error{Kind: KindOperationSuspended, Index: -1}
	ErrAlreadyPaused         = &Error{Kind: KindAlreadyPaused, Index: -1}
	ErrNotPaused             = &Error{Kind: KindNotPaused, Index: -1}
	ErrUnauthorized          = &Error{Kind: KindUnauthorized, Index: -1}
	ErrOperationDisabled     = &Error{Kind: KindOperationDisabled, Index: -1}
	ErrTransferFailed        = &Error{Kind: KindTransferFailed, Index: -1}
	ErrDepositLedgerRejected = &Error{Kind: KindDepositLedgerRejected, Index: -1}
	ErrInvalidArgument       = &Error{Kind: KindInvalidArgument, Index: -1}
	ErrReentrantCall         = &Error{Kind: KindReentrantCall, Index: -1}
)
