package utils

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrorRecordNotFound  = errors.New("record not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPartialApply      = errors.New("order rolled back after partial apply")
	ErrTimeout           = errors.New("timed out waiting for stock lock")
	ErrInternal          = errors.New("internal error")
	// ErrStockConflict means the product row changed between read and write.
	// The consistency guard retries on it; callers should not see it.
	ErrStockConflict = errors.New("stock changed concurrently")

	ErrInvalidArgument = fmt.Errorf("%w: invalid argument", ErrValidation)
	ErrEmptyOrder      = fmt.Errorf("%w: order has no lines", ErrValidation)
	ErrInvalidLine     = fmt.Errorf("%w: invalid order line", ErrValidation)
)

// error kinds, stable names shown to API clients and written to logs
const (
	KindValidation        = "ValidationError"
	KindInvalidArgument   = "InvalidArgument"
	KindNotFound          = "NotFound"
	KindInsufficientStock = "InsufficientStock"
	KindPartialApply      = "PartialApplyFailure"
	KindTimeout           = "Timeout"
	KindInternal          = "InternalError"
)

// LineError ties a failure to one order line (Index is zero-based).
type LineError struct {
	Index     int
	ProductId string
	Err       error
}

func (e *LineError) Error() string {
	if e.ProductId == "" {
		return fmt.Sprintf("line %d: %v", e.Index+1, e.Err)
	}
	return fmt.Sprintf("line %d (product %s): %v", e.Index+1, e.ProductId, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// PartialApplyError is returned when a multi-line order failed after earlier
// lines were already applied. Everything was rolled back.
type PartialApplyError struct {
	LineError
}

func (e *PartialApplyError) Error() string {
	return ErrPartialApply.Error() + ": " + e.LineError.Error()
}

func (e *PartialApplyError) Unwrap() []error {
	return []error{ErrPartialApply, &e.LineError}
}

func NewLineError(index int, productId string, err error) error {
	return &LineError{Index: index, ProductId: productId, Err: err}
}

func NewPartialApplyError(index int, productId string, err error) error {
	return &PartialApplyError{LineError{Index: index, ProductId: productId, Err: err}}
}

// ErrorKind classifies err into the error taxonomy.
// A partial-apply failure is classified by its cause.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrStockConflict), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrorRecordNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrPartialApply):
		return KindPartialApply
	}
	return KindInternal
}

// PublicMessage is the message safe to return to a caller.
// Internal errors never leak storage details.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if ErrorKind(err) == KindInternal {
		return ErrInternal.Error()
	}
	return err.Error()
}
