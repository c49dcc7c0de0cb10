package upload

import "fmt"

type (
	// ValidationError indicates the upload request was rejected before any
	// chunk was sent (missing source, unsupported type, illegal size).
	// Never retryable.
	ValidationError struct{ reason string }

	// TargetRejectedError indicates the write target refused a chunk with
	// a hard, non-retryable rejection (e.g. expired authorization).
	TargetRejectedError struct{ StatusCode int }

	// TransientTransferError wraps a transport-level failure that is safe
	// to retry within the chunks bounded attempt budget.
	TransientTransferError struct{ cause error }

	// RetriesExhaustedError indicates a single chunk consumed its entire
	// attempt budget; the owning session transitions to FAILED.
	RetriesExhaustedError struct {
		PartNumber int
		Attempts   int
		LastErr    error
	}
)

func (err *ValidationError) Error() string { return fmt.Sprintf("invalid upload request: %s", err.reason) }

func (err *TargetRejectedError) Error() string {
	return fmt.Sprintf("write target rejected chunk (HTTP %d)", err.StatusCode)
}

func (err *TransientTransferError) Error() string {
	return fmt.Sprintf("transient transfer failure: %s", err.cause)
}
func (err *TransientTransferError) Unwrap() error { return err.cause }

func (err *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("chunk %d failed after %d attempts: %s", err.PartNumber, err.Attempts, err.LastErr)
}
func (err *RetriesExhaustedError) Unwrap() error { return err.LastErr }
