package journal

import "fmt"

// ErrInternal is returned when the archive fails underneath the journal.
type ErrInternal struct {
	Err error
}

func (e *ErrInternal) Error() string {
	return fmt.Sprintf("internal error: %v", e.Err)
}

func (e *ErrInternal) Unwrap() error {
	return e.Err
}

// ErrDataCorruption is returned when an archived record can not be decoded.
type ErrDataCorruption struct {
	Key    string
	Reason string
}

func (e *ErrDataCorruption) Error() string {
	return fmt.Sprintf("data corruption for key %s: %s", e.Key, e.Reason)
}

// ErrClosed is returned by operations on a closed journal.
type ErrClosed struct{}

func (e *ErrClosed) Error() string {
	return "journal is closed"
}
