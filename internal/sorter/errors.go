package sorter

import (
	"errors"
	"fmt"
)

// FatalConfigError means the reference table could not be loaded. It is
// raised before any page is read and no output files exist.
type FatalConfigError struct {
	Path string
	Err  error
}

func (e *FatalConfigError) Error() string {
	return fmt.Sprintf("reference table %s unusable: %v", e.Path, e.Err)
}

func (e *FatalConfigError) Unwrap() error { return e.Err }

// IsFatalConfig reports whether err is a *FatalConfigError.
func IsFatalConfig(err error) bool {
	var fce *FatalConfigError
	return errors.As(err, &fce)
}

// DocumentError means the input could not be fetched, recognised as a PDF,
// or opened.
type DocumentError struct {
	Ref    string
	Reason string
	Err    error
}

func (e *DocumentError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("document %s: %s", e.Ref, e.Reason)
	}
	return fmt.Sprintf("document %s: %s: %v", e.Ref, e.Reason, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }
