package gazetteer

import (
	"errors"
	"fmt"
)

// MalformedReferenceError reports reference data that fails schema or
// hierarchy validation. It is the only fatal condition for resolution: no
// rows are processed against a gazetteer that could not be built.
type MalformedReferenceError struct {
	Code   string // offending entity code or column name, if any
	Reason string
}

func (e *MalformedReferenceError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("malformed reference: %s", e.Reason)
	}
	return fmt.Sprintf("malformed reference: %s (%s)", e.Reason, e.Code)
}

func malformed(code, format string, args ...any) *MalformedReferenceError {
	return &MalformedReferenceError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// IsMalformedReference returns true if err (or any error in its chain) is a
// MalformedReferenceError.
func IsMalformedReference(err error) bool {
	var me *MalformedReferenceError
	return errors.As(err, &me)
}
