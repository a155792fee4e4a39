package troubleshoot

import (
	"fmt"
	"strings"
	"unicode/utf8"

	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

// Reason identifies why a trace was rejected.
type Reason string

// Rejection reasons.
const (
	ReasonEmptyTrace    Reason = "EmptyTrace"
	ReasonTraceTooLarge Reason = "TraceTooLarge"
	ReasonInvalidTrace  Reason = "InvalidTrace"
)

// ValidationError is returned by Analyze when a trace is rejected before any
// stage runs. It matches apiv1.ErrInvalidRequest under errors.Is.
type ValidationError struct {
	Reason  Reason
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// Is reports whether target is apiv1.ErrInvalidRequest.
func (e *ValidationError) Is(target error) bool {
	return target == apiv1.ErrInvalidRequest
}

// validate checks a raw trace. maxSize is measured in characters.
func validate(trace string, maxSize int, isValid func(string) bool) *ValidationError {
	if strings.TrimSpace(trace) == "" {
		return &ValidationError{Reason: ReasonEmptyTrace, Message: "trace is empty"}
	}
	if n := utf8.RuneCountInString(trace); maxSize > 0 && n > maxSize {
		return &ValidationError{
			Reason:  ReasonTraceTooLarge,
			Message: fmt.Sprintf("trace has %d characters, limit is %d", n, maxSize),
		}
	}
	if !isValid(trace) {
		return &ValidationError{
			Reason:  ReasonInvalidTrace,
			Message: "input is not a Python traceback",
		}
	}
	return nil
}
