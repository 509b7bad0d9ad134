package submit

import "errors"

var (
	ErrRegistration = errors.New("registration failed")
	ErrRunCreation  = errors.New("run creation failed")

	ErrUnknownParameter = errors.New("unknown parameter")
	ErrMissingParameter = errors.New("missing parameter value")
)

// Error is a submission failure. Kind is ErrRegistration or ErrRunCreation;
// Err is the underlying cause and is surfaced unchanged.
type Error struct {
	Kind error
	Err  error
}

func (e *Error) Error() string {
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
