package compile

import "errors"

var (
	ErrCyclicGraph      = errors.New("dependency graph contains a cycle")
	ErrDanglingEdge     = errors.New("edge references an undeclared step")
	ErrDuplicateStep    = errors.New("duplicate step in graph")
	ErrInvalidMetadata  = errors.New("invalid pipeline metadata")
	ErrInvalidDocument  = errors.New("invalid workflow document")
	ErrUnsupportedShape = errors.New("unsupported workflow document version")
)

// Error reports why a graph could not be compiled or a document decoded.
type Error struct {
	Err    error
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return "compile: " + e.Err.Error()
	}
	return "compile: " + e.Err.Error() + ": " + e.Detail
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(err error, detail string) *Error {
	return &Error{Err: err, Detail: detail}
}
