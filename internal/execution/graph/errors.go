package graph

import (
	"errors"
	"strings"
)

var (
	ErrUnknownStepReference      = errors.New("unknown step reference")
	ErrUnknownOutputReference    = errors.New("unknown output reference")
	ErrUnknownParameterReference = errors.New("unknown parameter reference")
	ErrTypeMismatch              = errors.New("type mismatch")
	ErrDuplicateStepName         = errors.New("duplicate step name")
	ErrDuplicateInputName        = errors.New("duplicate input name")
	ErrInvalidStep               = errors.New("invalid step")
	ErrInvalidParameter          = errors.New("invalid parameter")
)

// Issue is a single graph validation failure.
type Issue struct {
	Kind   error
	Where  string
	Detail string
}

func (i Issue) Error() string {
	var b strings.Builder
	if i.Where != "" {
		b.WriteString(i.Where)
		b.WriteString(": ")
	}
	b.WriteString(i.Kind.Error())
	if i.Detail != "" {
		b.WriteString(": ")
		b.WriteString(i.Detail)
	}
	return b.String()
}

// Error aggregates graph validation issues in declaration order. errors.Is
// matches any of the collected issue kinds.
type Error struct {
	Issues []Issue
}

func (e *Error) Error() string {
	if len(e.Issues) == 0 {
		return "pipeline graph invalid"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.Error())
	}
	return "pipeline graph invalid: " + strings.Join(parts, "; ")
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, len(e.Issues))
	for _, issue := range e.Issues {
		out = append(out, issue.Kind)
	}
	return out
}

func (e *Error) Add(kind error, where, detail string) {
	if kind == nil {
		return
	}
	e.Issues = append(e.Issues, Issue{Kind: kind, Where: where, Detail: detail})
}

func (e *Error) OrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}
