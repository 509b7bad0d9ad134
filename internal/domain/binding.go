package domain

import "fmt"

// BindingKind selects which variant of Binding is populated.
type BindingKind string

const (
	BindingLiteral   BindingKind = "literal"
	BindingReference BindingKind = "reference"
	BindingParameter BindingKind = "parameter"
)

// Binding is the source of a step input value: a literal, another step's
// output, or a pipeline parameter. Construct it with Literal, Reference or
// Parameter.
type Binding struct {
	Kind      BindingKind
	Value     any
	Step      string
	Output    string
	Parameter string
}

func Literal(value any) Binding {
	return Binding{Kind: BindingLiteral, Value: value}
}

func Reference(step, output string) Binding {
	return Binding{Kind: BindingReference, Step: step, Output: output}
}

func Parameter(name string) Binding {
	return Binding{Kind: BindingParameter, Parameter: name}
}

func (b Binding) String() string {
	switch b.Kind {
	case BindingLiteral:
		return fmt.Sprintf("literal(%v)", b.Value)
	case BindingReference:
		return fmt.Sprintf("%s.%s", b.Step, b.Output)
	case BindingParameter:
		return "params." + b.Parameter
	default:
		return "unbound"
	}
}
