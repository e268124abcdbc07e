package decl

// Kind is the closed set of declaration kinds the extractor knows about. Anything a syntax view reports that is not documentable uses KindUnsupported.
type Kind int

const (
	KindUnsupported Kind = iota
	KindMethod
	KindConstructor
	KindTestMethod // a method annotated as a test entry point (ex: @Test)
	KindClass
	KindInterface
	KindEnum
	KindRecord
	KindAnnotation // an annotation type (@interface)
	KindField
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindMethod:
		return "method"
	case KindConstructor:
		return "constructor"
	case KindTestMethod:
		return "test method"
	case KindClass:
		return "class"
	case KindInterface:
		return "interface"
	case KindEnum:
		return "enum"
	case KindRecord:
		return "record"
	case KindAnnotation:
		return "annotation"
	case KindField:
		return "field"
	default:
		return "unsupported"
	}
}

// IsType reports whether k declares a type (class, interface, enum, record, or annotation type).
func (k Kind) IsType() bool {
	switch k {
	case KindClass, KindInterface, KindEnum, KindRecord, KindAnnotation:
		return true
	}
	return false
}

// IsCallable reports whether k has a parameter list (methods, test methods, and constructors).
func (k Kind) IsCallable() bool {
	switch k {
	case KindMethod, KindConstructor, KindTestMethod:
		return true
	}
	return false
}

// Supported reports whether declarations of kind k can be documented.
func (k Kind) Supported() bool {
	return k != KindUnsupported
}
