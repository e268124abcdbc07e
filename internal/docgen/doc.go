package docgen

import "slices"

// ParamDoc documents one parameter.
type ParamDoc struct {
	Name        string
	Description string
}

// ThrowsDoc documents one declared exception type.
type ThrowsDoc struct {
	Type        string // spelled as in the declaration's throws clause
	Description string
}

// Doc is validated generated documentation for one declaration. Params are in parameter order and Throws in declaration order. Fields for tags that were not requested
// are empty.
type Doc struct {
	Summary string
	Params  []ParamDoc
	Return  string
	Throws  []ThrowsDoc
	Since   string
	Author  string
}

func (d Doc) clone() Doc {
	d.Params = slices.Clone(d.Params)
	d.Throws = slices.Clone(d.Throws)
	return d
}
