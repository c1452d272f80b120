package llms

import "context"

// Stream is an open generation response. Fragments yields in arrival order;
// a non-nil error ends the sequence.
type Stream interface {
	Fragments(context.Context) func(func(Fragment, error) bool)
}

// Fragment is one incremental unit of a generation response.
type Fragment struct {
	// TextDelta is appended to the response text, possibly empty.
	TextDelta string
	// Citations are grounding sources reported alongside this fragment.
	Citations []Citation
}

// Citation is a grounding source. URI identifies it.
type Citation struct {
	Title string
	URI   string
}
