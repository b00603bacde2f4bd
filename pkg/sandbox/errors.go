package sandbox

import "fmt"

// ErrorKind is the category of a PathError.
type ErrorKind int

const (
	// Escape indicates the path would resolve outside the root, either
	// syntactically through ".." or through a symbolic link.
	Escape ErrorKind = iota

	// Malformed indicates the path is not acceptable as input: empty,
	// containing NUL bytes, invalid UTF-8 or empty segments.
	Malformed
)

func (k ErrorKind) String() string {
	switch k {
	case Escape:
		return "path escapes root"
	case Malformed:
		return "malformed path"
	default:
		return "invalid path"
	}
}

// PathError reports a client path that cannot be resolved inside the root.
type PathError struct {
	Kind ErrorKind

	// Path is the client supplied path.
	Path string

	// Reason adds detail for Malformed errors.
	Reason string
}

func (e *PathError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s: %q", e.Kind, e.Reason, e.Path)
	}
	return fmt.Sprintf("%s: %q", e.Kind, e.Path)
}

func escape(p string) error {
	return &PathError{Kind: Escape, Path: p}
}

func malformed(p, reason string) error {
	return &PathError{Kind: Malformed, Path: p, Reason: reason}
}
