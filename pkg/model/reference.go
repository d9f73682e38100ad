package model

import (
	"errors"
	"fmt"
	"strings"
)

// MaxReferenceLength is the longest object reference accepted, including
// an optional functional constraint suffix.
const MaxReferenceLength = 129

// Model errors.
var (
	ErrObjectNotFound   = errors.New("object not found")
	ErrAccessDenied     = errors.New("access denied")
	ErrInvalidReference = errors.New("invalid object reference")
	ErrAlreadyExists    = errors.New("object already exists")
	ErrNotDeletable     = errors.New("object not deletable")
	ErrModelTooDeep     = errors.New("model nesting exceeds depth limit")
)

// ObjectReference is a hierarchical path to an object on the device:
//
//	<logicalDevice>/<logicalNode>.<dataObject>.<dataAttribute>...
//
// Dataset members may carry a functional constraint suffix, e.g.
// "simpleIOGenericIO/GGIO1.AnIn1[MX]".
//
// References are opaque values. The package only validates them and builds
// child references by appending segments.
type ObjectReference string

// String returns the reference as a plain string.
func (r ObjectReference) String() string {
	return string(r)
}

// Validate checks the structural shape of the reference.
func (r ObjectReference) Validate() error {
	s := string(r)
	if s == "" {
		return fmt.Errorf("%w: empty", ErrInvalidReference)
	}
	if len(s) > MaxReferenceLength {
		return fmt.Errorf("%w: %d characters exceeds %d", ErrInvalidReference, len(s), MaxReferenceLength)
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidReference, s)
	}

	base, _, hasFC := r.SplitFC()
	if (hasFC && base == r) || strings.ContainsAny(string(base), "[]") {
		return fmt.Errorf("%w: %q has a malformed functional constraint", ErrInvalidReference, s)
	}

	ld, rest, found := strings.Cut(string(base), "/")
	if !found || ld == "" || rest == "" {
		return fmt.Errorf("%w: %q is not of the form <LD>/<LN>", ErrInvalidReference, s)
	}
	if strings.Contains(rest, "/") {
		return fmt.Errorf("%w: %q has more than one '/'", ErrInvalidReference, s)
	}
	for _, seg := range strings.Split(rest, ".") {
		if seg == "" {
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidReference, s)
		}
	}
	return nil
}

// Child returns the reference of a named child object (r + "." + name).
func (r ObjectReference) Child(name string) (ObjectReference, error) {
	if name == "" || strings.ContainsAny(name, "./[] ") {
		return "", fmt.Errorf("%w: bad child name %q", ErrInvalidReference, name)
	}
	child := ObjectReference(string(r) + "." + name)
	if len(child) > MaxReferenceLength {
		return "", fmt.Errorf("%w: %d characters exceeds %d", ErrInvalidReference, len(child), MaxReferenceLength)
	}
	return child, nil
}

// WithFC returns the reference qualified with a functional constraint.
func (r ObjectReference) WithFC(fc FC) ObjectReference {
	return ObjectReference(string(r) + "[" + string(fc) + "]")
}

// SplitFC separates a trailing "[FC]" suffix from the reference.
// The boolean reports whether a bracket suffix was present at all; an
// unparsable suffix returns the input unchanged.
func (r ObjectReference) SplitFC() (ObjectReference, FC, bool) {
	s := string(r)
	if !strings.HasSuffix(s, "]") {
		return r, "", false
	}
	open := strings.LastIndexByte(s, '[')
	if open <= 0 {
		return r, "", true
	}
	fc := FC(s[open+1 : len(s)-1])
	if !fc.IsValid() {
		return r, "", true
	}
	return ObjectReference(s[:open]), fc, true
}

// LogicalNodeRef joins a logical device and logical node name.
func LogicalNodeRef(ld, ln string) (ObjectReference, error) {
	if ld == "" || ln == "" {
		return "", fmt.Errorf("%w: empty logical device or node name", ErrInvalidReference)
	}
	ref := ObjectReference(ld + "/" + ln)
	if len(ref) > MaxReferenceLength {
		return "", fmt.Errorf("%w: %d characters exceeds %d", ErrInvalidReference, len(ref), MaxReferenceLength)
	}
	return ref, nil
}

// References converts plain strings to object references.
func References(refs ...string) []ObjectReference {
	out := make([]ObjectReference, len(refs))
	for i, r := range refs {
		out[i] = ObjectReference(r)
	}
	return out
}
