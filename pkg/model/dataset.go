package model

import (
	"fmt"
)

// DataSet is a named, ordered collection of object references. Entry order
// is canonical: reads and reports return values in this order.
type DataSet struct {
	Reference ObjectReference
	Entries   []ObjectReference
	Deletable bool
}

// Validate checks the dataset reference and every entry.
func (d *DataSet) Validate() error {
	if err := d.Reference.Validate(); err != nil {
		return fmt.Errorf("dataset reference: %w", err)
	}
	if len(d.Entries) == 0 {
		return fmt.Errorf("%w: dataset %s has no entries", ErrInvalidReference, d.Reference)
	}
	for i, e := range d.Entries {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("dataset entry %d: %w", i, err)
		}
	}
	return nil
}

// IndexOf returns the position of ref in the entry list, or -1.
func (d *DataSet) IndexOf(ref ObjectReference) int {
	for i, e := range d.Entries {
		if e == ref {
			return i
		}
	}
	return -1
}

// Clone returns a copy that shares no memory with d.
func (d *DataSet) Clone() *DataSet {
	c := *d
	c.Entries = append([]ObjectReference(nil), d.Entries...)
	return &c
}
