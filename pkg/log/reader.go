package log

import (
	"errors"
	"io"
	"iter"
	"os"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects capture events. Zero-valued fields match everything.
type Filter struct {
	// ConnectionID matches connection IDs starting with this value, so a
	// shortened ID as printed by the viewer works.
	ConnectionID string

	Direction *Direction
	Layer     *Layer
	Category  *Category

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time

	RemoteAddr string

	// ReportID keeps only report messages with this report ID.
	ReportID string
}

// Match reports whether ev satisfies every criterion of f.
func (f Filter) Match(ev Event) bool {
	switch {
	case !strings.HasPrefix(ev.ConnectionID, f.ConnectionID):
		return false
	case f.Direction != nil && ev.Direction != *f.Direction:
		return false
	case f.Layer != nil && ev.Layer != *f.Layer:
		return false
	case f.Category != nil && ev.Category != *f.Category:
		return false
	case f.TimeStart != nil && ev.Timestamp.Before(*f.TimeStart):
		return false
	case f.TimeEnd != nil && !ev.Timestamp.Before(*f.TimeEnd):
		return false
	case f.RemoteAddr != "" && ev.RemoteAddr != f.RemoteAddr:
		return false
	case f.ReportID != "":
		return ev.Message != nil && ev.Message.Type == MessageTypeReport && ev.Message.ReportID == f.ReportID
	}
	return true
}

// Reader streams events from a capture file.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader opens path for reading every event.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens path for reading the events matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, decoder: NewDecoder(f), filter: filter}, nil
}

// Next returns the next matching event, or io.EOF at the end of the file.
func (r *Reader) Next() (Event, error) {
	for {
		var ev Event
		if err := r.decoder.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		if r.filter.Match(ev) {
			return ev, nil
		}
	}
}

// Events iterates the remaining matching events. A decode error is
// yielded once and ends the iteration.
func (r *Reader) Events() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			ev, err := r.Next()
			if err == io.EOF {
				return
			}
			if !yield(ev, err) || err != nil {
				return
			}
		}
	}
}

// ReadAll collects the remaining matching events.
func (r *Reader) ReadAll() ([]Event, error) {
	var events []Event
	for ev, err := range r.Events() {
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.file.Close()
}
