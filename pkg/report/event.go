package report

import (
	"time"

	"github.com/iedlink/iedlink-go/pkg/model"
	"github.com/iedlink/iedlink-go/pkg/wire"
)

// Event is one report delivered to a handler.
type Event struct {
	RCBReference model.ObjectReference
	ReportID     string
	DataSet      model.ObjectReference
	SeqNum       uint32
	ConfRev      uint32

	// EntryID is set for buffered reports only.
	EntryID []byte

	Timestamp time.Time

	// Values and Reasons are in dataset entry order and always have the
	// same length.
	Values  model.ValueCollection
	Reasons []ReasonForInclusion

	// Entries holds the dataset members when the layout is known to the
	// session, nil otherwise.
	Entries []model.ObjectReference
}

// Included returns the indexes of entries carried for a reason other than
// ReasonNotIncluded.
func (e *Event) Included() []int {
	var idx []int
	for i, r := range e.Reasons {
		if r != ReasonNotIncluded {
			idx = append(idx, i)
		}
	}
	return idx
}

// EntryName returns the member reference of entry i, or "" when the
// layout is unknown.
func (e *Event) EntryName(i int) model.ObjectReference {
	if i < 0 || i >= len(e.Entries) {
		return ""
	}
	return e.Entries[i]
}

// Handler receives report events. It runs on the dispatcher goroutine
// and should return quickly.
type Handler func(ev *Event)

func eventFromWire(rpt *wire.Report) *Event {
	ev := &Event{
		RCBReference: rpt.RCBRef,
		ReportID:     rpt.ReportID,
		DataSet:      rpt.DataSet,
		SeqNum:       rpt.SeqNum,
		ConfRev:      rpt.ConfRev,
		EntryID:      rpt.EntryID,
		Values:       rpt.Values,
		Reasons:      make([]ReasonForInclusion, len(rpt.Reasons)),
	}
	if rpt.Timestamp != 0 {
		ev.Timestamp = time.UnixMilli(rpt.Timestamp).UTC()
	}
	for i, r := range rpt.Reasons {
		ev.Reasons[i] = ReasonForInclusion(r)
	}
	return ev
}
