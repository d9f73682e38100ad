package forward

import (
	"encoding/hex"
	"encoding/json"
	"math"
	"time"

	"github.com/iedlink/iedlink-go/pkg/model"
	"github.com/iedlink/iedlink-go/pkg/report"
)

// Message is the JSON document published for one report.
type Message struct {
	RCB       string  `json:"rcb"`
	ReportID  string  `json:"reportId"`
	DataSet   string  `json:"dataSet,omitempty"`
	SeqNum    uint32  `json:"seqNum"`
	ConfRev   uint32  `json:"confRev,omitempty"`
	EntryID   string  `json:"entryId,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
	Entries   []Entry `json:"entries"`
}

// Entry is one dataset member carried by a report.
type Entry struct {
	Index     int    `json:"index"`
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type"`
	Value     any    `json:"value"`
	Reason    string `json:"reason"`
}

// NewMessage converts a report event. Only entries with an inclusion
// reason are carried.
func NewMessage(ev *report.Event) *Message {
	m := &Message{
		RCB:      string(ev.RCBReference),
		ReportID: ev.ReportID,
		DataSet:  string(ev.DataSet),
		SeqNum:   ev.SeqNum,
		ConfRev:  ev.ConfRev,
		Entries:  []Entry{},
	}
	if len(ev.EntryID) > 0 {
		m.EntryID = hex.EncodeToString(ev.EntryID)
	}
	if !ev.Timestamp.IsZero() {
		m.Timestamp = ev.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	for _, i := range ev.Included() {
		if i >= len(ev.Values) {
			break
		}
		v := ev.Values[i]
		m.Entries = append(m.Entries, Entry{
			Index:     i,
			Reference: string(ev.EntryName(i)),
			Type:      v.Type.String(),
			Value:     jsonValue(v),
			Reason:    ev.Reasons[i].String(),
		})
	}
	return m
}

// Marshal encodes the message as JSON.
func (m *Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// jsonValue maps a value to a JSON-friendly Go value. Non-finite floats
// and access errors become strings.
func jsonValue(v model.Value) any {
	switch v.Type {
	case model.TypeBoolean:
		return v.Bool
	case model.TypeInteger:
		return v.Int
	case model.TypeUnsigned:
		return v.Uint
	case model.TypeFloat:
		if math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
			return v.String()
		}
		return v.Float
	case model.TypeVisibleString:
		return v.Str
	case model.TypeOctetString:
		return hex.EncodeToString(v.Bytes)
	case model.TypeUTCTime:
		t, _ := v.AsTime()
		return t.Format(time.RFC3339Nano)
	case model.TypeStructure, model.TypeArray:
		elems := make([]any, len(v.Elements))
		for i, e := range v.Elements {
			elems[i] = jsonValue(e)
		}
		return elems
	default:
		return v.String()
	}
}
