package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/iedlink/iedlink-go/pkg/model"
	"github.com/iedlink/iedlink-go/pkg/wire"
)

// TriggerOptions is the set of conditions that cause a report.
type TriggerOptions uint8

const (
	TriggerDataChange TriggerOptions = 1 << iota
	TriggerQualityChange
	TriggerDataUpdate
	TriggerIntegrity
	TriggerGI
)

// Has reports whether all options in o are set.
func (t TriggerOptions) Has(o TriggerOptions) bool {
	return t&o == o
}

var triggerNames = []struct {
	opt  TriggerOptions
	name string
}{
	{TriggerDataChange, "DataChange"},
	{TriggerQualityChange, "QualityChange"},
	{TriggerDataUpdate, "DataUpdate"},
	{TriggerIntegrity, "Integrity"},
	{TriggerGI, "GI"},
}

// String returns the set options joined with "|", or "none".
func (t TriggerOptions) String() string {
	var parts []string
	for _, n := range triggerNames {
		if t.Has(n.opt) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseTriggerOptions parses a "|" or "," separated list of option names
// (case-insensitive).
func ParseTriggerOptions(s string) (TriggerOptions, error) {
	var t TriggerOptions
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		part = strings.TrimSpace(part)
		found := false
		for _, n := range triggerNames {
			if strings.EqualFold(part, n.name) {
				t |= n.opt
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown trigger option %q", part)
		}
	}
	return t, nil
}

// ReasonForInclusion tells why a dataset entry is part of a report.
type ReasonForInclusion uint8

const (
	ReasonNotIncluded   ReasonForInclusion = 0
	ReasonDataChange    ReasonForInclusion = 1
	ReasonQualityChange ReasonForInclusion = 2
	ReasonDataUpdate    ReasonForInclusion = 4
	ReasonIntegrity     ReasonForInclusion = 8
	ReasonGI            ReasonForInclusion = 16
)

// String returns the reason name.
func (r ReasonForInclusion) String() string {
	switch r {
	case ReasonNotIncluded:
		return "not-included"
	case ReasonDataChange:
		return "data-change"
	case ReasonQualityChange:
		return "quality-change"
	case ReasonDataUpdate:
		return "data-update"
	case ReasonIntegrity:
		return "integrity"
	case ReasonGI:
		return "general-interrogation"
	default:
		return fmt.Sprintf("reason(%d)", uint8(r))
	}
}

// Field selects one writable RCB field for Commit.
type Field uint8

const (
	FieldReportID Field = iota + 1
	FieldDataSet
	FieldEnabled
	FieldTriggerOptions
	FieldIntegrityPeriod
	FieldBufferTime
	FieldGI
)

// String returns the field name as used on the device.
func (f Field) String() string {
	switch f {
	case FieldReportID:
		return "RptID"
	case FieldDataSet:
		return "DatSet"
	case FieldEnabled:
		return "RptEna"
	case FieldTriggerOptions:
		return "TrgOps"
	case FieldIntegrityPeriod:
		return "IntgPd"
	case FieldBufferTime:
		return "BufTm"
	case FieldGI:
		return "GI"
	default:
		return fmt.Sprintf("field(%d)", uint8(f))
	}
}

// RCB is a snapshot of a report control block.
type RCB struct {
	Reference model.ObjectReference

	ReportID string
	DataSet  model.ObjectReference

	// ConfRev and Buffered are read-only on the device.
	ConfRev  uint32
	Buffered bool

	Enabled              bool
	TriggerOptions       TriggerOptions
	IntegrityPeriod      time.Duration
	BufferTime           time.Duration
	GeneralInterrogation bool
}

// EffectiveReportID is the ID reports of this block carry. A device
// reports under the block reference when RptID is empty.
func (r *RCB) EffectiveReportID() string {
	if r.ReportID != "" {
		return r.ReportID
	}
	return string(r.Reference)
}

// MaxPeriod is the longest integrity period or buffer time the RCB
// fields can carry (unsigned 32-bit milliseconds).
const MaxPeriod = time.Duration(math.MaxUint32) * time.Millisecond

// checkPeriod validates a period for the wire and truncates it to whole
// milliseconds, so the committed copy holds what the device receives.
func checkPeriod(name string, d time.Duration) (time.Duration, error) {
	if d < 0 {
		return 0, fmt.Errorf("%w: negative %s %s", ErrInvalidValue, name, d)
	}
	if d > MaxPeriod {
		return 0, fmt.Errorf("%w: %s %s exceeds %s", ErrInvalidValue, name, d, MaxPeriod)
	}
	return d.Truncate(time.Millisecond), nil
}

func millis(d time.Duration) uint32 {
	return uint32(d / time.Millisecond)
}

// values builds a request carrying exactly the selected fields.
func (r *RCB) values(fields []Field) (*wire.RCBValues, error) {
	v := &wire.RCBValues{}
	for _, f := range fields {
		switch f {
		case FieldReportID:
			v.ReportID = wire.Ptr(r.ReportID)
		case FieldDataSet:
			v.DataSet = wire.Ptr(r.DataSet)
		case FieldEnabled:
			v.Enabled = wire.Ptr(r.Enabled)
		case FieldTriggerOptions:
			v.TriggerOptions = wire.Ptr(uint8(r.TriggerOptions))
		case FieldIntegrityPeriod:
			if _, err := checkPeriod("integrity period", r.IntegrityPeriod); err != nil {
				return nil, err
			}
			v.IntegrityPeriod = wire.Ptr(millis(r.IntegrityPeriod))
		case FieldBufferTime:
			if _, err := checkPeriod("buffer time", r.BufferTime); err != nil {
				return nil, err
			}
			v.BufferTime = wire.Ptr(millis(r.BufferTime))
		case FieldGI:
			v.GI = wire.Ptr(r.GeneralInterrogation)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, f)
		}
	}
	return v, nil
}

// copyFields copies the selected fields from src.
func (r *RCB) copyFields(src *RCB, fields []Field) {
	for _, f := range fields {
		switch f {
		case FieldReportID:
			r.ReportID = src.ReportID
		case FieldDataSet:
			r.DataSet = src.DataSet
		case FieldEnabled:
			r.Enabled = src.Enabled
		case FieldTriggerOptions:
			r.TriggerOptions = src.TriggerOptions
		case FieldIntegrityPeriod:
			r.IntegrityPeriod = src.IntegrityPeriod
		case FieldBufferTime:
			r.BufferTime = src.BufferTime
		case FieldGI:
			r.GeneralInterrogation = src.GeneralInterrogation
		}
	}
}

// apply copies the fields present in v.
func (r *RCB) apply(v *wire.RCBValues) {
	if v.ReportID != nil {
		r.ReportID = *v.ReportID
	}
	if v.DataSet != nil {
		r.DataSet = *v.DataSet
	}
	if v.ConfRev != nil {
		r.ConfRev = *v.ConfRev
	}
	if v.Buffered != nil {
		r.Buffered = *v.Buffered
	}
	if v.Enabled != nil {
		r.Enabled = *v.Enabled
	}
	if v.TriggerOptions != nil {
		r.TriggerOptions = TriggerOptions(*v.TriggerOptions)
	}
	if v.IntegrityPeriod != nil {
		r.IntegrityPeriod = time.Duration(*v.IntegrityPeriod) * time.Millisecond
	}
	if v.BufferTime != nil {
		r.BufferTime = time.Duration(*v.BufferTime) * time.Millisecond
	}
	if v.GI != nil {
		r.GeneralInterrogation = *v.GI
	}
}

func hasField(fields []Field, f Field) bool {
	for _, x := range fields {
		if x == f {
			return true
		}
	}
	return false
}
