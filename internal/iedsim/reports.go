package iedsim

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/iedlink/iedlink-go/pkg/model"
	"github.com/iedlink/iedlink-go/pkg/report"
	"github.com/iedlink/iedlink-go/pkg/wire"
)

// rcb is a report control block. An enabled block belongs to the session
// that enabled it.
type rcb struct {
	name     string
	ref      model.ObjectReference
	buffered bool

	reportID string
	dataSet  model.ObjectReference
	confRev  uint32
	enabled  bool
	trgOps   report.TriggerOptions
	intgPd   uint32
	bufTm    uint32

	owner   *session
	seqNum  uint32
	entryID uint64

	integrityStop chan struct{}
}

func (r *rcb) values() *wire.RCBValues {
	return &wire.RCBValues{
		ReportID:        wire.Ptr(r.reportID),
		DataSet:         wire.Ptr(r.dataSet),
		ConfRev:         wire.Ptr(r.confRev),
		Buffered:        wire.Ptr(r.buffered),
		Enabled:         wire.Ptr(r.enabled),
		TriggerOptions:  wire.Ptr(uint8(r.trgOps)),
		IntegrityPeriod: wire.Ptr(r.intgPd),
		BufferTime:      wire.Ptr(r.bufTm),
		GI:              wire.Ptr(false),
	}
}

func (r *rcb) effectiveReportID() string {
	if r.reportID != "" {
		return r.reportID
	}
	return string(r.ref)
}

// pushedReport is a report addressed to one session.
type pushedReport struct {
	sess *session
	rpt  *wire.Report
}

// writeRCB applies a SetRCBValues request. Configuration fields cannot
// change while the block stays enabled, and GI needs an enabled block.
func (s *Simulator) writeRCB(sess *session, r *rcb, v *wire.RCBValues) (wire.Status, string, []pushedReport) {
	if r.enabled && r.owner != sess {
		return wire.StatusAccessDenied, fmt.Sprintf("%s is reserved by another client", r.ref), nil
	}
	if v.ConfRev != nil || v.Buffered != nil {
		return wire.StatusAccessDenied, "ConfRev and Buffered are read-only", nil
	}

	enable := r.enabled
	if v.Enabled != nil {
		enable = *v.Enabled
	}
	if r.enabled && enable {
		if v.ReportID != nil || v.DataSet != nil || v.TriggerOptions != nil ||
			v.IntegrityPeriod != nil || v.BufferTime != nil {
			return wire.StatusRejected, fmt.Sprintf("%s is enabled", r.ref), nil
		}
	}
	gi := v.GI != nil && *v.GI
	if gi && !enable {
		return wire.StatusRejected, "general interrogation needs an enabled report control block", nil
	}

	dataSet := r.dataSet
	if v.DataSet != nil {
		dataSet = *v.DataSet
		if dataSet != "" {
			if _, ds, _ := s.lookupDataSet(dataSet); ds == nil {
				return wire.StatusObjectNotFound, fmt.Sprintf("no dataset %q", dataSet), nil
			}
		}
	}
	if enable && dataSet == "" {
		return wire.StatusRejected, fmt.Sprintf("%s has no dataset", r.ref), nil
	}

	if v.ReportID != nil {
		r.reportID = *v.ReportID
	}
	if dataSet != r.dataSet {
		r.dataSet = dataSet
		r.confRev++
	}
	if v.TriggerOptions != nil {
		r.trgOps = report.TriggerOptions(*v.TriggerOptions)
	}
	if v.IntegrityPeriod != nil {
		r.intgPd = *v.IntegrityPeriod
	}
	if v.BufferTime != nil {
		r.bufTm = *v.BufferTime
	}

	wasEnabled := r.enabled
	r.enabled = enable
	if enable {
		r.owner = sess
	} else {
		r.owner = nil
	}

	switch {
	case !wasEnabled && enable:
		s.logger.Info("iedsim: report control block enabled", "rcb", r.ref, "conn", sess.id, "trgOps", r.trgOps)
		if r.trgOps.Has(report.TriggerGI) {
			gi = true
		}
	case wasEnabled && !enable:
		s.logger.Info("iedsim: report control block disabled", "rcb", r.ref, "conn", sess.id)
	}

	var pushed []pushedReport
	if gi {
		pushed = append(pushed, s.generalInterrogation(r))
	}

	s.updateIntegrity(r)
	return wire.StatusSuccess, "", pushed
}

func (s *Simulator) generalInterrogation(r *rcb) pushedReport {
	return pushedReport{sess: r.owner, rpt: s.buildReport(r, func(int) report.ReasonForInclusion {
		return report.ReasonGI
	})}
}

// buildReport snapshots the dataset of r. Callers hold mu.
func (s *Simulator) buildReport(r *rcb, reason func(i int) report.ReasonForInclusion) *wire.Report {
	var values []model.Value
	if _, ds, _ := s.lookupDataSet(r.dataSet); ds != nil {
		values = s.dataSetValues(ds)
	}
	reasons := make([]uint8, len(values))
	for i := range values {
		reasons[i] = uint8(reason(i))
	}

	r.seqNum++
	rpt := &wire.Report{
		ReportID:  r.effectiveReportID(),
		RCBRef:    r.ref,
		DataSet:   r.dataSet,
		SeqNum:    r.seqNum,
		Timestamp: s.config.Clock().UnixMilli(),
		ConfRev:   r.confRev,
		Values:    values,
		Reasons:   reasons,
	}
	if r.buffered {
		r.entryID++
		rpt.EntryID = binary.BigEndian.AppendUint64(nil, r.entryID)
	}
	return rpt
}

// UpdateValue changes a leaf attribute as the device process would, and
// reports the change to every enabled block whose dataset covers it.
func (s *Simulator) UpdateValue(ref model.ObjectReference, v model.Value) error {
	s.mu.Lock()
	o, _, ok := s.lookup(ref)
	if !ok || o.value == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: no attribute %q", model.ErrObjectNotFound, ref)
	}
	if o.value.Type != v.Type {
		s.mu.Unlock()
		return fmt.Errorf("%q is %s, got %s", ref, o.value.Type, v.Type)
	}
	pushed := s.setValue(ref, o, v)
	s.mu.Unlock()

	s.push(pushed)
	return nil
}

// setValue stores v and builds the resulting reports. Callers hold mu.
func (s *Simulator) setValue(ref model.ObjectReference, o *object, v model.Value) []pushedReport {
	changed := !o.value.Equal(v)
	*o.value = v

	quality := o.name == "q"
	var pushed []pushedReport
	s.forEachRCB(func(r *rcb) {
		if !r.enabled || r.owner == nil {
			return
		}
		_, ds, _ := s.lookupDataSet(r.dataSet)
		if ds == nil {
			return
		}

		reasons := make([]report.ReasonForInclusion, len(ds.entries))
		included := false
		for i, e := range ds.entries {
			if !covers(e, ref, o.fc) {
				continue
			}
			switch {
			case changed && quality && r.trgOps.Has(report.TriggerQualityChange):
				reasons[i] = report.ReasonQualityChange
			case changed && !quality && r.trgOps.Has(report.TriggerDataChange):
				reasons[i] = report.ReasonDataChange
			case !changed && r.trgOps.Has(report.TriggerDataUpdate):
				reasons[i] = report.ReasonDataUpdate
			}
			included = included || reasons[i] != report.ReasonNotIncluded
		}
		if !included {
			return
		}
		pushed = append(pushed, pushedReport{sess: r.owner, rpt: s.buildReport(r, func(i int) report.ReasonForInclusion {
			return reasons[i]
		})})
	})
	return pushed
}

// covers reports whether the dataset member entry contains the leaf
// attribute ref constrained by fc.
func covers(entry, ref model.ObjectReference, fc model.FC) bool {
	base, entryFC, hasFC := entry.SplitFC()
	if hasFC && entryFC != fc {
		return false
	}
	return base == ref || strings.HasPrefix(string(ref), string(base)+".")
}

func (s *Simulator) forEachRCB(fn func(r *rcb)) {
	for _, ld := range s.devices {
		for _, ln := range ld.nodes {
			for _, r := range ln.urcbs {
				fn(r)
			}
			for _, r := range ln.brcbs {
				fn(r)
			}
		}
	}
}

// enabledRCBUsing returns an enabled block reporting the dataset, or nil.
func (s *Simulator) enabledRCBUsing(ds model.ObjectReference) *rcb {
	var found *rcb
	s.forEachRCB(func(r *rcb) {
		if found == nil && r.enabled && r.dataSet == ds {
			found = r
		}
	})
	return found
}

// releaseRCBs disables every block owned by sess. Callers hold mu.
func (s *Simulator) releaseRCBs(sess *session) {
	s.forEachRCB(func(r *rcb) {
		if r.owner == sess {
			r.enabled = false
			r.owner = nil
			s.updateIntegrity(r)
		}
	})
}

// updateIntegrity starts or stops the periodic integrity reports of r.
// Callers hold mu.
func (s *Simulator) updateIntegrity(r *rcb) {
	want := r.enabled && r.trgOps.Has(report.TriggerIntegrity) && r.intgPd > 0
	if r.integrityStop != nil {
		close(r.integrityStop)
		r.integrityStop = nil
	}
	if !want {
		return
	}
	stop := make(chan struct{})
	r.integrityStop = stop
	go s.integrityLoop(r, r.owner, time.Duration(r.intgPd)*time.Millisecond, stop)
}

func (s *Simulator) integrityLoop(r *rcb, owner *session, period time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-owner.stopCh:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		select {
		case <-stop:
			s.mu.Unlock()
			return
		default:
		}
		p := pushedReport{sess: owner, rpt: s.buildReport(r, func(int) report.ReasonForInclusion {
			return report.ReasonIntegrity
		})}
		s.mu.Unlock()

		s.push([]pushedReport{p})
	}
}

// push sends reports outside the model lock.
func (s *Simulator) push(reports []pushedReport) {
	for _, p := range reports {
		if p.sess == nil {
			continue
		}
		if err := s.sendReport(p.sess, p.rpt); err != nil {
			s.logger.Debug("iedsim: report not sent", "conn", p.sess.id, "rcb", p.rpt.RCBRef, "error", err)
		}
	}
}
