package iedsim

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/iedlink/iedlink-go/pkg/model"
)

// SimpleIODevice is the logical device name of the sample model.
const SimpleIODevice = "simpleIOGenericIO"

// Sample model references.
const (
	EventsDataSet       model.ObjectReference = SimpleIODevice + "/LLN0.Events"
	MeasurementsDataSet model.ObjectReference = SimpleIODevice + "/LLN0.Measurements"
	EventsRCB           model.ObjectReference = SimpleIODevice + "/LLN0.RP.EventsRCB01"
	MeasurementsRCB     model.ObjectReference = SimpleIODevice + "/LLN0.RP.MeasurementsRCB01"
	EventsBRCB          model.ObjectReference = SimpleIODevice + "/LLN0.BR.EventsBRCB01"
)

var zeroQuality = model.BitStringValue([]byte{0, 0}, 13)

// NewSimpleIO returns a simulator holding a generic IO device: one LLN0,
// and a GGIO1 with four analogue inputs, four controllable single points
// and four indications.
func NewSimpleIO(cfg Config) *Simulator {
	s := New(cfg)
	if err := s.buildSimpleIO(); err != nil {
		panic(fmt.Sprintf("iedsim: sample model: %v", err))
	}
	return s
}

func (s *Simulator) buildSimpleIO() error {
	now := model.TimeValue(s.config.Clock())
	ref := func(ln, path string) model.ObjectReference {
		return model.ObjectReference(SimpleIODevice + "/" + ln + "." + path)
	}

	type attr struct {
		ref   model.ObjectReference
		fc    model.FC
		value model.Value
	}
	attrs := []attr{}
	addCommon := func(ln string) {
		attrs = append(attrs,
			attr{ref(ln, "Mod.stVal"), model.FCST, model.IntValue(1)},
			attr{ref(ln, "Mod.q"), model.FCST, zeroQuality},
			attr{ref(ln, "Mod.t"), model.FCST, now},
			attr{ref(ln, "Mod.ctlModel"), model.FCCF, model.IntValue(0)},
			attr{ref(ln, "Beh.stVal"), model.FCST, model.IntValue(1)},
			attr{ref(ln, "Beh.q"), model.FCST, zeroQuality},
			attr{ref(ln, "Beh.t"), model.FCST, now},
			attr{ref(ln, "Health.stVal"), model.FCST, model.IntValue(1)},
			attr{ref(ln, "Health.q"), model.FCST, zeroQuality},
			attr{ref(ln, "Health.t"), model.FCST, now},
			attr{ref(ln, "NamPlt.vendor"), model.FCDC, model.StringValue("iedlink")},
			attr{ref(ln, "NamPlt.swRev"), model.FCDC, model.StringValue("1.0")},
			attr{ref(ln, "NamPlt.d"), model.FCDC, model.StringValue("simulated " + ln)},
		)
	}

	addCommon("LLN0")
	attrs = append(attrs, attr{ref("LLN0", "NamPlt.configRev"), model.FCDC, model.StringValue("1")})
	addCommon("GGIO1")
	for i := 1; i <= 4; i++ {
		an := fmt.Sprintf("AnIn%d", i)
		attrs = append(attrs,
			attr{ref("GGIO1", an+".mag.f"), model.FCMX, model.FloatValue(0)},
			attr{ref("GGIO1", an+".q"), model.FCMX, zeroQuality},
			attr{ref("GGIO1", an+".t"), model.FCMX, now},
		)
	}
	for i := 1; i <= 4; i++ {
		sp := fmt.Sprintf("SPCSO%d", i)
		attrs = append(attrs,
			attr{ref("GGIO1", sp+".stVal"), model.FCST, model.BoolValue(false)},
			attr{ref("GGIO1", sp+".q"), model.FCST, zeroQuality},
			attr{ref("GGIO1", sp+".t"), model.FCST, now},
			attr{ref("GGIO1", sp+".ctlModel"), model.FCCF, model.IntValue(1)},
		)
	}
	for i := 1; i <= 4; i++ {
		ind := fmt.Sprintf("Ind%d", i)
		attrs = append(attrs,
			attr{ref("GGIO1", ind+".stVal"), model.FCST, model.BoolValue(false)},
			attr{ref("GGIO1", ind+".q"), model.FCST, zeroQuality},
			attr{ref("GGIO1", ind+".t"), model.FCST, now},
		)
	}
	for _, a := range attrs {
		if err := s.AddDataAttribute(a.ref, a.fc, a.value); err != nil {
			return err
		}
	}

	events := make([]model.ObjectReference, 4)
	measurements := make([]model.ObjectReference, 4)
	for i := range 4 {
		events[i] = ref("GGIO1", fmt.Sprintf("SPCSO%d.stVal", i+1)).WithFC(model.FCST)
		measurements[i] = ref("GGIO1", fmt.Sprintf("AnIn%d", i+1)).WithFC(model.FCMX)
	}
	if err := s.AddDataSet(EventsDataSet, events, false); err != nil {
		return err
	}
	if err := s.AddDataSet(MeasurementsDataSet, measurements, false); err != nil {
		return err
	}

	lln0 := model.ObjectReference(SimpleIODevice + "/LLN0")
	rcbs := []struct {
		name string
		opts RCBOptions
	}{
		{"EventsRCB01", RCBOptions{ReportID: "Events", DataSet: EventsDataSet, ConfRev: 1}},
		{"MeasurementsRCB01", RCBOptions{ReportID: "Measurements", DataSet: MeasurementsDataSet, ConfRev: 1}},
		{"EventsBRCB01", RCBOptions{Buffered: true, ReportID: "BufferedEvents", DataSet: EventsDataSet, ConfRev: 1}},
	}
	for _, r := range rcbs {
		if _, err := s.AddRCB(lln0, r.name, r.opts); err != nil {
			return err
		}
	}
	return nil
}

// RunProcess drives the sample model until ctx is done: the analogue
// inputs follow phase-shifted sine waves and one single point toggles per
// tick.
func (s *Simulator) RunProcess(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for tick := 0; ; tick++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for i := 1; i <= 4; i++ {
			phase := float64(tick)/10 + float64(i)*math.Pi/2
			value := math.Round(100*math.Sin(phase)*10) / 10
			ref := model.ObjectReference(fmt.Sprintf("%s/GGIO1.AnIn%d.mag.f", SimpleIODevice, i))
			if err := s.UpdateValue(ref, model.FloatValue(value)); err != nil {
				s.logger.Warn("iedsim: process update failed", "ref", ref, "error", err)
			}
		}

		sp := model.ObjectReference(fmt.Sprintf("%s/GGIO1.SPCSO%d.stVal", SimpleIODevice, tick%4+1))
		current, err := s.Value(sp)
		if err != nil {
			continue
		}
		b, _ := current.AsBool()
		if err := s.UpdateValue(sp, model.BoolValue(!b)); err != nil {
			s.logger.Warn("iedsim: process update failed", "ref", sp, "error", err)
		}
	}
}

// Value returns the current value of a leaf attribute.
func (s *Simulator) Value(ref model.ObjectReference) (model.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, _, ok := s.lookup(ref)
	if !ok || o.value == nil {
		return model.Value{}, fmt.Errorf("%w: no attribute %q", model.ErrObjectNotFound, ref)
	}
	return *o.value, nil
}
