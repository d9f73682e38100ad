package iedsim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iedlink/iedlink-go/pkg/interaction"
	"github.com/iedlink/iedlink-go/pkg/model"
	"github.com/iedlink/iedlink-go/pkg/report"
	"github.com/iedlink/iedlink-go/pkg/transport"
	"github.com/iedlink/iedlink-go/pkg/wire"
)

// peer is a minimal client: an interaction.Client fed by a reader that
// sorts incoming frames into responses and reports.
type peer struct {
	conn    *transport.Conn
	client  *interaction.Client
	reports chan *wire.Report
}

func connect(t *testing.T, sim *Simulator) *peer {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	conn := transport.NewConn(sim.Pipe(ctx), transport.ConnConfig{})
	p := &peer{
		conn:    conn,
		client:  interaction.NewClient(conn, interaction.Config{Timeout: 2 * time.Second}),
		reports: make(chan *wire.Report, 32),
	}
	go func() {
		for {
			data, err := conn.ReadFrame()
			if err != nil {
				return
			}
			typ, err := wire.PeekMessageType(data)
			if err != nil {
				continue
			}
			switch typ {
			case wire.MessageTypeResponse:
				if resp, err := wire.DecodeResponse(data); err == nil {
					_ = p.client.HandleResponse(resp)
				}
			case wire.MessageTypeReport:
				if rpt, err := wire.DecodeReport(data); err == nil {
					p.reports <- rpt
				}
			}
		}
	}()
	t.Cleanup(func() {
		p.client.Close()
		conn.Close()
		cancel()
	})
	return p
}

func (p *peer) nextReport(t *testing.T) *wire.Report {
	t.Helper()
	select {
	case rpt := <-p.reports:
		return rpt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for report")
		return nil
	}
}

func (p *peer) noReport(t *testing.T) {
	t.Helper()
	select {
	case rpt := <-p.reports:
		t.Fatalf("unexpected report %s seq %d", rpt.ReportID, rpt.SeqNum)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSimpleIODirectories(t *testing.T) {
	sim := NewSimpleIO(Config{})
	p := connect(t, sim)
	ctx := context.Background()

	lds, err := p.client.GetServerDirectory(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{SimpleIODevice}, lds)

	lns, err := p.client.GetLogicalDeviceDirectory(ctx, SimpleIODevice)
	require.NoError(t, err)
	assert.Equal(t, []string{"LLN0", "GGIO1"}, lns)

	dos, err := p.client.GetLogicalNodeDirectory(ctx, SimpleIODevice+"/GGIO1", model.ClassDataObject)
	require.NoError(t, err)
	assert.Contains(t, dos, "AnIn1")
	assert.Contains(t, dos, "SPCSO4")

	dss, err := p.client.GetLogicalNodeDirectory(ctx, SimpleIODevice+"/LLN0", model.ClassDataSet)
	require.NoError(t, err)
	assert.Equal(t, []string{"Events", "Measurements"}, dss)

	urcbs, err := p.client.GetLogicalNodeDirectory(ctx, SimpleIODevice+"/LLN0", model.ClassURCB)
	require.NoError(t, err)
	assert.Equal(t, []string{"EventsRCB01", "MeasurementsRCB01"}, urcbs)

	brcbs, err := p.client.GetLogicalNodeDirectory(ctx, SimpleIODevice+"/LLN0", model.ClassBRCB)
	require.NoError(t, err)
	assert.Equal(t, []string{"EventsBRCB01"}, brcbs)

	children, err := p.client.GetDataDirectory(ctx, SimpleIODevice+"/GGIO1.AnIn1")
	require.NoError(t, err)
	assert.Equal(t, []string{"mag", "q", "t"}, children)

	leaf, err := p.client.GetDataDirectory(ctx, SimpleIODevice+"/GGIO1.AnIn1.mag.f")
	require.NoError(t, err)
	assert.Empty(t, leaf)

	_, err = p.client.GetLogicalDeviceDirectory(ctx, "nope")
	assert.ErrorIs(t, err, model.ErrObjectNotFound)
}

func TestReadWrite(t *testing.T) {
	sim := NewSimpleIO(Config{})
	p := connect(t, sim)
	ctx := context.Background()

	require.NoError(t, sim.UpdateValue(SimpleIODevice+"/GGIO1.AnIn1.mag.f", model.FloatValue(12.5)))

	v, err := p.client.Read(ctx, SimpleIODevice+"/GGIO1.AnIn1.mag.f", model.FCMX)
	require.NoError(t, err)
	assert.Equal(t, 12.5, v.Float)

	// A data object reads as a structure of its attributes under the FC.
	v, err = p.client.Read(ctx, SimpleIODevice+"/GGIO1.AnIn1", model.FCMX)
	require.NoError(t, err)
	assert.Equal(t, model.TypeStructure, v.Type)
	assert.Len(t, v.Elements, 3)

	_, err = p.client.Read(ctx, SimpleIODevice+"/GGIO1.AnIn1.mag.f", model.FCST)
	assert.ErrorIs(t, err, model.ErrObjectNotFound)

	require.NoError(t, p.client.Write(ctx, SimpleIODevice+"/GGIO1.NamPlt.vendor", model.FCDC, model.StringValue("acme")))
	got, err := sim.Value(SimpleIODevice + "/GGIO1.NamPlt.vendor")
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Str)

	tests := []struct {
		name  string
		ref   model.ObjectReference
		fc    model.FC
		value model.Value
		want  error
	}{
		{"read-only FC", SimpleIODevice + "/GGIO1.SPCSO1.stVal", model.FCST, model.BoolValue(true), model.ErrAccessDenied},
		{"type mismatch", SimpleIODevice + "/GGIO1.NamPlt.vendor", model.FCDC, model.IntValue(1), interaction.ErrTypeMismatch},
		{"missing", SimpleIODevice + "/GGIO1.NamPlt.nope", model.FCDC, model.StringValue("x"), model.ErrObjectNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.client.Write(ctx, tt.ref, tt.fc, tt.value)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDataSets(t *testing.T) {
	sim := NewSimpleIO(Config{})
	p := connect(t, sim)
	ctx := context.Background()

	ref := model.ObjectReference(SimpleIODevice + "/LLN0.AnalogueValues")
	entries := model.References(
		SimpleIODevice+"/GGIO1.AnIn2.mag.f",
		SimpleIODevice+"/GGIO1.AnIn1.mag.f",
	)
	require.NoError(t, sim.UpdateValue(entries[0], model.FloatValue(2)))
	require.NoError(t, sim.UpdateValue(entries[1], model.FloatValue(1)))

	require.NoError(t, p.client.CreateDataSet(ctx, ref, entries))
	err := p.client.CreateDataSet(ctx, ref, entries)
	assert.ErrorIs(t, err, model.ErrAlreadyExists)

	values, err := p.client.ReadDataSet(ctx, ref)
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, 2.0, values[0].Float)
	assert.Equal(t, 1.0, values[1].Float)

	ds, err := p.client.GetDataSetDirectory(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, entries, ds.Entries)
	assert.True(t, ds.Deletable)

	err = p.client.DeleteDataSet(ctx, EventsDataSet)
	assert.ErrorIs(t, err, model.ErrNotDeletable)

	err = p.client.CreateDataSet(ctx, SimpleIODevice+"/LLN0.Broken", model.References(SimpleIODevice+"/GGIO1.Nope.stVal"))
	assert.ErrorIs(t, err, model.ErrInvalidReference)

	require.NoError(t, p.client.DeleteDataSet(ctx, ref))
	_, err = p.client.ReadDataSet(ctx, ref)
	assert.ErrorIs(t, err, model.ErrObjectNotFound)
}

func TestRCBGeneralInterrogation(t *testing.T) {
	sim := NewSimpleIO(Config{})
	p := connect(t, sim)
	ctx := context.Background()

	// GI needs an enabled block.
	err := p.client.SetRCBValues(ctx, EventsRCB, &wire.RCBValues{GI: wire.Ptr(true)})
	assert.ErrorIs(t, err, interaction.ErrRejected)

	require.NoError(t, p.client.SetRCBValues(ctx, EventsRCB, &wire.RCBValues{
		TriggerOptions: wire.Ptr(uint8(report.TriggerDataChange | report.TriggerGI)),
		Enabled:        wire.Ptr(true),
	}))
	rpt := p.nextReport(t)
	assert.Equal(t, "Events", rpt.ReportID)
	assert.Equal(t, EventsRCB, rpt.RCBRef)
	assert.Equal(t, EventsDataSet, rpt.DataSet)
	assert.Equal(t, uint32(1), rpt.SeqNum)
	require.Len(t, rpt.Values, 4)
	for _, r := range rpt.Reasons {
		assert.Equal(t, uint8(report.ReasonGI), r)
	}

	require.NoError(t, p.client.SetRCBValues(ctx, EventsRCB, &wire.RCBValues{GI: wire.Ptr(true)}))
	rpt = p.nextReport(t)
	assert.Equal(t, uint32(2), rpt.SeqNum)

	// The dataset cannot change while enabled.
	err = p.client.SetRCBValues(ctx, EventsRCB, &wire.RCBValues{DataSet: wire.Ptr(MeasurementsDataSet)})
	assert.ErrorIs(t, err, interaction.ErrRejected)

	require.NoError(t, p.client.SetRCBValues(ctx, EventsRCB, &wire.RCBValues{Enabled: wire.Ptr(false)}))
	require.NoError(t, sim.UpdateValue(SimpleIODevice+"/GGIO1.SPCSO1.stVal", model.BoolValue(true)))
	p.noReport(t)
}

func TestRCBDataChange(t *testing.T) {
	sim := NewSimpleIO(Config{})
	p := connect(t, sim)
	ctx := context.Background()

	require.NoError(t, p.client.SetRCBValues(ctx, EventsRCB, &wire.RCBValues{
		TriggerOptions: wire.Ptr(uint8(report.TriggerDataChange)),
		Enabled:        wire.Ptr(true),
	}))
	p.noReport(t)

	require.NoError(t, sim.UpdateValue(SimpleIODevice+"/GGIO1.SPCSO2.stVal", model.BoolValue(true)))
	rpt := p.nextReport(t)
	assert.Equal(t, []uint8{0, uint8(report.ReasonDataChange), 0, 0}, rpt.Reasons)
	assert.True(t, rpt.Values[1].Bool)

	// No change, no DataUpdate trigger: nothing to report.
	require.NoError(t, sim.UpdateValue(SimpleIODevice+"/GGIO1.SPCSO2.stVal", model.BoolValue(true)))
	p.noReport(t)

	// Attributes outside the dataset do not report.
	require.NoError(t, sim.UpdateValue(SimpleIODevice+"/GGIO1.Ind1.stVal", model.BoolValue(true)))
	p.noReport(t)
}

func TestRCBBufferedEntryID(t *testing.T) {
	sim := NewSimpleIO(Config{})
	p := connect(t, sim)
	ctx := context.Background()

	require.NoError(t, p.client.SetRCBValues(ctx, EventsBRCB, &wire.RCBValues{
		TriggerOptions: wire.Ptr(uint8(report.TriggerGI)),
		Enabled:        wire.Ptr(true),
	}))
	rpt := p.nextReport(t)
	assert.Equal(t, "BufferedEvents", rpt.ReportID)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 1}, rpt.EntryID)

	v, err := p.client.GetRCBValues(ctx, EventsBRCB)
	require.NoError(t, err)
	assert.True(t, *v.Buffered)
	assert.True(t, *v.Enabled)
}

func TestRCBIntegrity(t *testing.T) {
	sim := NewSimpleIO(Config{})
	p := connect(t, sim)
	ctx := context.Background()

	require.NoError(t, p.client.SetRCBValues(ctx, MeasurementsRCB, &wire.RCBValues{
		TriggerOptions:  wire.Ptr(uint8(report.TriggerIntegrity)),
		IntegrityPeriod: wire.Ptr(uint32(20)),
		Enabled:         wire.Ptr(true),
	}))
	rpt := p.nextReport(t)
	assert.Equal(t, "Measurements", rpt.ReportID)
	for _, r := range rpt.Reasons {
		assert.Equal(t, uint8(report.ReasonIntegrity), r)
	}

	require.NoError(t, p.client.SetRCBValues(ctx, MeasurementsRCB, &wire.RCBValues{Enabled: wire.Ptr(false)}))
	// Drain anything sent before the disable took effect.
	time.Sleep(50 * time.Millisecond)
	for len(p.reports) > 0 {
		<-p.reports
	}
	p.noReport(t)
}

func TestRCBReservation(t *testing.T) {
	sim := NewSimpleIO(Config{})
	a := connect(t, sim)
	b := connect(t, sim)
	ctx := context.Background()

	require.NoError(t, a.client.SetRCBValues(ctx, EventsRCB, &wire.RCBValues{Enabled: wire.Ptr(true)}))
	err := b.client.SetRCBValues(ctx, EventsRCB, &wire.RCBValues{Enabled: wire.Ptr(false)})
	assert.ErrorIs(t, err, model.ErrAccessDenied)

	err = a.client.SetRCBValues(ctx, EventsRCB, &wire.RCBValues{ConfRev: wire.Ptr(uint32(9))})
	assert.ErrorIs(t, err, model.ErrAccessDenied)
}

func TestSessionEndReleasesRCBs(t *testing.T) {
	sim := NewSimpleIO(Config{})
	ctx := context.Background()

	a := connect(t, sim)
	require.NoError(t, a.client.SetRCBValues(ctx, EventsRCB, &wire.RCBValues{Enabled: wire.Ptr(true)}))
	sim.DropConnections()
	require.Eventually(t, func() bool { return sim.Sessions() == 0 }, 2*time.Second, 10*time.Millisecond)

	b := connect(t, sim)
	v, err := b.client.GetRCBValues(ctx, EventsRCB)
	require.NoError(t, err)
	assert.False(t, *v.Enabled)
}

func TestModelBuilderErrors(t *testing.T) {
	sim := New(Config{})

	assert.Error(t, sim.AddDataAttribute("LD1", model.FCST, model.IntValue(1)))
	assert.Error(t, sim.AddDataAttribute("LD1/LLN0.Mod", model.FCST, model.IntValue(1)))
	require.NoError(t, sim.AddDataAttribute("LD1/LLN0.Mod.stVal", model.FCST, model.IntValue(1)))
	assert.Error(t, sim.AddDataAttribute("LD1/LLN0.Mod.stVal.x", model.FCST, model.IntValue(1)))
	assert.Error(t, sim.AddDataAttribute("LD1/LLN0.Mod", model.FCST, model.IntValue(1)))

	assert.Error(t, sim.AddDataSet("LD2/LLN0.DS", nil, true))
	require.NoError(t, sim.AddDataSet("LD1/LLN0.DS", model.References("LD1/LLN0.Mod.stVal"), true))
	assert.Error(t, sim.AddDataSet("LD1/LLN0.DS", nil, true))

	ref, err := sim.AddRCB("LD1/LLN0", "rcb", RCBOptions{Buffered: true})
	require.NoError(t, err)
	assert.Equal(t, model.ObjectReference("LD1/LLN0.BR.rcb"), ref)

	err = sim.UpdateValue("LD1/LLN0.Mod.nope", model.IntValue(2))
	assert.True(t, errors.Is(err, model.ErrObjectNotFound))
}

func TestRequestCount(t *testing.T) {
	sim := NewSimpleIO(Config{})
	p := connect(t, sim)

	_, err := p.client.GetServerDirectory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sim.RequestCount(wire.ServiceGetServerDirectory))
	assert.Equal(t, 1, sim.TotalRequests())
}
