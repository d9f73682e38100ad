package client

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iedlink/iedlink-go/internal/iedsim"
	"github.com/iedlink/iedlink-go/pkg/interaction"
	"github.com/iedlink/iedlink-go/pkg/model"
	"github.com/iedlink/iedlink-go/pkg/report"
	"github.com/iedlink/iedlink-go/pkg/transport"
)

const simLD = iedsim.SimpleIODevice

// connectSim opens a session to sim over an in-memory pipe.
func connectSim(t *testing.T, sim *iedsim.Simulator, cfg Config) *Session {
	t.Helper()

	simCtx, cancel := context.WithCancel(context.Background())
	cfg.Dialer = DialerFunc(func(ctx context.Context, address string) (Conn, error) {
		return transport.NewConn(sim.Pipe(simCtx), transport.ConnConfig{}), nil
	})
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 2 * time.Second
	}

	s := NewSession(cfg)
	require.NoError(t, s.Connect(context.Background(), Endpoint{Host: "sim", Port: 102}))
	t.Cleanup(func() {
		_ = s.Close()
		cancel()
	})
	return s
}

// events collects report events delivered to a handler.
type events chan *report.Event

func (e events) handler(ev *report.Event) { e <- ev }

func (e events) next(t *testing.T) *report.Event {
	t.Helper()
	select {
	case ev := <-e:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for report event")
		return nil
	}
}

func (e events) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-e:
		t.Fatalf("unexpected event %s seq %d", ev.ReportID, ev.SeqNum)
	case <-time.After(wait):
	}
}

func TestReadWriteObject(t *testing.T) {
	sim := iedsim.NewSimpleIO(iedsim.Config{})
	s := connectSim(t, sim, Config{})
	ctx := context.Background()

	require.NoError(t, sim.UpdateValue(simLD+"/GGIO1.AnIn1.mag.f", model.FloatValue(230.5)))
	v, err := s.ReadObject(ctx, simLD+"/GGIO1.AnIn1.mag.f", model.FCMX)
	require.NoError(t, err)
	f, ok := v.AsFloat()
	require.True(t, ok)
	assert.Equal(t, 230.5, f)

	require.NoError(t, s.WriteObject(ctx, simLD+"/GGIO1.NamPlt.vendor", model.FCDC, model.StringValue("iedlink test")))
	v, err = s.ReadObject(ctx, simLD+"/GGIO1.NamPlt.vendor", model.FCDC)
	require.NoError(t, err)
	assert.Equal(t, "iedlink test", v.Str)

	err = s.WriteObject(ctx, simLD+"/GGIO1.SPCSO1.stVal", model.FCST, model.BoolValue(true))
	assert.ErrorIs(t, err, model.ErrAccessDenied)
	var se *interaction.StatusError
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, StateConnected, s.State())
}

func TestDataSetOrderPreservation(t *testing.T) {
	sim := iedsim.NewSimpleIO(iedsim.Config{})
	s := connectSim(t, sim, Config{})
	ctx := context.Background()

	entries := model.References(
		simLD+"/GGIO1.AnIn3.mag.f",
		simLD+"/GGIO1.AnIn1.mag.f",
		simLD+"/GGIO1.AnIn4.mag.f",
		simLD+"/GGIO1.AnIn2.mag.f",
	)
	for i, e := range entries {
		require.NoError(t, sim.UpdateValue(e, model.FloatValue(float64(10*(i+1)))))
	}

	ref := model.ObjectReference(simLD + "/LLN0.Ordered")
	require.NoError(t, s.DataSets().Create(ctx, ref, entries))

	values, err := s.DataSets().Read(ctx, ref)
	require.NoError(t, err)
	require.Len(t, values, len(entries))
	for i, v := range values {
		assert.Equal(t, float64(10*(i+1)), v.Float, "entry %d (%s)", i, entries[i])
	}

	dir, err := s.DataSets().Directory(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, entries, dir.Entries)
	assert.True(t, dir.Deletable)
}

func TestDataSetFCMembers(t *testing.T) {
	sim := iedsim.NewSimpleIO(iedsim.Config{})
	s := connectSim(t, sim, Config{})
	ctx := context.Background()

	values, err := s.DataSets().Read(ctx, iedsim.MeasurementsDataSet)
	require.NoError(t, err)
	require.Len(t, values, 4)
	for _, v := range values {
		// mag, q, t
		assert.Equal(t, model.TypeStructure, v.Type)
		assert.Len(t, v.Elements, 3)
	}

	dir, err := s.DataSets().Directory(ctx, iedsim.MeasurementsDataSet)
	require.NoError(t, err)
	assert.False(t, dir.Deletable)
	assert.Equal(t, model.ObjectReference(simLD+"/GGIO1.AnIn1[MX]"), dir.Entries[0])
}

func TestDataSetLifecycle(t *testing.T) {
	sim := iedsim.NewSimpleIO(iedsim.Config{})
	s := connectSim(t, sim, Config{})
	ctx := context.Background()
	ds := s.DataSets()

	ref := model.ObjectReference(simLD + "/LLN0.AnalogueValues")
	entries := model.References(
		simLD+"/GGIO1.AnIn1[MX]",
		simLD+"/GGIO1.AnIn2[MX]",
		simLD+"/GGIO1.AnIn3[MX]",
		simLD+"/GGIO1.AnIn4[MX]",
	)
	require.NoError(t, ds.Create(ctx, ref, entries))
	assert.ErrorIs(t, ds.Create(ctx, ref, entries), model.ErrAlreadyExists)

	cached, ok := s.layout(ref)
	require.True(t, ok)
	assert.Equal(t, entries, cached)

	require.NoError(t, ds.Delete(ctx, ref))
	_, ok = s.layout(ref)
	assert.False(t, ok)

	assert.ErrorIs(t, ds.Delete(ctx, ref), model.ErrObjectNotFound)
	assert.ErrorIs(t, ds.Delete(ctx, iedsim.EventsDataSet), model.ErrNotDeletable)

	_, err := ds.Read(ctx, ref)
	assert.ErrorIs(t, err, model.ErrObjectNotFound)
	assert.Equal(t, StateConnected, s.State())
}

func TestRCBFieldIsolation(t *testing.T) {
	sim := iedsim.NewSimpleIO(iedsim.Config{})
	s := connectSim(t, sim, Config{})
	ctx := context.Background()

	sub, err := s.Report(iedsim.EventsRCB)
	require.NoError(t, err)
	before, err := sub.GetValues(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.StateBound, sub.State())

	require.NoError(t, sub.SetIntegrityPeriod(3*time.Second))
	sub.SetTriggerOptions(report.TriggerDataChange | report.TriggerIntegrity)
	sub.SetReportID("changed")
	require.NoError(t, sub.Commit(ctx, report.FieldIntegrityPeriod))

	fresh, err := s.Report(iedsim.EventsRCB)
	require.NoError(t, err)
	after, err := fresh.GetValues(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, after.IntegrityPeriod)
	assert.Equal(t, before.TriggerOptions, after.TriggerOptions)
	assert.Equal(t, before.ReportID, after.ReportID)
	assert.Equal(t, before.DataSet, after.DataSet)
	assert.Equal(t, before.Enabled, after.Enabled)

	// The staged edits that were not committed are still staged.
	assert.Equal(t, "changed", sub.Staged().ReportID)
	assert.Equal(t, "Events", sub.Committed().ReportID)
}

func TestEnableThenDisable(t *testing.T) {
	sim := iedsim.NewSimpleIO(iedsim.Config{})
	s := connectSim(t, sim, Config{})
	ctx := context.Background()

	sub, err := s.Report(iedsim.EventsRCB)
	require.NoError(t, err)
	got := make(events, 8)
	require.NoError(t, sub.Register(got.handler))
	_, err = sub.GetValues(ctx)
	require.NoError(t, err)

	sub.SetTriggerOptions(report.TriggerDataChange)
	sub.SetEnabled(true)
	require.NoError(t, sub.Commit(ctx, report.FieldTriggerOptions, report.FieldEnabled))
	assert.Equal(t, report.StateEnabled, sub.State())

	require.NoError(t, sim.UpdateValue(simLD+"/GGIO1.SPCSO3.stVal", model.BoolValue(true)))
	ev := got.next(t)
	assert.Equal(t, "Events", ev.ReportID)
	assert.Equal(t, iedsim.EventsRCB, ev.RCBReference)
	assert.Equal(t, []int{2}, ev.Included())
	assert.Equal(t, report.ReasonDataChange, ev.Reasons[2])
	assert.False(t, ev.Timestamp.IsZero())

	sub.SetEnabled(false)
	require.NoError(t, sub.Commit(ctx, report.FieldEnabled))
	assert.Equal(t, report.StateBound, sub.State())

	require.NoError(t, sim.UpdateValue(simLD+"/GGIO1.SPCSO3.stVal", model.BoolValue(false)))
	got.none(t, 100*time.Millisecond)
}

func TestGeneralInterrogationScenario(t *testing.T) {
	sim := iedsim.New(iedsim.Config{})
	require.NoError(t, sim.AddDataAttribute("LD1/GGIO1.A.mag.f", model.FCMX, model.FloatValue(1.5)))
	require.NoError(t, sim.AddDataAttribute("LD1/GGIO1.B.mag.f", model.FCMX, model.FloatValue(2.5)))
	require.NoError(t, sim.AddDataAttribute("LD1/LLN0.Mod.stVal", model.FCST, model.IntValue(1)))
	rcbRef, err := sim.AddRCB("LD1/LLN0", "rcb01", iedsim.RCBOptions{ReportID: "values", ConfRev: 1})
	require.NoError(t, err)

	s := connectSim(t, sim, Config{})
	ctx := context.Background()

	dsRef := model.ObjectReference("LD1/LLN0.Values")
	entries := model.References("LD1/GGIO1.A.mag.f", "LD1/GGIO1.B.mag.f")
	require.NoError(t, s.DataSets().Create(ctx, dsRef, entries))

	values, err := s.DataSets().Read(ctx, dsRef)
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, 1.5, values[0].Float)
	assert.Equal(t, 2.5, values[1].Float)

	sub, err := s.Report(rcbRef)
	require.NoError(t, err)
	got := make(events, 8)
	require.NoError(t, sub.Register(got.handler))
	_, err = sub.GetValues(ctx)
	require.NoError(t, err)

	require.NoError(t, sub.SetDataSet(dsRef))
	sub.SetTriggerOptions(report.TriggerDataChange | report.TriggerGI)
	sub.SetEnabled(true)
	require.NoError(t, sub.Commit(ctx, report.FieldDataSet, report.FieldTriggerOptions, report.FieldEnabled))
	got.next(t)

	sub.SetEnabled(false)
	require.NoError(t, sub.Commit(ctx, report.FieldEnabled))
	sub.SetEnabled(true)
	require.NoError(t, sub.Commit(ctx, report.FieldEnabled))

	ev := got.next(t)
	assert.Equal(t, "values", ev.ReportID)
	assert.Equal(t, dsRef, ev.DataSet)
	require.Len(t, ev.Reasons, 2)
	assert.Equal(t, report.ReasonGI, ev.Reasons[0])
	assert.Equal(t, report.ReasonGI, ev.Reasons[1])
	assert.Equal(t, 1.5, ev.Values[0].Float)
	assert.Equal(t, 2.5, ev.Values[1].Float)
	assert.Equal(t, entries, ev.Entries)
	assert.Equal(t, model.ObjectReference("LD1/GGIO1.B.mag.f"), ev.EntryName(1))
	// Changing the dataset bumped the configuration revision.
	assert.Equal(t, uint32(2), ev.ConfRev)
}

func TestExplicitGeneralInterrogation(t *testing.T) {
	sim := iedsim.NewSimpleIO(iedsim.Config{})
	s := connectSim(t, sim, Config{})
	ctx := context.Background()

	sub, err := s.Report(iedsim.EventsBRCB)
	require.NoError(t, err)
	got := make(events, 8)
	require.NoError(t, sub.Register(got.handler))
	_, err = sub.GetValues(ctx)
	require.NoError(t, err)

	// GI while disabled goes to the device, which refuses it.
	sub.SetGeneralInterrogation(true)
	err = sub.Commit(ctx, report.FieldGI)
	assert.ErrorIs(t, err, report.ErrCommitRejected)
	assert.ErrorIs(t, err, interaction.ErrRejected)
	assert.True(t, sub.Staged().GeneralInterrogation)

	sub.SetEnabled(true)
	require.NoError(t, sub.Commit(ctx, report.FieldEnabled))
	got.none(t, 50*time.Millisecond)

	require.NoError(t, sub.Commit(ctx, report.FieldGI))
	ev := got.next(t)
	assert.Equal(t, "BufferedEvents", ev.ReportID)
	assert.NotEmpty(t, ev.EntryID)
	for _, r := range ev.Reasons {
		assert.Equal(t, report.ReasonGI, r)
	}
	assert.False(t, sub.Staged().GeneralInterrogation)
	assert.False(t, sub.Committed().GeneralInterrogation)
}

func TestCommitRejectedKeepsState(t *testing.T) {
	sim := iedsim.NewSimpleIO(iedsim.Config{})
	s := connectSim(t, sim, Config{})
	ctx := context.Background()

	sub, err := s.Report(iedsim.EventsRCB)
	require.NoError(t, err)
	_, err = sub.GetValues(ctx)
	require.NoError(t, err)

	sub.SetEnabled(true)
	require.NoError(t, sub.Commit(ctx, report.FieldEnabled))

	require.NoError(t, sub.SetDataSet(iedsim.MeasurementsDataSet))
	err = sub.Commit(ctx, report.FieldDataSet)
	assert.ErrorIs(t, err, report.ErrCommitRejected)
	assert.Equal(t, report.StateEnabled, sub.State())
	assert.Equal(t, iedsim.EventsDataSet, sub.Committed().DataSet)
	assert.Equal(t, iedsim.MeasurementsDataSet, sub.Staged().DataSet)
}

func TestBrowseLeafAndUnknown(t *testing.T) {
	sim := iedsim.NewSimpleIO(iedsim.Config{})
	s := connectSim(t, sim, Config{})
	ctx := context.Background()
	b := s.Browser()

	children, err := b.DataDirectory(ctx, simLD+"/GGIO1.AnIn1.mag.f")
	require.NoError(t, err)
	assert.Empty(t, children)

	_, err = b.LogicalNodes(ctx, "UnknownLD")
	assert.ErrorIs(t, err, model.ErrObjectNotFound)
	assert.Equal(t, StateConnected, s.State())

	lds, err := b.LogicalDevices(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{simLD}, lds)
}

func TestBrowseChildren(t *testing.T) {
	sim := iedsim.NewSimpleIO(iedsim.Config{})
	s := connectSim(t, sim, Config{})
	ctx := context.Background()
	b := s.Browser()

	lln0 := model.ObjectReference(simLD + "/LLN0")
	tests := []struct {
		class model.NodeClass
		want  []model.ObjectReference
	}{
		{model.ClassDataSet, []model.ObjectReference{iedsim.EventsDataSet, iedsim.MeasurementsDataSet}},
		{model.ClassURCB, []model.ObjectReference{iedsim.EventsRCB, iedsim.MeasurementsRCB}},
		{model.ClassBRCB, []model.ObjectReference{iedsim.EventsBRCB}},
	}
	for _, tt := range tests {
		t.Run(tt.class.String(), func(t *testing.T) {
			nodes, err := b.Children(ctx, lln0, tt.class)
			require.NoError(t, err)
			refs := make([]model.ObjectReference, len(nodes))
			for i, n := range nodes {
				refs[i] = n.Reference
				assert.Equal(t, tt.class, n.Class)
			}
			assert.Equal(t, tt.want, refs)
		})
	}
}

func TestDataAttributesTree(t *testing.T) {
	sim := iedsim.NewSimpleIO(iedsim.Config{})
	s := connectSim(t, sim, Config{})

	tree, err := s.Browser().DataAttributes(context.Background(), simLD+"/GGIO1.AnIn1")
	require.NoError(t, err)
	assert.Equal(t, "AnIn1", tree.Name)
	require.Len(t, tree.Children, 3)
	assert.Equal(t, "mag", tree.Children[0].Name)
	assert.Equal(t, 5, tree.Count())

	f := tree.Find(simLD + "/GGIO1.AnIn1.mag.f")
	require.NotNil(t, f)
	assert.True(t, f.IsLeaf())
	assert.Equal(t, model.ClassDataAttribute, f.Class)

	_, err = s.Browser().DataAttributes(context.Background(), simLD+"/GGIO1.Nope")
	assert.ErrorIs(t, err, model.ErrObjectNotFound)
}

func TestDataAttributesDepthCap(t *testing.T) {
	sim := iedsim.New(iedsim.Config{})
	require.NoError(t, sim.AddDataAttribute("LD1/LN1.DO.a.b.c.d", model.FCST, model.IntValue(1)))
	require.NoError(t, sim.AddDataAttribute("LD1/LN1.DO.x", model.FCST, model.IntValue(2)))
	s := connectSim(t, sim, Config{MaxBrowseDepth: 2})

	tree, err := s.Browser().DataAttributes(context.Background(), "LD1/LN1.DO")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrModelTooDeep)
	require.NotNil(t, tree)

	b := tree.Find("LD1/LN1.DO.a.b")
	require.NotNil(t, b)
	assert.ErrorIs(t, b.Err, model.ErrModelTooDeep)
	assert.Empty(t, b.Children)

	// Siblings are still expanded.
	assert.NotNil(t, tree.Find("LD1/LN1.DO.x"))
}

func TestDiscover(t *testing.T) {
	sim := iedsim.NewSimpleIO(iedsim.Config{})
	s := connectSim(t, sim, Config{})

	sm, err := s.Browser().Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, sm.LogicalDevices, 1)

	ld := sm.LogicalDevices[0]
	assert.Equal(t, simLD, ld.Name)
	require.Len(t, ld.LogicalNodes, 2)

	lln0 := ld.LogicalNodes[0]
	assert.Equal(t, "LLN0", lln0.Name)
	require.Len(t, lln0.DataSets, 2)
	assert.Equal(t, iedsim.EventsDataSet, lln0.DataSets[0].Reference)
	assert.Len(t, lln0.DataSets[0].Entries, 4)
	assert.Equal(t, []model.ObjectReference{iedsim.EventsRCB, iedsim.MeasurementsRCB}, lln0.URCBs)
	assert.Equal(t, []model.ObjectReference{iedsim.EventsBRCB}, lln0.BRCBs)

	ggio := ld.LogicalNodes[1]
	var anIn *model.Node
	for _, do := range ggio.DataObjects {
		if do.Name == "AnIn1" {
			anIn = do
		}
	}
	require.NotNil(t, anIn)
	assert.NotNil(t, anIn.Find(simLD+"/GGIO1.AnIn1.mag.f"))

	// Discovery caches dataset layouts for report annotation.
	_, ok := s.layout(iedsim.EventsDataSet)
	assert.True(t, ok)
}

func TestConcurrentRequests(t *testing.T) {
	sim := iedsim.NewSimpleIO(iedsim.Config{})
	s := connectSim(t, sim, Config{})
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		ref := model.ObjectReference(fmt.Sprintf("%s/GGIO1.AnIn%d.mag.f", simLD, i))
		require.NoError(t, sim.UpdateValue(ref, model.FloatValue(float64(i))))
	}
	before := sim.TotalRequests()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			switch w % 4 {
			case 0:
				n := w/4 + 1
				var v model.Value
				v, err = s.ReadObject(ctx, model.ObjectReference(fmt.Sprintf("%s/GGIO1.AnIn%d.mag.f", simLD, n)), model.FCMX)
				if err == nil && v.Float != float64(n) {
					err = fmt.Errorf("AnIn%d: got %v", n, v)
				}
			case 1:
				var vals model.ValueCollection
				vals, err = s.DataSets().Read(ctx, iedsim.EventsDataSet)
				if err == nil && len(vals) != 4 {
					err = fmt.Errorf("events: %d values", len(vals))
				}
			case 2:
				_, err = s.GetRCBValues(ctx, iedsim.EventsRCB)
			case 3:
				var lns []string
				lns, err = s.Browser().LogicalNodes(ctx, simLD)
				if err == nil && len(lns) != 2 {
					err = fmt.Errorf("logical nodes: %v", lns)
				}
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, before+workers, sim.TotalRequests())
}

func TestHandlerClosesSession(t *testing.T) {
	sim := iedsim.NewSimpleIO(iedsim.Config{})
	s := connectSim(t, sim, Config{})
	ctx := context.Background()

	sub, err := s.Report(iedsim.EventsRCB)
	require.NoError(t, err)
	closed := make(chan error, 1)
	require.NoError(t, sub.Register(func(*report.Event) {
		closed <- s.Close()
	}))
	_, err = sub.GetValues(ctx)
	require.NoError(t, err)

	sub.SetTriggerOptions(report.TriggerGI)
	sub.SetEnabled(true)
	require.NoError(t, sub.Commit(ctx, report.FieldTriggerOptions, report.FieldEnabled))

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not run")
	}
	assert.Equal(t, StateDisconnected, s.State())
	assert.Eventually(t, func() bool { return sim.Sessions() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestConnectionLossFromDevice(t *testing.T) {
	sim := iedsim.NewSimpleIO(iedsim.Config{})
	s := connectSim(t, sim, Config{})

	sim.DropConnections()
	require.Eventually(t, func() bool { return s.State() == StateDisconnected }, 2*time.Second, 5*time.Millisecond)
	require.Error(t, s.LastError())

	_, err := s.Browser().LogicalDevices(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)

	// Reconnect on the same session.
	require.NoError(t, s.Connect(context.Background(), Endpoint{Host: "sim", Port: 102}))
	lds, err := s.Browser().LogicalDevices(context.Background())
	require.NoError(t, err)
	assert.Len(t, lds, 1)
}

func TestSessionOverTCP(t *testing.T) {
	sim := iedsim.NewSimpleIO(iedsim.Config{})
	srv, err := transport.NewServer(transport.ServerConfig{
		Address: "127.0.0.1:0",
		Handler: sim.Handler(),
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop() })

	ep, err := ParseEndpoint(srv.Addr().String())
	require.NoError(t, err)

	s := NewSession(Config{})
	require.NoError(t, s.Connect(context.Background(), ep))
	defer s.Close()

	v, err := s.ReadObject(context.Background(), simLD+"/LLN0.Mod.stVal", model.FCST)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.Int)

	require.NoError(t, s.Close())
	assert.NoError(t, s.LastError())
}
