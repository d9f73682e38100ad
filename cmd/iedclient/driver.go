package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/iedlink/iedlink-go/pkg/client"
	"github.com/iedlink/iedlink-go/pkg/model"
	"github.com/iedlink/iedlink-go/pkg/report"
)

// driver runs the fixed functional sequence against a device holding the
// generic IO sample model.
type driver struct {
	sess *client.Session
	out  io.Writer
	ld   string

	// reportWait is how long reports are collected before disabling.
	reportWait time.Duration

	// onReport additionally receives every report event (optional).
	onReport report.Handler
}

type step struct {
	name string
	run  func(ctx context.Context) error
}

// run executes every step and keeps going after a failed one unless the
// session is gone.
func (d *driver) run(ctx context.Context) error {
	steps := []step{
		{"read analogue value", d.readAnalogue},
		{"write description", d.writeDescription},
		{"read dataset", d.readDataSet},
		{"reporting", d.reporting},
		{"browse model", d.browse},
		{"dataset lifecycle", d.dataSetLifecycle},
	}

	failed := 0
	for _, s := range steps {
		fmt.Fprintf(d.out, "== %s\n", s.name)
		err := s.run(ctx)
		if err == nil {
			continue
		}
		failed++
		fmt.Fprintf(d.out, "   FAILED: %v\n", err)
		if errors.Is(err, client.ErrNotConnected) || ctx.Err() != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d steps failed", failed, len(steps))
	}
	return nil
}

func (d *driver) ref(path string) model.ObjectReference {
	return model.ObjectReference(d.ld + "/" + path)
}

func (d *driver) readAnalogue(ctx context.Context) error {
	ref := d.ref("GGIO1.AnIn1.mag.f")
	v, err := d.sess.ReadObject(ctx, ref, model.FCMX)
	if err != nil {
		return err
	}
	f, ok := v.AsFloat()
	if !ok {
		return fmt.Errorf("%s: unexpected type %s", ref, v.Type)
	}
	fmt.Fprintf(d.out, "   %s[MX] = %g\n", ref, f)
	return nil
}

func (d *driver) writeDescription(ctx context.Context) error {
	ref := d.ref("GGIO1.NamPlt.vendor")
	want := model.StringValue("iedlink")
	if err := d.sess.WriteObject(ctx, ref, model.FCDC, want); err != nil {
		return err
	}
	got, err := d.sess.ReadObject(ctx, ref, model.FCDC)
	if err != nil {
		return err
	}
	if !got.Equal(want) {
		return fmt.Errorf("%s reads back %s", ref, got)
	}
	fmt.Fprintf(d.out, "   %s[DC] = %s\n", ref, got)
	return nil
}

func (d *driver) readDataSet(ctx context.Context) error {
	ds := d.sess.DataSets()
	dir, err := ds.Directory(ctx, d.ref("LLN0.Events"))
	if err != nil {
		return err
	}
	values, err := ds.Read(ctx, dir.Reference)
	if err != nil {
		return err
	}
	printDataSet(d.out, dir, values)
	return nil
}

func (d *driver) reporting(ctx context.Context) error {
	sub, err := d.sess.Report(d.ref("LLN0.RP.EventsRCB01"))
	if err != nil {
		return err
	}
	if _, err := sub.GetValues(ctx); err != nil {
		return err
	}

	var received atomic.Int32
	if err := sub.Register(func(ev *report.Event) {
		received.Add(1)
		printEvent(d.out, ev)
		if d.onReport != nil {
			d.onReport(ev)
		}
	}); err != nil {
		return err
	}
	defer sub.Unregister()

	sub.SetTriggerOptions(report.TriggerDataUpdate | report.TriggerIntegrity | report.TriggerGI)
	if err := sub.SetIntegrityPeriod(5 * time.Second); err != nil {
		return err
	}
	sub.SetEnabled(true)
	if err := sub.Commit(ctx, report.FieldTriggerOptions, report.FieldIntegrityPeriod, report.FieldEnabled); err != nil {
		return fmt.Errorf("enable: %w", err)
	}
	fmt.Fprintf(d.out, "   enabled %s (%s)\n", sub.Reference(), sub.Committed().TriggerOptions)

	sub.SetGeneralInterrogation(true)
	if err := sub.Commit(ctx, report.FieldGI); err != nil {
		return fmt.Errorf("general interrogation: %w", err)
	}

	select {
	case <-time.After(d.reportWait):
	case <-ctx.Done():
		return ctx.Err()
	}

	sub.SetEnabled(false)
	if err := sub.Commit(ctx, report.FieldEnabled); err != nil {
		return fmt.Errorf("disable: %w", err)
	}
	fmt.Fprintf(d.out, "   disabled %s after %d reports\n", sub.Reference(), received.Load())
	return nil
}

func (d *driver) browse(ctx context.Context) error {
	sm, err := d.sess.Browser().Discover(ctx)
	if sm != nil {
		printModel(d.out, sm)
	}
	return err
}

func (d *driver) dataSetLifecycle(ctx context.Context) error {
	ds := d.sess.DataSets()
	ref := d.ref("LLN0.AnalogueValues")
	entries := []model.ObjectReference{
		d.ref("GGIO1.AnIn1").WithFC(model.FCMX),
		d.ref("GGIO1.AnIn2").WithFC(model.FCMX),
		d.ref("GGIO1.AnIn3").WithFC(model.FCMX),
		d.ref("GGIO1.AnIn4").WithFC(model.FCMX),
	}

	if err := ds.Create(ctx, ref, entries); err != nil {
		return fmt.Errorf("create: %w", err)
	}
	dir, err := ds.Directory(ctx, ref)
	if err != nil {
		return err
	}
	values, err := ds.Read(ctx, ref)
	if err != nil {
		return err
	}
	printDataSet(d.out, dir, values)

	if err := ds.Delete(ctx, ref); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	fmt.Fprintf(d.out, "   deleted %s\n", ref)
	return nil
}
