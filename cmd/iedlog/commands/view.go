// Package commands implements the iedlog commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/iedlink/iedlink-go/pkg/log"
)

// RunView prints the events matching filter.
func RunView(path string, filter log.Filter, w io.Writer) error {
	return eachEvent(path, filter, func(ev log.Event) error {
		formatEvent(w, ev)
		return nil
	})
}

// eventType labels the payload of an event.
func eventType(ev log.Event) string {
	switch {
	case ev.Frame != nil:
		return "Frame"
	case ev.Message != nil:
		return ev.Message.Type.String()
	case ev.StateChange != nil:
		return "State"
	case ev.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// formatEvent writes one event followed by a blank line.
func formatEvent(w io.Writer, ev log.Event) {
	ts := ev.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	fmt.Fprintf(w, "%s [conn:%s] %s %-3s %s %s\n",
		ts, shortenConnID(ev.ConnectionID), ev.LocalRole, ev.Direction, ev.Layer, eventType(ev))

	switch {
	case ev.Frame != nil:
		formatFrame(w, ev.Frame)
	case ev.Message != nil:
		formatMessage(w, ev.Message)
	case ev.StateChange != nil:
		formatStateChange(w, ev.StateChange)
	case ev.Error != nil:
		formatError(w, ev.Error)
	}
	if ev.RemoteAddr != "" {
		fmt.Fprintf(w, "  Peer: %s\n", ev.RemoteAddr)
	}
	fmt.Fprintln(w)
}

func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatFrame(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(frame.Data))
		if frame.Truncated {
			fmt.Fprint(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatMessage(w io.Writer, msg *log.MessageEvent) {
	switch msg.Type {
	case log.MessageTypeRequest:
		fmt.Fprintf(w, "  MessageID: %d\n", msg.MessageID)
		if msg.Service != nil {
			fmt.Fprintf(w, "  Service: %s\n", msg.Service)
		}
		if msg.Reference != "" {
			if msg.FC != "" {
				fmt.Fprintf(w, "  Reference: %s[%s]\n", msg.Reference, msg.FC)
			} else {
				fmt.Fprintf(w, "  Reference: %s\n", msg.Reference)
			}
		}

	case log.MessageTypeResponse:
		fmt.Fprintf(w, "  MessageID: %d\n", msg.MessageID)
		if msg.Status != nil {
			fmt.Fprintf(w, "  Status: %s (%d)\n", msg.Status, *msg.Status)
		}
		if msg.RoundTrip != nil {
			fmt.Fprintf(w, "  RoundTrip: %s\n", formatDuration(*msg.RoundTrip))
		}

	case log.MessageTypeReport:
		fmt.Fprintf(w, "  ReportID: %s\n", msg.ReportID)
		if msg.Reference != "" {
			fmt.Fprintf(w, "  RCB: %s\n", msg.Reference)
		}
		if msg.SeqNum != nil {
			fmt.Fprintf(w, "  SeqNum: %d\n", *msg.SeqNum)
		}
		fmt.Fprintf(w, "  Values: %d\n", msg.ValueCount)
	}
}

func formatStateChange(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatError(w io.Writer, e *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", e.Layer)
	fmt.Fprintf(w, "  Message: %s\n", e.Message)
	if e.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *e.Code)
	}
	if e.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", e.Context)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}
