package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/iedlink/iedlink-go/pkg/log"
)

// RunExport writes the events matching filter as JSON lines or CSV to
// output, or to stdout when output is empty.
func RunExport(path string, filter log.Filter, format, output string) error {
	if format != "jsonl" && format != "csv" {
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if format == "jsonl" {
		return exportJSONL(path, filter, w)
	}
	return exportCSV(path, filter, w)
}

func exportJSONL(path string, filter log.Filter, w io.Writer) error {
	enc := json.NewEncoder(w)
	return eachEvent(path, filter, func(ev log.Event) error {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		return nil
	})
}

var csvHeader = []string{
	"timestamp", "connection_id", "role", "direction", "layer", "category",
	"type", "message_id", "service", "reference", "status", "report_id", "seq_num",
}

func exportCSV(path string, filter log.Filter, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	err := eachEvent(path, filter, func(ev log.Event) error {
		if err := cw.Write(csvRow(ev)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		return nil
	})
	cw.Flush()
	if err != nil {
		return err
	}
	return cw.Error()
}

func csvRow(ev log.Event) []string {
	var msgID, service, ref, status, reportID, seq string
	if m := ev.Message; m != nil {
		if m.Type != log.MessageTypeReport {
			msgID = strconv.FormatUint(uint64(m.MessageID), 10)
		}
		if m.Service != nil {
			service = m.Service.String()
		}
		ref = string(m.Reference)
		if m.Status != nil {
			status = m.Status.String()
		}
		reportID = m.ReportID
		if m.SeqNum != nil {
			seq = strconv.FormatUint(uint64(*m.SeqNum), 10)
		}
	}
	return []string{
		ev.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
		ev.ConnectionID,
		ev.LocalRole.String(),
		ev.Direction.String(),
		ev.Layer.String(),
		ev.Category.String(),
		eventType(ev),
		msgID, service, ref, status, reportID, seq,
	}
}
