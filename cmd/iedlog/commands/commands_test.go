package commands

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iedlink/iedlink-go/pkg/log"
	"github.com/iedlink/iedlink-go/pkg/wire"
)

const (
	connA = "a1b2c3d4-0000-4000-8000-000000000001"
	connB = "f9e8d7c6-0000-4000-8000-000000000002"
)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.ilog")
	logger, err := log.NewFileLogger(path)
	require.NoError(t, err)
	for _, ev := range events {
		logger.Log(ev)
	}
	require.NoError(t, logger.Close())
	return path
}

func sampleEvents() []log.Event {
	ts := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	read := wire.ServiceRead
	ok := wire.StatusSuccess
	denied := wire.StatusAccessDenied
	rtt := 1500 * time.Microsecond
	seq := uint32(7)

	return []log.Event{
		{
			Timestamp: ts, ConnectionID: connA, Direction: log.DirectionOut,
			Layer: log.LayerService, Category: log.CategoryState, RemoteAddr: "10.0.0.5:102",
			StateChange: &log.StateChangeEvent{Entity: log.StateEntitySession, OldState: "DISCONNECTED", NewState: "CONNECTED"},
		},
		{
			Timestamp: ts.Add(time.Second), ConnectionID: connA, Direction: log.DirectionOut,
			Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{Type: log.MessageTypeRequest, MessageID: 1, Service: &read,
				Reference: "simpleIOGenericIO/GGIO1.AnIn1.mag.f", FC: "MX"},
		},
		{
			Timestamp: ts.Add(2 * time.Second), ConnectionID: connA, Direction: log.DirectionIn,
			Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{Type: log.MessageTypeResponse, MessageID: 1, Status: &ok, RoundTrip: &rtt},
		},
		{
			Timestamp: ts.Add(3 * time.Second), ConnectionID: connA, Direction: log.DirectionIn,
			Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{Type: log.MessageTypeResponse, MessageID: 2, Status: &denied},
		},
		{
			Timestamp: ts.Add(4 * time.Second), ConnectionID: connB, Direction: log.DirectionIn,
			Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{Type: log.MessageTypeReport, ReportID: "Events",
				Reference: "simpleIOGenericIO/LLN0.RP.EventsRCB01", SeqNum: &seq, ValueCount: 4},
		},
		{
			Timestamp: ts.Add(5 * time.Second), ConnectionID: connB, Direction: log.DirectionIn,
			Layer: log.LayerTransport, Category: log.CategoryMessage,
			Frame: log.NewFrameEvent([]byte{0xa1, 0x01, 0x02}),
		},
		{
			Timestamp: ts.Add(6 * time.Second), ConnectionID: connB, Direction: log.DirectionIn,
			Layer: log.LayerTransport, Category: log.CategoryError,
			Error: &log.ErrorEventData{Layer: log.LayerTransport, Message: "connection reset", Context: "read frame"},
		},
	}
}

func TestFilterOptionsBuild(t *testing.T) {
	filter, err := FilterOptions{
		ConnID:    "a1b2",
		ReportID:  "Events",
		TimeStart: "2026-03-02T09:00:00Z",
		Layer:     "wire",
		Direction: "IN",
		Category:  "message",
	}.Build()
	require.NoError(t, err)

	assert.Equal(t, "a1b2", filter.ConnectionID)
	assert.Equal(t, "Events", filter.ReportID)
	require.NotNil(t, filter.TimeStart)
	assert.Nil(t, filter.TimeEnd)
	assert.Equal(t, log.LayerWire, *filter.Layer)
	assert.Equal(t, log.DirectionIn, *filter.Direction)
	assert.Equal(t, log.CategoryMessage, *filter.Category)

	tests := []FilterOptions{
		{TimeStart: "yesterday"},
		{TimeEnd: "2026-13-01"},
		{Layer: "physical"},
		{Direction: "sideways"},
		{Category: "control"},
	}
	for _, opts := range tests {
		_, err := opts.Build()
		assert.Error(t, err, "%+v", opts)
	}
}

func TestView(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	require.NoError(t, RunView(path, log.Filter{}, &buf))
	out := buf.String()

	assert.Contains(t, out, "[conn:a1b2c3d4]")
	assert.Contains(t, out, "DISCONNECTED -> CONNECTED")
	assert.Contains(t, out, "Peer: 10.0.0.5:102")
	assert.Contains(t, out, "Service: Read")
	assert.Contains(t, out, "Reference: simpleIOGenericIO/GGIO1.AnIn1.mag.f[MX]")
	assert.Contains(t, out, "RoundTrip: 1.500ms")
	assert.Contains(t, out, "Status: ACCESS_DENIED")
	assert.Contains(t, out, "ReportID: Events")
	assert.Contains(t, out, "SeqNum: 7")
	assert.Contains(t, out, "Data: a10102")
	assert.Contains(t, out, "Message: connection reset")
}

func TestViewConnectionPrefix(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	opts := FilterOptions{ConnID: "f9e8"}
	filter, err := opts.Build()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RunView(path, filter, &buf))
	out := buf.String()

	assert.Equal(t, 3, strings.Count(out, "[conn:f9e8d7c6]"))
	assert.NotContains(t, out, "a1b2c3d4")
}

func TestViewMissingFile(t *testing.T) {
	err := RunView(filepath.Join(t.TempDir(), "missing.ilog"), log.Filter{}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250.000us", formatDuration(250*time.Microsecond))
	assert.Equal(t, "12.500ms", formatDuration(12500*time.Microsecond))
	assert.Equal(t, "2.000s", formatDuration(2*time.Second))
}

func TestStats(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	stats, err := CollectStats(path)
	require.NoError(t, err)

	assert.Equal(t, 7, stats.TotalEvents)
	assert.Equal(t, 4, stats.EventsByLayer[log.LayerWire])
	assert.Equal(t, 2, stats.EventsByLayer[log.LayerTransport])
	assert.Equal(t, 1, stats.RequestsByService[wire.ServiceRead])
	assert.Equal(t, 1, stats.FailedResponses)
	assert.Equal(t, 1, stats.ReportsByID["Events"])
	assert.Equal(t, 1, stats.Errors)
	assert.Len(t, stats.Connections, 2)
	assert.Equal(t, "10.0.0.5:102", stats.Connections[connA].RemoteAddr)
	assert.Equal(t, 6*time.Second, stats.End.Sub(stats.Start))
	assert.Equal(t, 1500*time.Microsecond, stats.RoundTrip(50))

	var buf bytes.Buffer
	require.NoError(t, RunStats(path, &buf))
	out := buf.String()
	assert.Contains(t, out, "Total Events: 7")
	assert.Contains(t, out, "WIRE:")
	assert.Contains(t, out, "Read:")
	assert.Contains(t, out, "Failed responses: 1")
	assert.Contains(t, out, "Events:")
	assert.Contains(t, out, "Connections: 2")
	assert.Contains(t, out, "Errors: 1")
}

func TestStatsEmpty(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	require.NoError(t, RunStats(path, &buf))
	assert.Contains(t, buf.String(), "Total Events: 0")
	assert.NotContains(t, buf.String(), "Time Range")
}

func TestExportJSONL(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "out.jsonl")

	layer := log.LayerWire
	require.NoError(t, RunExport(path, log.Filter{Layer: &layer}, "jsonl", out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)

	var ev log.Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	require.NotNil(t, ev.Message)
	assert.Equal(t, uint32(1), ev.Message.MessageID)
}

func TestExportCSV(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "out.csv")

	require.NoError(t, RunExport(path, log.Filter{ReportID: "Events"}, "csv", out))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, csvHeader, rows[0])
	row := rows[1]
	assert.Equal(t, connB, row[1])
	assert.Equal(t, "REPORT", row[6])
	assert.Equal(t, "", row[7])
	assert.Equal(t, "simpleIOGenericIO/LLN0.RP.EventsRCB01", row[9])
	assert.Equal(t, "Events", row[11])
	assert.Equal(t, "7", row[12])
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	err := RunExport(path, log.Filter{}, "xml", "")
	assert.ErrorContains(t, err, "unknown format")
}

func TestRunFilter(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "filtered.ilog")

	n, err := RunFilter(path, FilterOptions{Output: out, Category: "error"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	reader, err := log.NewReader(out)
	require.NoError(t, err)
	defer reader.Close()
	events, err := reader.ReadAll()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "connection reset", events[0].Error.Message)
}
