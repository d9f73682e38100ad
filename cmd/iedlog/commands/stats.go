package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/iedlink/iedlink-go/pkg/log"
	"github.com/iedlink/iedlink-go/pkg/wire"
)

// Stats aggregates a capture.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	RequestsByService map[wire.Service]int
	FailedResponses   int
	ReportsByID       map[string]int
	Connections       map[string]*ConnectionStats
	Errors            int

	Start, End time.Time

	// roundTrips holds response times for the percentile summary.
	roundTrips []time.Duration
}

// ConnectionStats describes one connection in the capture.
type ConnectionStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	RemoteAddr string
}

func newStats() *Stats {
	return &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		RequestsByService: make(map[wire.Service]int),
		ReportsByID:       make(map[string]int),
		Connections:       make(map[string]*ConnectionStats),
	}
}

func (s *Stats) add(ev log.Event) {
	s.TotalEvents++
	s.EventsByLayer[ev.Layer]++
	s.EventsByCategory[ev.Category]++
	s.EventsByDirection[ev.Direction]++

	if s.Start.IsZero() || ev.Timestamp.Before(s.Start) {
		s.Start = ev.Timestamp
	}
	if ev.Timestamp.After(s.End) {
		s.End = ev.Timestamp
	}

	conn, ok := s.Connections[ev.ConnectionID]
	if !ok {
		conn = &ConnectionStats{FirstSeen: ev.Timestamp, LastSeen: ev.Timestamp}
		s.Connections[ev.ConnectionID] = conn
	}
	conn.Events++
	if ev.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = ev.Timestamp
	}
	if conn.RemoteAddr == "" {
		conn.RemoteAddr = ev.RemoteAddr
	}

	if m := ev.Message; m != nil {
		switch m.Type {
		case log.MessageTypeRequest:
			if m.Service != nil {
				s.RequestsByService[*m.Service]++
			}
		case log.MessageTypeResponse:
			if m.Status != nil && *m.Status != wire.StatusSuccess {
				s.FailedResponses++
			}
			if m.RoundTrip != nil {
				s.roundTrips = append(s.roundTrips, *m.RoundTrip)
			}
		case log.MessageTypeReport:
			s.ReportsByID[m.ReportID]++
		}
	}
	if ev.Error != nil {
		s.Errors++
	}
}

// RoundTrip returns the p-th percentile (0..100) of response round trip
// times, or 0 without responses.
func (s *Stats) RoundTrip(p float64) time.Duration {
	if len(s.roundTrips) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), s.roundTrips...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(p / 100 * float64(len(sorted)-1))
	return sorted[idx]
}

// CollectStats reads the whole capture.
func CollectStats(path string) (*Stats, error) {
	stats := newStats()
	err := eachEvent(path, log.Filter{}, func(ev log.Event) error {
		stats.add(ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// RunStats prints a summary of the capture.
func RunStats(path string, w io.Writer) error {
	stats, err := CollectStats(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, s *Stats) {
	fmt.Fprintln(w, "=== Protocol Capture Statistics ===")
	fmt.Fprintln(w)

	if s.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n", s.Start.Format(time.RFC3339), s.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", s.End.Sub(s.Start).Round(time.Second))
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Total Events: %d\n", s.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, l := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerService} {
		if n := s.EventsByLayer[l]; n > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", l.String()+":", n)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, c := range []log.Category{log.CategoryMessage, log.CategoryState, log.CategoryError} {
		if n := s.EventsByCategory[c]; n > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", c.String()+":", n)
		}
	}
	fmt.Fprintln(w)

	if len(s.RequestsByService) > 0 {
		fmt.Fprintln(w, "Requests by Service:")
		services := make([]wire.Service, 0, len(s.RequestsByService))
		for svc := range s.RequestsByService {
			services = append(services, svc)
		}
		sort.Slice(services, func(i, j int) bool { return services[i] < services[j] })
		for _, svc := range services {
			fmt.Fprintf(w, "  %-24s %d\n", svc.String()+":", s.RequestsByService[svc])
		}
		fmt.Fprintf(w, "  Failed responses: %d\n", s.FailedResponses)
		if len(s.roundTrips) > 0 {
			fmt.Fprintf(w, "  Round trip p50 %s, p99 %s\n",
				formatDuration(s.RoundTrip(50)), formatDuration(s.RoundTrip(99)))
		}
		fmt.Fprintln(w)
	}

	if len(s.ReportsByID) > 0 {
		fmt.Fprintln(w, "Reports:")
		ids := make([]string, 0, len(s.ReportsByID))
		for id := range s.ReportsByID {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(w, "  %-24s %d\n", id+":", s.ReportsByID[id])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Connections: %d\n", len(s.Connections))
	ids := make([]string, 0, len(s.Connections))
	for id := range s.Connections {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.Connections[ids[i]].FirstSeen.Before(s.Connections[ids[j]].FirstSeen)
	})
	for _, id := range ids {
		c := s.Connections[id]
		fmt.Fprintf(w, "  [%s] %d events, duration %s", shortenConnID(id), c.Events,
			c.LastSeen.Sub(c.FirstSeen).Round(time.Millisecond))
		if c.RemoteAddr != "" {
			fmt.Fprintf(w, ", peer %s", c.RemoteAddr)
		}
		fmt.Fprintln(w)
	}

	if s.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", s.Errors)
	}
}
