package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/iedlink/iedlink-go/pkg/model"
	"github.com/iedlink/iedlink-go/pkg/report"
)

// syncWriter serializes writes from the command loop and report handlers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func printEvent(w io.Writer, ev *report.Event) {
	fmt.Fprintf(w, "[REPORT] %s seq=%d", ev.ReportID, ev.SeqNum)
	if len(ev.EntryID) > 0 {
		fmt.Fprintf(w, " entry=%x", ev.EntryID)
	}
	if !ev.Timestamp.IsZero() {
		fmt.Fprintf(w, " time=%s", ev.Timestamp.Format("15:04:05.000"))
	}
	fmt.Fprintln(w)
	for _, i := range ev.Included() {
		name := string(ev.EntryName(i))
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}
		fmt.Fprintf(w, "    %-48s %-20s (%s)\n", name, ev.Values[i], ev.Reasons[i])
	}
}

func printDataSet(w io.Writer, ds *model.DataSet, values model.ValueCollection) {
	flag := "fixed"
	if ds.Deletable {
		flag = "deletable"
	}
	fmt.Fprintf(w, "%s (%d entries, %s)\n", ds.Reference, len(ds.Entries), flag)
	for i, e := range ds.Entries {
		if i < len(values) {
			fmt.Fprintf(w, "  [%d] %-48s %s\n", i, e, values[i])
		} else {
			fmt.Fprintf(w, "  [%d] %s\n", i, e)
		}
	}
}

func printModel(w io.Writer, sm *model.ServerModel) {
	for _, ld := range sm.LogicalDevices {
		fmt.Fprintf(w, "LD %s\n", ld.Name)
		for _, ln := range ld.LogicalNodes {
			fmt.Fprintf(w, "  LN %s\n", ln.Name)
			for _, do := range ln.DataObjects {
				_ = do.Walk(func(n *model.Node, depth int) error {
					label := "DO"
					if depth > 0 {
						label = "DA"
					}
					fmt.Fprintf(w, "%s%s %s", strings.Repeat("  ", depth+2), label, n.Name)
					if n.Err != nil {
						fmt.Fprintf(w, " (%v)", n.Err)
					}
					fmt.Fprintln(w)
					return nil
				})
			}
			for _, ds := range ln.DataSets {
				fmt.Fprintf(w, "    DS %s\n", lastName(ds.Reference))
				for _, e := range ds.Entries {
					fmt.Fprintf(w, "      %s\n", e)
				}
			}
			for _, r := range ln.URCBs {
				fmt.Fprintf(w, "    URCB %s\n", lastName(r))
			}
			for _, r := range ln.BRCBs {
				fmt.Fprintf(w, "    BRCB %s\n", lastName(r))
			}
		}
	}
}

func printRCB(w io.Writer, rcb report.RCB) {
	fmt.Fprintf(w, "%s\n", rcb.Reference)
	fmt.Fprintf(w, "  RptID   %s\n", rcb.ReportID)
	fmt.Fprintf(w, "  DatSet  %s\n", rcb.DataSet)
	fmt.Fprintf(w, "  ConfRev %d\n", rcb.ConfRev)
	fmt.Fprintf(w, "  Buffered %t\n", rcb.Buffered)
	fmt.Fprintf(w, "  RptEna  %t\n", rcb.Enabled)
	fmt.Fprintf(w, "  TrgOps  %s\n", rcb.TriggerOptions)
	fmt.Fprintf(w, "  IntgPd  %s\n", rcb.IntegrityPeriod)
	fmt.Fprintf(w, "  BufTm   %s\n", rcb.BufferTime)
}

func lastName(ref model.ObjectReference) string {
	s := string(ref)
	if i := strings.LastIndexAny(s, "./"); i >= 0 {
		return s[i+1:]
	}
	return s
}
