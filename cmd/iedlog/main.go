// Command iedlog reads protocol capture files written by iedclient
// -protocol-log.
//
// Usage:
//
//	iedlog <command> [flags] <file.ilog>
//
// Commands:
//
//	view     Print events in human-readable form
//	export   Export events as JSON lines or CSV
//	filter   Write matching events to a new capture file
//	stats    Summarize a capture
//
// Examples:
//
//	# Only reports of one RCB
//	iedlog view -report-id Events session.ilog
//
//	# Responses and requests without raw frames
//	iedlog view -layer wire session.ilog
//
//	# Keep one connection
//	iedlog filter -conn-id 3f2a9c1e -o conn.ilog session.ilog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/iedlink/iedlink-go/cmd/iedlog/commands"
)

const usage = `iedlog - protocol capture reader

Usage:
  iedlog <command> [flags] <file.ilog>

Commands:
  view     Print events in human-readable form
  export   Export events as JSON lines or CSV
  filter   Write matching events to a new capture file
  stats    Summarize a capture

Use "iedlog <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "view":
		err = runView(args)
	case "export":
		err = runExport(args)
	case "filter":
		err = runFilter(args)
	case "stats":
		err = runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// filterFlags registers the shared filter flags on fs.
func filterFlags(fs *flag.FlagSet) *commands.FilterOptions {
	var o commands.FilterOptions
	fs.StringVar(&o.ConnID, "conn-id", "", "Connection ID or prefix")
	fs.StringVar(&o.ReportID, "report-id", "", "Report ID (report messages only)")
	fs.StringVar(&o.TimeStart, "time-start", "", "Start time (RFC3339)")
	fs.StringVar(&o.TimeEnd, "time-end", "", "End time (RFC3339)")
	fs.StringVar(&o.Layer, "layer", "", "Layer: transport, wire, service")
	fs.StringVar(&o.Direction, "direction", "", "Direction: in, out")
	fs.StringVar(&o.Category, "category", "", "Category: message, state, error")
	return &o
}

func parseArgs(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return "", fmt.Errorf("capture file path required")
	}
	return fs.Arg(0), nil
}

func runView(args []string) error {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	opts := filterFlags(fs)
	path, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	filter, err := opts.Build()
	if err != nil {
		return err
	}
	return commands.RunView(path, filter, os.Stdout)
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", "jsonl", "Output format: jsonl, csv")
	output := fs.String("o", "", "Output file (default: stdout)")
	opts := filterFlags(fs)
	path, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	filter, err := opts.Build()
	if err != nil {
		return err
	}
	return commands.RunExport(path, filter, *format, *output)
}

func runFilter(args []string) error {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	output := fs.String("o", "", "Output file (required)")
	opts := filterFlags(fs)
	path, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if *output == "" {
		return fmt.Errorf("output file (-o) required")
	}
	opts.Output = *output
	n, err := commands.RunFilter(path, *opts)
	if err != nil {
		return err
	}
	fmt.Printf("Filtered %d events to %s\n", n, *output)
	return nil
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	path, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	return commands.RunStats(path, os.Stdout)
}
