package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/iedlink/iedlink-go/pkg/client"
	"github.com/iedlink/iedlink-go/pkg/model"
	"github.com/iedlink/iedlink-go/pkg/report"
)

// shell executes interactive commands against one session. Subscriptions
// created by rcb commands are kept so reports keep flowing between
// commands.
type shell struct {
	sess     *client.Session
	out      io.Writer
	onReport report.Handler

	subs map[model.ObjectReference]*report.Subscription
}

func newShell(sess *client.Session, out io.Writer, onReport report.Handler) *shell {
	return &shell{
		sess:     sess,
		out:      out,
		onReport: onReport,
		subs:     make(map[model.ObjectReference]*report.Subscription),
	}
}

// runInteractive reads commands with readline until quit, EOF or ctx is
// done.
func runInteractive(ctx context.Context, cancel context.CancelFunc, rl *readline.Instance, sh *shell) {
	defer rl.Close()
	sh.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(sh.out, "Exiting...")
			cancel()
			return
		}
		if !sh.exec(ctx, line) {
			cancel()
			return
		}
	}
}

// exec runs one command line. It returns false when the shell should exit.
func (sh *shell) exec(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		sh.printHelp()
	case "browse", "b":
		err = sh.cmdBrowse(ctx, args)
	case "read", "r":
		err = sh.cmdRead(ctx, args)
	case "write", "w":
		err = sh.cmdWrite(ctx, args)
	case "ds-create":
		err = sh.cmdDataSetCreate(ctx, args)
	case "ds-read":
		err = sh.cmdDataSetRead(ctx, args)
	case "ds-dir":
		err = sh.cmdDataSetDirectory(ctx, args)
	case "ds-delete":
		err = sh.cmdDataSetDelete(ctx, args)
	case "rcb":
		err = sh.cmdRCB(ctx, args)
	case "status":
		sh.cmdStatus()
	case "quit", "exit", "q":
		fmt.Fprintln(sh.out, "Exiting...")
		return false
	default:
		fmt.Fprintf(sh.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(sh.out, "Error: %v\n", err)
	}
	return true
}

func (sh *shell) printHelp() {
	fmt.Fprintln(sh.out, `
Commands:
  Browsing:
    browse                               - List logical devices
    browse <ld>                          - List logical nodes
    browse <ld/ln>                       - List data objects, datasets and RCBs
    browse <ld/ln.do>                    - Show the attribute tree of a data object

  Data access:
    read <ref> <fc>                      - Read an object
    write <ref> <fc> <type> <value>      - Write an object (type: boolean, integer,
                                           unsigned, float, visible-string, utc-time)

  Datasets:
    ds-create <ref> <entry>...           - Create a dataset (entries like ld/ln.do[MX])
    ds-read <ref>                        - Read dataset values
    ds-dir <ref>                         - List dataset members
    ds-delete <ref>                      - Delete a dataset

  Reporting:
    rcb get <ref>                        - Show an RCB
    rcb enable <ref> [triggers] [intgPd] - Enable (triggers like DataChange|GI)
    rcb gi <ref>                         - Request a general interrogation
    rcb disable <ref>                    - Disable

  Other:
    status                               - Show session status
    quit                                 - Exit`)
}

func (sh *shell) cmdBrowse(ctx context.Context, args []string) error {
	b := sh.sess.Browser()
	if len(args) == 0 {
		lds, err := b.LogicalDevices(ctx)
		if err != nil {
			return err
		}
		for _, ld := range lds {
			fmt.Fprintf(sh.out, "LD %s\n", ld)
		}
		return nil
	}

	target := args[0]
	ld, rest, found := strings.Cut(target, "/")
	if !found {
		lns, err := b.LogicalNodes(ctx, ld)
		if err != nil {
			return err
		}
		for _, ln := range lns {
			fmt.Fprintf(sh.out, "LN %s/%s\n", ld, ln)
		}
		return nil
	}

	ref := model.ObjectReference(target)
	if strings.Contains(rest, ".") {
		tree, err := b.DataAttributes(ctx, ref)
		if tree != nil {
			_ = tree.Walk(func(n *model.Node, depth int) error {
				fmt.Fprintf(sh.out, "%s%s\n", strings.Repeat("  ", depth), n.Name)
				return nil
			})
		}
		return err
	}

	for _, class := range []model.NodeClass{model.ClassDataObject, model.ClassDataSet, model.ClassURCB, model.ClassBRCB} {
		nodes, err := b.Children(ctx, ref, class)
		if err != nil {
			return fmt.Errorf("%s: %w", class, err)
		}
		for _, n := range nodes {
			fmt.Fprintf(sh.out, "%-7s %s\n", class, n.Reference)
		}
	}
	return nil
}

func parseFC(s string) (model.FC, error) {
	fc := model.FC(strings.ToUpper(s))
	if !fc.IsValid() {
		return "", fmt.Errorf("unknown functional constraint %q", s)
	}
	return fc, nil
}

func (sh *shell) cmdRead(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: read <ref> <fc>")
	}
	fc, err := parseFC(args[1])
	if err != nil {
		return err
	}
	v, err := sh.sess.ReadObject(ctx, model.ObjectReference(args[0]), fc)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "%s[%s] = %s (%s)\n", args[0], fc, v, v.Type)
	return nil
}

func (sh *shell) cmdWrite(ctx context.Context, args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: write <ref> <fc> <type> <value>")
	}
	fc, err := parseFC(args[1])
	if err != nil {
		return err
	}
	t, ok := model.ParseValueType(args[2])
	if !ok {
		return fmt.Errorf("unknown type %q", args[2])
	}
	v, err := model.ParseValue(t, strings.Join(args[3:], " "))
	if err != nil {
		return err
	}
	if err := sh.sess.WriteObject(ctx, model.ObjectReference(args[0]), fc, v); err != nil {
		return err
	}
	fmt.Fprintln(sh.out, "OK")
	return nil
}

func (sh *shell) cmdDataSetCreate(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: ds-create <ref> <entry>...")
	}
	if err := sh.sess.DataSets().Create(ctx, model.ObjectReference(args[0]), model.References(args[1:]...)); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Created %s with %d entries\n", args[0], len(args)-1)
	return nil
}

func (sh *shell) cmdDataSetRead(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: ds-read <ref>")
	}
	ds := sh.sess.DataSets()
	ref := model.ObjectReference(args[0])
	dir, err := ds.Directory(ctx, ref)
	if err != nil {
		return err
	}
	values, err := ds.Read(ctx, ref)
	if err != nil {
		return err
	}
	printDataSet(sh.out, dir, values)
	return nil
}

func (sh *shell) cmdDataSetDirectory(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: ds-dir <ref>")
	}
	dir, err := sh.sess.DataSets().Directory(ctx, model.ObjectReference(args[0]))
	if err != nil {
		return err
	}
	printDataSet(sh.out, dir, nil)
	return nil
}

func (sh *shell) cmdDataSetDelete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: ds-delete <ref>")
	}
	if err := sh.sess.DataSets().Delete(ctx, model.ObjectReference(args[0])); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Deleted %s\n", args[0])
	return nil
}

// subscription returns the kept subscription for ref, creating and
// reading it on first use.
func (sh *shell) subscription(ctx context.Context, ref model.ObjectReference) (*report.Subscription, error) {
	if sub, ok := sh.subs[ref]; ok && sub.State() != report.StateUnbound {
		return sub, nil
	}
	sub, err := sh.sess.Report(ref)
	if err != nil {
		return nil, err
	}
	if _, err := sub.GetValues(ctx); err != nil {
		return nil, err
	}
	if err := sub.Register(sh.handleReport); err != nil {
		return nil, err
	}
	sh.subs[ref] = sub
	return sub, nil
}

func (sh *shell) handleReport(ev *report.Event) {
	printEvent(sh.out, ev)
	if sh.onReport != nil {
		sh.onReport(ev)
	}
}

func (sh *shell) cmdRCB(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: rcb get|enable|gi|disable <ref> ...")
	}
	ref := model.ObjectReference(args[1])
	sub, err := sh.subscription(ctx, ref)
	if err != nil {
		return err
	}

	switch strings.ToLower(args[0]) {
	case "get":
		rcb, err := sub.GetValues(ctx)
		if err != nil {
			return err
		}
		printRCB(sh.out, rcb)
		return nil

	case "enable":
		fields := []report.Field{report.FieldEnabled}
		if len(args) > 2 {
			t, err := report.ParseTriggerOptions(args[2])
			if err != nil {
				return err
			}
			sub.SetTriggerOptions(t)
			fields = append(fields, report.FieldTriggerOptions)
		}
		if len(args) > 3 {
			d, err := parseDuration(args[3])
			if err != nil {
				return err
			}
			if err := sub.SetIntegrityPeriod(d); err != nil {
				return err
			}
			fields = append(fields, report.FieldIntegrityPeriod)
		}
		sub.SetEnabled(true)
		if err := sub.Commit(ctx, fields...); err != nil {
			return err
		}
		committed := sub.Committed()
		fmt.Fprintf(sh.out, "Enabled %s (report ID %s)\n", ref, committed.EffectiveReportID())
		return nil

	case "gi":
		sub.SetGeneralInterrogation(true)
		if err := sub.Commit(ctx, report.FieldGI); err != nil {
			return err
		}
		fmt.Fprintln(sh.out, "OK")
		return nil

	case "disable":
		sub.SetEnabled(false)
		if err := sub.Commit(ctx, report.FieldEnabled); err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Disabled %s\n", ref)
		return nil

	default:
		return fmt.Errorf("unknown rcb command %q", args[0])
	}
}

// parseDuration accepts Go durations and bare milliseconds.
func parseDuration(s string) (time.Duration, error) {
	if ms, err := strconv.ParseUint(s, 10, 32); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

func (sh *shell) cmdStatus() {
	fmt.Fprintf(sh.out, "Session:  %s\n", sh.sess.State())
	fmt.Fprintf(sh.out, "Endpoint: %s\n", sh.sess.Endpoint())
	if err := sh.sess.LastError(); err != nil {
		fmt.Fprintf(sh.out, "Last error: %v\n", err)
	}
	refs := make([]string, 0, len(sh.subs))
	for ref := range sh.subs {
		refs = append(refs, string(ref))
	}
	sort.Strings(refs)
	for _, ref := range refs {
		sub := sh.subs[model.ObjectReference(ref)]
		fmt.Fprintf(sh.out, "RCB %s: %s\n", ref, sub.State())
	}
	if d, err := sh.sess.Dispatcher(); err == nil {
		fmt.Fprintf(sh.out, "Reports: %d delivered, %d dropped\n", d.Delivered(), d.Dropped())
	}
}
