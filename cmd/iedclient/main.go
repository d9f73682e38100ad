// Command iedclient connects to a device, runs a functional check of the
// client engine against it, and optionally stays connected as an
// interactive shell or a report forwarder.
//
// Usage:
//
//	iedclient [flags]
//
// Flags:
//
//	-config string        YAML configuration file
//	-endpoint string      Device address host[:port] (default "localhost:102")
//	-ld string            Logical device of the functional check (default "simpleIOGenericIO")
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Capture protocol events to this file
//	-report-wait duration Time to collect reports in the functional check (default 6s)
//	-interactive          Start the interactive shell instead of the functional check
//	-simulate             Serve a simulated device on a local port and connect to it
//	-skip-check           Do not run the functional check
//
// Examples:
//
//	# Functional check against the built-in simulator
//	iedclient -simulate
//
//	# Interactive shell against a real device
//	iedclient -endpoint 192.168.1.20:102 -interactive
//
//	# Enable the RCBs listed in a config file and forward their reports
//	iedclient -config iedclient.yaml -skip-check
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chzyer/readline"

	"github.com/iedlink/iedlink-go/internal/iedsim"
	"github.com/iedlink/iedlink-go/pkg/client"
	"github.com/iedlink/iedlink-go/pkg/connection"
	"github.com/iedlink/iedlink-go/pkg/forward"
	"github.com/iedlink/iedlink-go/pkg/log"
	"github.com/iedlink/iedlink-go/pkg/model"
	"github.com/iedlink/iedlink-go/pkg/report"
	"github.com/iedlink/iedlink-go/pkg/transport"
)

// Options holds the effective command settings.
type Options struct {
	ConfigFile  string
	Endpoint    string
	LD          string
	LogLevel    string
	ProtocolLog string
	ReportWait  time.Duration
	Interactive bool
	Simulate    bool
	SkipCheck   bool

	File FileConfig
}

var opts Options

func init() {
	flag.StringVar(&opts.ConfigFile, "config", "", "YAML configuration file")
	flag.StringVar(&opts.Endpoint, "endpoint", "localhost:102", "Device address host[:port]")
	flag.StringVar(&opts.LD, "ld", iedsim.SimpleIODevice, "Logical device of the functional check")
	flag.StringVar(&opts.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&opts.ProtocolLog, "protocol-log", "", "Capture protocol events to this file")
	flag.DurationVar(&opts.ReportWait, "report-wait", 6*time.Second, "Time to collect reports in the functional check")
	flag.BoolVar(&opts.Interactive, "interactive", false, "Start the interactive shell instead of the functional check")
	flag.BoolVar(&opts.Simulate, "simulate", false, "Serve a simulated device on a local port and connect to it")
	flag.BoolVar(&opts.SkipCheck, "skip-check", false, "Do not run the functional check")
}

func main() {
	flag.Parse()

	if opts.ConfigFile != "" {
		fc, err := LoadConfig(opts.ConfigFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		set := map[string]bool{}
		flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
		opts.applyFile(fc, set)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cancel, &opts); err != nil {
		fmt.Fprintln(os.Stderr, "iedclient:", err)
		os.Exit(1)
	}
}

// applyFile takes values from the config file unless the flag was given
// on the command line.
func (o *Options) applyFile(fc *FileConfig, set map[string]bool) {
	o.File = *fc
	if fc.Endpoint != "" && !set["endpoint"] {
		o.Endpoint = fc.Endpoint
	}
	if fc.LogLevel != "" && !set["log-level"] {
		o.LogLevel = fc.LogLevel
	}
	if fc.ProtocolLog != "" && !set["protocol-log"] {
		o.ProtocolLog = fc.ProtocolLog
	}
}

func run(ctx context.Context, cancel context.CancelFunc, o *Options) error {
	level, err := parseLevel(o.LogLevel)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	var logOut io.Writer = os.Stderr
	var rl *readline.Instance
	if o.Interactive {
		rl, err = readline.NewEx(&readline.Config{
			Prompt:          "ied> ",
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return fmt.Errorf("failed to create readline: %w", err)
		}
		out, logOut = rl.Stdout(), rl.Stderr()
	}
	out = &syncWriter{w: out}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

	plog, closeLog, err := protocolLogger(o.ProtocolLog, logger, level)
	if err != nil {
		return err
	}
	defer closeLog()

	if o.Simulate {
		addr, stop, err := startSimulator(ctx, logger)
		if err != nil {
			return err
		}
		defer stop()
		o.Endpoint = addr
	}

	ep, err := client.ParseEndpoint(o.Endpoint)
	if err != nil {
		return err
	}

	onReport, stopForward, err := startForwarder(ctx, o.File.Forward, logger)
	if err != nil {
		return err
	}
	defer stopForward()

	cfg := client.DefaultConfig()
	if o.File.ConnectTimeout > 0 {
		cfg.ConnectTimeout = o.File.ConnectTimeout
	}
	if o.File.RequestTimeout > 0 {
		cfg.RequestTimeout = o.File.RequestTimeout
	}
	cfg.TLS = o.File.TLS
	cfg.Logger = logger
	cfg.ProtocolLogger = plog

	sess := client.NewSession(cfg)
	if err := connect(ctx, sess, ep, o.File.Connect, logger); err != nil {
		return err
	}
	defer sess.Close()
	logger.Info("connected", "endpoint", ep.String(), "conn", sess.ConnID())

	printer := func(ev *report.Event) {
		printEvent(out, ev)
		if onReport != nil {
			onReport(ev)
		}
	}
	if err := enableReports(ctx, sess, o.File.Reports, printer, logger); err != nil {
		return err
	}

	if o.Interactive {
		runInteractive(ctx, cancel, rl, newShell(sess, out, onReport))
		return nil
	}

	if !o.SkipCheck {
		d := &driver{sess: sess, out: out, ld: o.LD, reportWait: o.ReportWait, onReport: onReport}
		if err := d.run(ctx); err != nil {
			return err
		}
	}

	if len(o.File.Reports) == 0 {
		return nil
	}
	logger.Info("receiving reports, press Ctrl+C to stop", "rcbs", len(o.File.Reports))
	select {
	case <-ctx.Done():
	case <-sessionLost(ctx, sess):
		if err := sess.LastError(); err != nil {
			return fmt.Errorf("connection lost: %w", err)
		}
	}
	return nil
}

// connect retries Connect with backoff. A second Connect on a connected
// session is not retried.
// protocolLogger builds the protocol event sink: the capture file when
// path is set, plus the console at debug level. It returns nil when
// neither applies.
func protocolLogger(path string, logger *slog.Logger, level slog.Level) (log.Logger, func(), error) {
	var sinks []log.Logger
	closeFn := func() {}
	if path != "" {
		fl, err := log.NewFileLogger(path)
		if err != nil {
			return nil, nil, err
		}
		closeFn = func() { _ = fl.Close() }
		sinks = append(sinks, fl)
		logger.Info("capturing protocol events", "path", fl.Path())
	}
	if level <= slog.LevelDebug {
		sinks = append(sinks, log.NewSlogAdapter(logger.With("component", "protocol")))
	}

	switch len(sinks) {
	case 0:
		return nil, closeFn, nil
	case 1:
		return sinks[0], closeFn, nil
	}
	return log.NewMultiLogger(sinks...), closeFn, nil
}

func connect(ctx context.Context, sess *client.Session, ep client.Endpoint, cfg ConnectConfig, logger *slog.Logger) error {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	onRetry := func(attempt int, err error) {
		logger.Warn("connect failed, retrying", "endpoint", ep.String(), "attempt", attempt, "error", err)
	}
	return connection.Retry(ctx, connection.NewBackoffWithConfig(cfg.Backoff), attempts, onRetry, func(ctx context.Context) error {
		err := sess.Connect(ctx, ep)
		var ce *client.ConnectError
		if errors.As(err, &ce) && ce.Kind == client.ConnectAlreadyConnected {
			return &connection.Permanent{Err: err}
		}
		return err
	})
}

// sessionLost returns a channel closed once the session leaves the
// connected state. The watcher ends with ctx.
func sessionLost(ctx context.Context, sess *client.Session) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if sess.State() != client.StateConnected {
				close(ch)
				return
			}
		}
	}()
	return ch
}

// enableReports enables the configured RCBs with handler registered.
func enableReports(ctx context.Context, sess *client.Session, reports []ReportConfig, handler report.Handler, logger *slog.Logger) error {
	for _, rc := range reports {
		sub, err := sess.Report(model.ObjectReference(rc.RCB))
		if err != nil {
			return err
		}
		if _, err := sub.GetValues(ctx); err != nil {
			return fmt.Errorf("%s: %w", rc.RCB, err)
		}
		if err := sub.Register(handler); err != nil {
			return fmt.Errorf("%s: %w", rc.RCB, err)
		}

		trg, err := rc.TriggerOptions()
		if err != nil {
			return err
		}
		sub.SetTriggerOptions(trg)
		fields := []report.Field{report.FieldTriggerOptions, report.FieldEnabled}
		if rc.IntegrityPeriod > 0 {
			if err := sub.SetIntegrityPeriod(rc.IntegrityPeriod); err != nil {
				return fmt.Errorf("%s: %w", rc.RCB, err)
			}
			fields = append(fields, report.FieldIntegrityPeriod)
		}
		sub.SetEnabled(true)
		if err := sub.Commit(ctx, fields...); err != nil {
			return fmt.Errorf("%s: enable: %w", rc.RCB, err)
		}
		if rc.GI {
			sub.SetGeneralInterrogation(true)
			if err := sub.Commit(ctx, report.FieldGI); err != nil {
				return fmt.Errorf("%s: general interrogation: %w", rc.RCB, err)
			}
		}
		logger.Info("report enabled", "rcb", rc.RCB, "trgOps", trg.String())
	}
	return nil
}

// startForwarder builds the configured sinks. With no sinks it returns a
// nil handler.
func startForwarder(ctx context.Context, cfg ForwardConfig, logger *slog.Logger) (report.Handler, func(), error) {
	if !cfg.Enabled() {
		return nil, func() {}, nil
	}

	var sinks []forward.Sink
	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}
	for _, mc := range cfg.MQTT {
		s, err := forward.NewMQTTSink(mc)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, s)
	}
	for _, kc := range cfg.Kafka {
		s, err := forward.NewKafkaSink(kc)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, s)
	}
	for _, vc := range cfg.Valkey {
		s, err := forward.NewValkeySink(ctx, vc)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, s)
	}
	for _, s := range sinks {
		logger.Info("forwarding reports", "sink", s.Name())
	}

	fwd := forward.New(forward.Config{
		QueueSize:  cfg.QueueSize,
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		Backoff:    cfg.Backoff,
		Logger:     logger,
	}, sinks...)

	stop := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := fwd.Stop(stopCtx); err != nil {
			logger.Warn("forwarder stop", "error", err)
		}
		logger.Info("forwarder stopped",
			"published", fwd.Published(), "failed", fwd.Failed(), "dropped", fwd.Dropped())
	}
	return fwd.Handler(), stop, nil
}

// startSimulator serves the generic IO sample device on a loopback port.
func startSimulator(ctx context.Context, logger *slog.Logger) (string, func(), error) {
	sim := iedsim.NewSimpleIO(iedsim.Config{Logger: logger.With("component", "simulator")})
	srv, err := transport.NewServer(transport.ServerConfig{
		Address: "127.0.0.1:0",
		Handler: sim.Handler(),
		OnError: func(err error) { logger.Warn("simulator accept", "error", err) },
	})
	if err != nil {
		return "", nil, err
	}
	if err := srv.Start(ctx); err != nil {
		return "", nil, err
	}

	simCtx, cancel := context.WithCancel(ctx)
	go sim.RunProcess(simCtx, time.Second)

	addr := srv.Addr().String()
	logger.Info("simulated device listening", "addr", addr, "ld", iedsim.SimpleIODevice)
	return addr, func() {
		cancel()
		_ = srv.Stop()
	}, nil
}
