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

	"github.com/sensinfor/sensinfor/pkg/config"
	"github.com/sensinfor/sensinfor/pkg/defaults"
	"github.com/sensinfor/sensinfor/pkg/duration"
	"github.com/sensinfor/sensinfor/pkg/finding"
	"github.com/sensinfor/sensinfor/pkg/output/dispatcher"
	"github.com/sensinfor/sensinfor/pkg/output/hooks"
	"github.com/sensinfor/sensinfor/pkg/output/writers"
	"github.com/sensinfor/sensinfor/pkg/scanner"
	"github.com/sensinfor/sensinfor/pkg/transport"
	"github.com/sensinfor/sensinfor/pkg/ui"
)

// scanFlags holds the scan options that are not part of config.Config.
type scanFlags struct {
	targets    stringSliceFlag
	listFile   string
	configPath string
	mode       string

	ruleFiles      stringSliceFlag
	include        stringSliceFlag
	exclude        stringSliceFlag
	noDefaultRules bool

	jsonlPath      string
	onlyDetections bool
	omitEvidence   bool
	format         string
	reportPath     string

	metricsAddr  string
	otelEndpoint string
	otelInsecure bool

	failOn   string
	noColor  bool
	silent   bool
	noBanner bool
	verbose  bool
	debug    bool
}

// parseScanFlags builds the scan configuration. The config file and the
// mode are resolved first so that their values become flag defaults.
func parseScanFlags(args []string, stderr io.Writer) (config.Config, *scanFlags, error) {
	sf := &scanFlags{
		configPath: lookupFlag(args, "config"),
		mode:       lookupFlag(args, "mode"),
	}

	cfg := config.Default()
	if sf.configPath != "" {
		loaded, err := config.Load(sf.configPath)
		if err != nil {
			return cfg, nil, err
		}
		cfg = loaded
	}
	if sf.mode != "" {
		cfg = cfg.ForMode(sf.mode)
	}

	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg.BindFlags(fs)

	// === TARGETS ===
	fs.Var(&sf.targets, "u", "Target URL(s), comma-separated or repeated")
	fs.Var(&sf.targets, "target", "Target URL(s)")
	fs.StringVar(&sf.listFile, "l", "", "File with one target per line ('-' for stdin)")
	fs.StringVar(&sf.configPath, "config", sf.configPath, "YAML or JSON configuration file")
	fs.StringVar(&sf.mode, "mode", cfg.ScanMode, "Scan mode: fast, standard or thorough")

	// === RULES ===
	fs.Var(&sf.ruleFiles, "rules", "Extra rule catalog(s) merged over the embedded one")
	fs.Var(&sf.include, "include", "Only run rules whose id matches these globs (tag:<name> matches tags)")
	fs.Var(&sf.exclude, "exclude", "Skip rules whose id matches these globs")
	fs.BoolVar(&sf.noDefaultRules, "no-default-rules", cfg.Rules.NoDefault, "Do not load the embedded catalog")

	// === OUTPUT ===
	fs.StringVar(&sf.jsonlPath, "o", "", "Write JSONL events to this file ('-' for stdout)")
	fs.BoolVar(&sf.onlyDetections, "only-detections", false, "JSONL: write detection events only")
	fs.BoolVar(&sf.omitEvidence, "omit-evidence", false, "JSONL: drop previews, headers and extracted data")
	fs.StringVar(&sf.format, "format", "", "Report format: text, markdown, csv or a template path")
	fs.StringVar(&sf.reportPath, "report", "", "Report file (default stdout)")
	fs.StringVar(&sf.failOn, "fail-on", string(finding.Info), "Exit 1 when a finding has at least this severity")
	fs.BoolVar(&sf.noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&sf.silent, "silent", false, "Print nothing but the report")
	fs.BoolVar(&sf.noBanner, "no-banner", false, "Hide the banner")
	fs.BoolVar(&sf.verbose, "v", false, "Verbose output: log events and show extracted data")
	fs.BoolVar(&sf.debug, "debug", false, "Debug logging")

	// === INTEGRATIONS ===
	fs.StringVar(&sf.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	fs.StringVar(&sf.otelEndpoint, "otel-endpoint", "", "Export traces to this OTLP gRPC endpoint")
	fs.BoolVar(&sf.otelInsecure, "otel-insecure", false, "Disable TLS for the OTLP exporter")

	if err := fs.Parse(args); err != nil {
		return cfg, nil, err
	}
	sf.targets = append(sf.targets, fs.Args()...)

	cfg.ScanMode = sf.mode
	cfg.Rules.Files = append(cfg.Rules.Files, sf.ruleFiles...)
	cfg.Rules.Include = append(cfg.Rules.Include, sf.include...)
	cfg.Rules.Exclude = append(cfg.Rules.Exclude, sf.exclude...)
	cfg.Rules.NoDefault = sf.noDefaultRules
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}
	if _, ok := finding.ParseSeverity(sf.failOn); !ok {
		return cfg, nil, fmt.Errorf("%w: fail-on severity %q", config.ErrInvalidConfig, sf.failOn)
	}
	return cfg, sf, nil
}

func runScan(args []string, stdout, stderr io.Writer) int {
	cfg, sf, err := parseScanFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return defaults.ExitSuccess
	}
	if err != nil {
		ui.PrintError(stderr, err.Error())
		return defaults.ExitUserError
	}

	ui.SetNoColor(sf.noColor || ui.ColorDisabledByEnv())
	logger := newLogger(stderr, sf.verbose, sf.debug)

	if sf.listFile != "" {
		lines, err := readLines(sf.listFile, os.Stdin)
		if err != nil {
			ui.PrintError(stderr, err.Error())
			return defaults.ExitUserError
		}
		sf.targets = append(sf.targets, lines...)
	}
	if len(sf.targets) == 0 {
		ui.PrintError(stderr, "no target: use -u https://example.com or -l targets.txt")
		return defaults.ExitUserError
	}

	reportToStdout := sf.format != "" && sf.reportPath == ""
	quiet := sf.silent || reportToStdout || sf.jsonlPath == "-"
	if !quiet && !sf.noBanner {
		ui.PrintBanner(stderr)
		ui.PrintConfigLine(stderr, "Targets", fmt.Sprint(len(sf.targets)))
		ui.PrintConfigLine(stderr, "Mode", cfg.ScanMode)
		ui.PrintConfigLine(stderr, "Concurrency", fmt.Sprint(cfg.Concurrency))
		ui.PrintConfigLine(stderr, "Timeout", cfg.Timeout.D().String())
		fmt.Fprintln(stderr)
	}

	d, closeOutputs, err := buildDispatcher(cfg, sf, stdout, logger, quiet)
	if err != nil {
		ui.PrintError(stderr, err.Error())
		return defaults.ExitUserError
	}
	defer func() {
		if err := closeOutputs(); err != nil {
			ui.PrintError(stderr, fmt.Sprintf("closing outputs: %v", err))
		}
	}()

	tr, err := transport.NewHTTP(cfg.Transport(), transport.WithLogger(logger))
	if err != nil {
		ui.PrintError(stderr, err.Error())
		return defaults.ExitUserError
	}
	s, err := scanner.New(cfg,
		scanner.WithLogger(logger),
		scanner.WithTransport(tr),
		scanner.WithSink(scanner.NewEventSink(d)))
	if err != nil {
		ui.PrintError(stderr, err.Error())
		return defaults.ExitUserError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	failOn, _ := finding.ParseSeverity(sf.failOn)
	code := defaults.ExitSuccess
	for _, target := range sf.targets {
		if ctx.Err() != nil {
			ui.PrintWarning(stderr, "scan interrupted")
			break
		}
		sess, err := s.Run(ctx, target)
		switch {
		case errors.Is(err, scanner.ErrOutOfScope):
			ui.PrintWarning(stderr, fmt.Sprintf("skipping %s: out of scope", target))
			continue
		case err != nil:
			ui.PrintError(stderr, err.Error())
			code = worse(code, defaults.ExitUserError)
			continue
		}
		code = worse(code, sessionExitCode(sess, failOn))
		if !quiet && sess.Errors > 0 && sess.Errors == sess.TotalRules {
			ui.PrintError(stderr, fmt.Sprintf("%s: every probe failed, target unreachable", target))
		}
	}
	return code
}

// buildDispatcher wires the writers and hooks selected by the flags. The
// returned func closes the dispatcher and every file it opened.
func buildDispatcher(cfg config.Config, sf *scanFlags, stdout io.Writer, logger *slog.Logger, quiet bool) (*dispatcher.Dispatcher, func() error, error) {
	d := dispatcher.New(dispatcher.Config{MinSeverity: cfg.MinSeverity}, dispatcher.WithLogger(logger))
	var files []*os.File
	fail := func(err error) (*dispatcher.Dispatcher, func() error, error) {
		_ = d.Close()
		for _, f := range files {
			_ = f.Close()
		}
		return nil, nil, err
	}
	open := func(path string) (io.Writer, error) {
		if path == "" || path == "-" {
			return stdout, nil
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
		return f, nil
	}

	if !quiet {
		progress := false
		if f, ok := stdout.(*os.File); ok {
			progress = ui.IsTerminal(f) && !sf.verbose && !sf.debug
		}
		d.RegisterWriter(writers.NewConsoleWriter(stdout, writers.ConsoleOptions{
			Progress: progress,
			Verbose:  sf.verbose,
		}))
	}
	if sf.jsonlPath != "" {
		w, err := open(sf.jsonlPath)
		if err != nil {
			return fail(err)
		}
		d.RegisterWriter(writers.NewJSONLWriter(w, writers.JSONLOptions{
			OnlyDetections: sf.onlyDetections,
			OmitEvidence:   sf.omitEvidence,
		}))
	}
	if sf.format != "" {
		w, err := open(sf.reportPath)
		if err != nil {
			return fail(err)
		}
		tw, err := writers.NewTemplateWriter(w, writers.TemplateConfig{Template: sf.format})
		if err != nil {
			return fail(err)
		}
		d.RegisterWriter(tw)
	}

	if sf.verbose || sf.debug {
		d.RegisterHook(hooks.NewLoggerHook(logger))
	}
	if sf.metricsAddr != "" {
		h, err := hooks.NewPrometheusHook(hooks.PrometheusOptions{Addr: sf.metricsAddr, Logger: logger})
		if err != nil {
			return fail(err)
		}
		d.RegisterHook(h)
	}
	if sf.otelEndpoint != "" {
		h, err := hooks.NewOTelHook(hooks.OTelOptions{
			Endpoint:        sf.otelEndpoint,
			Insecure:        sf.otelInsecure,
			ShutdownTimeout: duration.MetricsShutdown,
		})
		if err != nil {
			return fail(err)
		}
		d.RegisterHook(h)
	}

	closeAll := func() error {
		errs := []error{d.Close()}
		for _, f := range files {
			errs = append(errs, f.Close())
		}
		return errors.Join(errs...)
	}
	return d, closeAll, nil
}

// sessionExitCode maps a finished session onto the CLI exit codes.
func sessionExitCode(s scanner.Session, failOn finding.Severity) int {
	switch {
	case s.Status == scanner.StatusFailed:
		return defaults.ExitInternalError
	case s.Errors > 0 && s.Errors == s.TotalRules:
		return defaults.ExitNetworkError
	}
	for sev, n := range s.FindingsBySeverity {
		if n > 0 && sev.AtLeast(failOn) {
			return defaults.ExitFindings
		}
	}
	return defaults.ExitSuccess
}

// worse returns the more severe of two exit codes. The codes are ordered
// by severity.
func worse(a, b int) int { return max(a, b) }
