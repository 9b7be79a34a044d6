package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sensinfor/sensinfor/pkg/analyzer"
	"github.com/sensinfor/sensinfor/pkg/defaults"
	"github.com/sensinfor/sensinfor/pkg/finding"
	"github.com/sensinfor/sensinfor/pkg/iohelper"
	"github.com/sensinfor/sensinfor/pkg/jsonutil"
	"github.com/sensinfor/sensinfor/pkg/ui"
)

// fileReport is the analysis of one local file.
type fileReport struct {
	File string                 `json:"file"`
	Data *finding.ExtractedData `json:"extracted_data"`
}

// runAnalyze runs the content analyzer over local files without any
// network access. Exit code 1 means something was extracted.
func runAnalyze(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg := analyzer.DefaultConfig()
	contentType := fs.String("content-type", "", "Treat input as this content type (default: guessed from the extension)")
	jsonOut := fs.Bool("json", false, "Print results as JSON")
	noColor := fs.Bool("no-color", false, "Disable colored output")
	fs.BoolVar(&cfg.JSAnalysis, "js", true, "Analyze JavaScript (endpoints, source maps, debug code)")
	fs.Float64Var(&cfg.EntropyThreshold, "entropy", cfg.EntropyThreshold, "Minimum Shannon entropy of a generic secret")
	fs.IntVar(&cfg.MinSecretLength, "min-length", cfg.MinSecretLength, "Minimum length of a generic secret")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return defaults.ExitSuccess
		}
		return defaults.ExitUserError
	}
	ui.SetNoColor(*noColor || ui.ColorDisabledByEnv())

	files := fs.Args()
	if len(files) == 0 {
		ui.PrintError(stderr, "no input: sensinfor analyze <file>... ('-' reads stdin)")
		return defaults.ExitUserError
	}
	if err := cfg.Validate(); err != nil {
		ui.PrintError(stderr, err.Error())
		return defaults.ExitUserError
	}
	a := analyzer.New(cfg, analyzer.WithLogger(newLogger(stderr, false, false)))

	var reports []fileReport
	for _, name := range files {
		data, err := readInput(name)
		if err != nil {
			ui.PrintError(stderr, err.Error())
			return defaults.ExitUserError
		}
		ct := *contentType
		if ct == "" {
			ct = guessContentType(name)
		}
		reports = append(reports, fileReport{File: name, Data: a.Analyze(string(data), ct, name)})
	}

	if *jsonOut {
		b, err := jsonutil.MarshalIndent(reports, "", "  ")
		if err != nil {
			ui.PrintError(stderr, err.Error())
			return defaults.ExitInternalError
		}
		fmt.Fprintln(stdout, string(b))
	} else {
		for _, r := range reports {
			printExtracted(stdout, r)
		}
	}

	for _, r := range reports {
		if !r.Data.IsEmpty() {
			return defaults.ExitFindings
		}
	}
	return defaults.ExitSuccess
}

func readInput(name string) ([]byte, error) {
	if name == "-" {
		return iohelper.ReadBody(os.Stdin, defaults.MaxBodySize)
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return iohelper.ReadBody(f, defaults.MaxBodySize)
}

func guessContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".map":
		return "application/json"
	case ".js", ".mjs":
		return "application/javascript"
	case ".html", ".htm":
		return "text/html"
	default:
		return "text/plain"
	}
}

func printExtracted(w io.Writer, r fileReport) {
	fmt.Fprintln(w, ui.SectionStyle.Render(r.File))
	d := r.Data
	if d.IsEmpty() {
		fmt.Fprintln(w, ui.MutedStyle.Render("  nothing found"))
		return
	}
	for _, s := range d.Secrets {
		loc := ""
		if s.Line > 0 {
			loc = fmt.Sprintf(" (line %d)", s.Line)
		}
		fmt.Fprintf(w, "  %s %s %s%s\n", ui.Bracket(s.Type, ui.WarningStyle), s.Value,
			ui.MutedStyle.Render(fmt.Sprintf("entropy %.2f", s.Entropy)), loc)
	}
	lists := []struct {
		label  string
		values []string
	}{
		{"aws key", d.AWSKeys},
		{"private key", d.PrivateKeys},
		{"internal ip", d.InternalIPs},
		{"email", d.Emails},
		{"endpoint", d.APIEndpoints},
		{"git repo", d.GitRepos},
		{"source map", d.SourceMaps},
	}
	for _, l := range lists {
		for _, v := range l.values {
			fmt.Fprintf(w, "  %s %s\n", ui.Bracket(l.label, ui.CategoryStyle), v)
		}
	}
	for _, dbg := range d.DebugCode {
		fmt.Fprintf(w, "  %s %s\n", ui.Bracket(dbg.Kind, ui.CategoryStyle), dbg.Code)
	}
	for _, c := range d.Configs {
		fmt.Fprintf(w, "  %s %s: %s\n", ui.Bracket("config", ui.CategoryStyle), c.Name, strings.Join(c.Keys, ", "))
	}
}
