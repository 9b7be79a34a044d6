// Command sensinfor scans web origins for exposed sensitive files.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sensinfor/sensinfor/pkg/defaults"
	"github.com/sensinfor/sensinfor/pkg/ui"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a subcommand and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return defaults.ExitUserError
	}

	switch args[0] {
	case "scan":
		return runScan(args[1:], stdout, stderr)
	case "analyze":
		return runAnalyze(args[1:], stdout, stderr)
	case "rules":
		return runRules(args[1:], stdout, stderr)
	case "version", "-version", "--version":
		printVersion(stdout)
		return defaults.ExitSuccess
	case "help", "-h", "--help":
		printUsage(stdout)
		return defaults.ExitSuccess
	default:
		ui.PrintError(stderr, fmt.Sprintf("unknown command %q", args[0]))
		printUsage(stderr)
		return defaults.ExitUserError
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "%s %s (commit %s, built %s)\n", defaults.ToolName, ui.Version, ui.Commit, ui.BuildDate)
}

func printUsage(w io.Writer) {
	ui.PrintBanner(w)
	fmt.Fprintln(w, ui.SectionStyle.Render("USAGE"))
	fmt.Fprintf(w, "  %s <command> [flags]\n", defaults.ToolName)
	fmt.Fprintln(w)
	fmt.Fprintln(w, ui.SectionStyle.Render("COMMANDS"))
	for _, c := range [][2]string{
		{"scan", "Probe one or more targets for exposed sensitive files"},
		{"analyze", "Extract secrets and internal data from local files"},
		{"rules", "List or validate rule catalogs (rules list | rules validate <file>)"},
		{"version", "Print version information"},
	} {
		fmt.Fprintf(w, "  %s %s\n", ui.ConfigLabelStyle.Render(c[0]), c[1])
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, ui.SectionStyle.Render("EXAMPLES"))
	fmt.Fprintf(w, "  %s scan -u https://example.com -mode thorough\n", defaults.ToolName)
	fmt.Fprintf(w, "  %s scan -l targets.txt -o findings.jsonl -format markdown -report report.md\n", defaults.ToolName)
	fmt.Fprintf(w, "  %s analyze config.js .env\n", defaults.ToolName)
	fmt.Fprintf(w, "  %s rules validate custom-rules.yaml\n", defaults.ToolName)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Run '%s <command> -h' for command flags.\n", defaults.ToolName)
}
