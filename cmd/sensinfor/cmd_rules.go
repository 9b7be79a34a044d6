package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sensinfor/sensinfor/pkg/config"
	"github.com/sensinfor/sensinfor/pkg/defaults"
	"github.com/sensinfor/sensinfor/pkg/jsonutil"
	"github.com/sensinfor/sensinfor/pkg/rules"
	"github.com/sensinfor/sensinfor/pkg/scanner"
	"github.com/sensinfor/sensinfor/pkg/templateresolver"
	"github.com/sensinfor/sensinfor/pkg/ui"
)

func runRules(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		ui.PrintError(stderr, "usage: sensinfor rules list|validate|formats")
		return defaults.ExitUserError
	}
	switch args[0] {
	case "list", "ls":
		return runRulesList(args[1:], stdout, stderr)
	case "validate":
		return runRulesValidate(args[1:], stdout, stderr)
	case "formats":
		return runRulesFormats(stdout, stderr)
	default:
		ui.PrintError(stderr, fmt.Sprintf("unknown rules command %q", args[0]))
		return defaults.ExitUserError
	}
}

// runRulesList prints the effective catalog: the embedded rules plus any
// -rules files.
func runRulesList(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("rules list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var files, include, exclude stringSliceFlag
	fs.Var(&files, "rules", "Extra rule catalog(s)")
	fs.Var(&include, "include", "Only list rules whose id matches these globs")
	fs.Var(&exclude, "exclude", "Skip rules whose id matches these globs")
	noDefault := fs.Bool("no-default-rules", false, "Do not load the embedded catalog")
	category := fs.String("category", "", "Only list rules of this category")
	jsonOut := fs.Bool("json", false, "Print the catalog as JSON")
	noColor := fs.Bool("no-color", false, "Disable colored output")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return defaults.ExitSuccess
		}
		return defaults.ExitUserError
	}
	ui.SetNoColor(*noColor || ui.ColorDisabledByEnv())

	cat, err := scanner.LoadCatalog(config.RulesConfig{Files: files, NoDefault: *noDefault}, newLogger(stderr, false, false))
	if err != nil {
		ui.PrintError(stderr, err.Error())
		return defaults.ExitUserError
	}
	selected, err := rules.Select(cat.Rules, include, exclude)
	if err != nil {
		ui.PrintError(stderr, err.Error())
		return defaults.ExitUserError
	}
	if *category != "" {
		var kept []*rules.Rule
		for _, r := range selected {
			if string(r.Category) == *category {
				kept = append(kept, r)
			}
		}
		selected = kept
	}

	if *jsonOut {
		b, err := jsonutil.MarshalIndent(selected, "", "  ")
		if err != nil {
			ui.PrintError(stderr, err.Error())
			return defaults.ExitInternalError
		}
		fmt.Fprintln(stdout, string(b))
		return defaults.ExitSuccess
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSEVERITY\tCATEGORY\tPATTERNS\tENABLED\tNAME")
	for _, r := range selected {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\t%s\n",
			r.ID, r.Severity, r.Category, len(r.Patterns), r.IsEnabled(), r.Name)
	}
	if err := tw.Flush(); err != nil {
		return defaults.ExitInternalError
	}
	fmt.Fprintln(stdout)
	ui.PrintInfo(stdout, fmt.Sprintf("%d rules", len(selected)))
	return defaults.ExitSuccess
}

// runRulesValidate checks every rule of every catalog file and reports
// all problems, not just the first.
func runRulesValidate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("rules validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	noColor := fs.Bool("no-color", false, "Disable colored output")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return defaults.ExitSuccess
		}
		return defaults.ExitUserError
	}
	ui.SetNoColor(*noColor || ui.ColorDisabledByEnv())

	refs := fs.Args()
	if len(refs) == 0 {
		refs = []string{"default"}
	}

	code := defaults.ExitSuccess
	for _, ref := range refs {
		n, err := validateCatalog(ref)
		if err != nil {
			ui.PrintError(stdout, fmt.Sprintf("%s: %v", ref, err))
			code = defaults.ExitUserError
			continue
		}
		ui.PrintSuccess(stdout, fmt.Sprintf("%s: %d rules OK", ref, n))
	}
	return code
}

func validateCatalog(ref string) (int, error) {
	data, _, err := templateresolver.Read(ref, templateresolver.KindRules)
	if err != nil {
		return 0, err
	}
	cat, err := rules.Parse(data)
	if err != nil {
		return 0, err
	}
	if err := cat.Validate(); err != nil {
		return 0, err
	}
	return cat.Len(), nil
}

// runRulesFormats lists the bundled report formats and rule catalogs.
func runRulesFormats(stdout, stderr io.Writer) int {
	for _, kind := range []templateresolver.Kind{templateresolver.KindOutput, templateresolver.KindRules} {
		infos, err := templateresolver.ListCategory(kind)
		if err != nil {
			ui.PrintError(stderr, err.Error())
			return defaults.ExitInternalError
		}
		fmt.Fprintln(stdout, ui.SectionStyle.Render(string(kind)))
		for _, info := range infos {
			fmt.Fprintf(stdout, "  %s %s\n", ui.ConfigLabelStyle.Render(info.Name), ui.MutedStyle.Render(info.Path))
		}
	}
	return defaults.ExitSuccess
}
