package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/sensinfor/sensinfor/pkg/defaults"
)

// Build information, overridable via ldflags:
// go build -ldflags "-X github.com/sensinfor/sensinfor/pkg/ui.Commit=abc123"
var (
	Version   = defaults.Version
	BuildDate = "unknown"
	Commit    = "dev"
)

var (
	noColorMode bool
	uiMu        sync.RWMutex
)

// SetNoColor disables colored output for every lipgloss style.
func SetNoColor(noColor bool) {
	uiMu.Lock()
	defer uiMu.Unlock()
	noColorMode = noColor
	if noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// IsNoColor returns whether color is disabled
func IsNoColor() bool {
	uiMu.RLock()
	defer uiMu.RUnlock()
	return noColorMode
}

// ColorDisabledByEnv reports whether NO_COLOR is set or TERM is "dumb".
// See https://no-color.org.
func ColorDisabledByEnv() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return true
	}
	return os.Getenv("TERM") == "dumb"
}

const bannerArt = `
                        _        ____
   ________  ____  _____(_)___  / __/___  _____
  / ___/ _ \/ __ \/ ___/ / __ \/ /_/ __ \/ ___/
 (__  )  __/ / / (__  ) / / / / __/ /_/ / /
/____/\___/_/ /_/____/_/_/ /_/_/  \____/_/
`

// PrintBanner writes the application banner to w.
func PrintBanner(w io.Writer) {
	for _, line := range strings.Split(bannerArt, "\n") {
		if line != "" {
			fmt.Fprintln(w, BannerStyle.Render(line))
		}
	}
	fmt.Fprintf(w, "                      v%s\n\n", VersionStyle.Render(Version))
}

// PrintConfigLine writes an aligned "label : value" line.
func PrintConfigLine(w io.Writer, label, value string) {
	fmt.Fprintf(w, " :: %s : %s\n", ConfigLabelStyle.Render(label), ConfigValueStyle.Render(value))
}

// PrintSuccess writes a success message.
func PrintSuccess(w io.Writer, message string) {
	fmt.Fprintln(w, SuccessStyle.Render("  [+] "+message))
}

// PrintError writes an error message.
func PrintError(w io.Writer, message string) {
	fmt.Fprintln(w, ErrorStyle.Render("  [X] "+message))
}

// PrintWarning writes a warning message.
func PrintWarning(w io.Writer, message string) {
	fmt.Fprintln(w, WarningStyle.Render("  [!] "+message))
}

// PrintInfo writes an informational message.
func PrintInfo(w io.Writer, message string) {
	fmt.Fprintf(w, "  %s %s\n", BannerStyle.Render("*"), message)
}
