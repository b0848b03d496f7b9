package txengine

import (
	"io"
	"runtime"

	"github.com/fatih/color"
)

// Populated during build, don't touch!
var (
	Version   = "v0.1.0"
	GitRev    = "undefined"
	GitBranch = "undefined"
	BuildDate = "Fri, 17 Oct 2026 00:00:00 +0000"
)

// PrintVersion prints version info into the provided io.Writer. Labels are colored when
// the process writes to a terminal.
func PrintVersion(w io.Writer) {
	label := color.New(color.FgCyan, color.Bold)
	line := func(name, value string) {
		label.Fprintf(w, "%-14s", name+":")
		_, _ = io.WriteString(w, value+"\n")
	}

	line("Version", Version)
	line("Git revision", GitRev)
	line("Git branch", GitBranch)
	line("Go version", runtime.Version())
	line("Built", BuildDate)
	line("OS/Arch", runtime.GOOS+"/"+runtime.GOARCH)
}
