// Package output renders screenshot run progress on the console.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/teamchat/docshots/packages/shooter"
)

// maxBodyLen bounds how much of a failed response body is echoed.
const maxBodyLen = 400

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s\n\n", bold("docshots "+version))
}

func (f *ConsoleFormatter) FormatResult(r *shooter.Result) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	item := r.Integration
	if r.Fixture != "" {
		item += " " + r.Fixture
	}

	switch r.Status {
	case shooter.StatusCaptured:
		fmt.Fprintf(f.writer, "  %s %s %s\n", green("✓"), item, cyan(fmt.Sprintf("(%dms)", r.Duration.Milliseconds())))
		fmt.Fprintf(f.writer, "    Screenshot saved to %s\n", r.ImagePath)

	case shooter.StatusDeliveryFailed:
		fmt.Fprintf(f.writer, "  %s %s %s\n", red("✗"), item, red("Failed to trigger webhook"))
		fmt.Fprintf(f.writer, "    Status: %d\n", r.ResponseStatus)
		fmt.Fprintf(f.writer, "    %s\n", truncate(r.ResponseBody, maxBodyLen))

	case shooter.StatusCaptureSkipped:
		fmt.Fprintf(f.writer, "  %s %s (no message found, capture skipped)\n", yellow("-"), item)
	}

	if f.verbose && r.Target != "" {
		fmt.Fprintf(f.writer, "    Request: POST %s\n", r.Target)
	}
	if f.verbose && r.Status == shooter.StatusCaptured && r.ResponseStatus != 0 {
		fmt.Fprintf(f.writer, "    Response status: %d\n", r.ResponseStatus)
	}
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatWarning(msg string) {
	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", yellow("Warning:"), msg)
}

func (f *ConsoleFormatter) FormatSummary(captured, failed, skipped int, duration time.Duration) {
	bold := color.New(color.Bold).SprintFunc()

	parts := []string{fmt.Sprintf("%d captured", captured)}
	if failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", failed))
	}
	if skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", skipped))
	}

	fmt.Fprintf(f.writer, "\n%s %s in %.1fs\n", bold("Done:"), strings.Join(parts, ", "), duration.Seconds())
}

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
