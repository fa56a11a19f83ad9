package annotations

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// OutputFormatter formats events for human-readable display.
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
}

// NewOutputFormatter creates a formatter with color support detection.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stdout
	}

	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd())
	}

	return &OutputFormatter{
		useColor: useColor,
		writer:   w,
	}
}

// Handle implements the Handler contract - prints events as they occur.
func (f *OutputFormatter) Handle(event Event) {
	output := f.Format(event)
	if output != "" {
		fmt.Fprintln(f.writer, output)
	}
}

// Format converts an event to a human-readable string.
func (f *OutputFormatter) Format(event Event) string {
	switch event.Name {
	case CompileInvoked:
		return fmt.Sprintf("%s Compiling %v relations",
			f.colorize("===", color.FgYellow), event.Data["relations"])

	case CompileModeDiscovered:
		return fmt.Sprintf("  mode %v discovered for %v",
			event.Data["mode"], event.Data["relation"])

	case CompileComplete:
		return fmt.Sprintf("%s Compiled %v predicates",
			f.colorize("===", color.FgGreen), event.Data["predicates"])

	case QueryInvoked:
		return fmt.Sprintf("%s Query over %v goals",
			f.colorize("===", color.FgYellow), event.Data["goals"])

	case QueryComplete:
		return fmt.Sprintf("%s Query done with %v tuples",
			f.colorize("===", color.FgGreen), event.Data["tuples"])

	case ErrorRuntime:
		return fmt.Sprintf("%s Query failed: %v",
			f.colorize("✗", color.FgRed), event.Data["error"])

	case TableHit:
		return fmt.Sprintf("  %s %v", f.colorize("table hit", color.FgCyan), event.Data["predicate"])

	case TableCutoff:
		return fmt.Sprintf("  %s %v", f.colorize("table cutoff", color.FgMagenta), event.Data["predicate"])

	case RuleFired:
		return fmt.Sprintf("  rule %v/%v fired", event.Data["relation"], event.Data["rule"])

	default:
		return fmt.Sprintf("  %s %s", event.Name, formatData(event.Data))
	}
}

func (f *OutputFormatter) colorize(s string, attr color.Attribute) string {
	if !f.useColor {
		return s
	}
	return color.New(attr).Sprint(s)
}

func formatData(data map[string]interface{}) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, data[k])
	}
	return strings.Join(parts, " ")
}
