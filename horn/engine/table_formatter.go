package engine

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/wbrown/horn/horn"
)

// TableFormatter renders query results as markdown tables.
type TableFormatter struct {
	// MaxWidth is the maximum width for a column value
	MaxWidth int
	// TruncateString is the string to append when truncating
	TruncateString string
}

// NewTableFormatter creates a formatter with default settings.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{
		MaxWidth:       50,
		TruncateString: "...",
	}
}

// FormatResult formats a query result as a markdown table.
func (tf *TableFormatter) FormatResult(res *Result) string {
	if res == nil {
		return "_No result_"
	}
	if len(res.Columns) == 0 {
		if res.Satisfied {
			return "_yes_"
		}
		return "_no_"
	}
	if len(res.Tuples) == 0 {
		return fmt.Sprintf("_Columns: %v_\n\n_No rows_", res.Columns)
	}

	tableString := &strings.Builder{}

	alignment := make([]tw.Align, len(res.Columns))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}

	table := tablewriter.NewTable(tableString,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(res.Columns)

	for _, tuple := range res.Tuples {
		row := make([]string, len(tuple))
		for j, val := range tuple {
			row[j] = tf.formatValue(val)
		}
		table.Append(row)
	}
	table.Render()

	tableString.WriteString(fmt.Sprintf("\n_%d rows_\n", len(res.Tuples)))
	return tableString.String()
}

func (tf *TableFormatter) formatValue(val horn.Value) string {
	s := horn.FormatValue(val)
	if tf.MaxWidth > 0 && len(s) > tf.MaxWidth {
		cut := tf.MaxWidth - len(tf.TruncateString)
		if cut < 1 {
			cut = 1
		}
		s = s[:cut] + tf.TruncateString
	}
	return s
}
