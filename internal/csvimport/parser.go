package csvimport

import (
	"errors"
	"fmt"
	"strings"

	"github.com/member-dashboard-api/internal/models"
)

// Row is one parsed data row.
type Row = models.ImportRow

var (
	// ErrTooFewLines is returned when the text has no room for a header and a data row.
	ErrTooFewLines = errors.New("CSV file must have at least a header row and one data row")
	// ErrNoValidRows is returned when no data row survives parsing.
	ErrNoValidRows = errors.New("No valid data found in CSV file")
	// ErrTooManyRows is returned when the file has more data rows than Options.MaxRows.
	ErrTooManyRows = errors.New("CSV file has too many rows")
)

// RaggedPolicy decides what happens to rows whose field count differs from
// the header's.
type RaggedPolicy int

const (
	// RaggedReport records ragged rows as failed with a row error.
	RaggedReport RaggedPolicy = iota
	// RaggedDrop discards ragged rows without reporting them.
	RaggedDrop
)

// ParseRaggedPolicy maps a config value to a policy. Anything but "drop"
// reports.
func ParseRaggedPolicy(s string) RaggedPolicy {
	if strings.EqualFold(strings.TrimSpace(s), "drop") {
		return RaggedDrop
	}
	return RaggedReport
}

func (p RaggedPolicy) String() string {
	if p == RaggedDrop {
		return "drop"
	}
	return "report"
}

// Options configures Parse.
type Options struct {
	RaggedRows RaggedPolicy
	// MaxRows caps the number of data lines a file may carry; a longer
	// file fails with ErrTooManyRows. Zero means no cap.
	MaxRows int
}

// Batch is every row parsed from one upload.
type Batch struct {
	Headers []string
	Rows    []Row
	// Rejected holds one error per ragged row under RaggedReport.
	Rejected []string
	// Dropped counts ragged rows discarded under RaggedDrop.
	Dropped int
}

// Len returns the number of data rows seen, accepted or rejected.
func (b *Batch) Len() int {
	return len(b.Rows) + len(b.Rejected)
}

// DefaultPreviewRows is how many rows a preview shows when not told otherwise.
const DefaultPreviewRows = 5

// Preview returns up to n leading rows. n <= 0 uses DefaultPreviewRows.
func (b *Batch) Preview(n int) []Row {
	if n <= 0 {
		n = DefaultPreviewRows
	}
	if n > len(b.Rows) {
		n = len(b.Rows)
	}
	out := make([]Row, n)
	copy(out, b.Rows[:n])
	return out
}

// Parse splits text into a header and rows.
//
// Lines are split on '\n' and trimmed; blank lines are skipped. Fields are
// split on commas outside double quotes. Quote characters toggle the quoted
// state and are stripped, so escaped quotes are not unescaped.
func Parse(text string, opts Options) (*Batch, error) {
	text = strings.TrimPrefix(text, "\ufeff")
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return nil, ErrTooFewLines
	}

	headers := splitLine(strings.TrimSpace(lines[0]))
	for i, h := range headers {
		headers[i] = strings.ReplaceAll(h, `"`, "")
	}

	batch := &Batch{Headers: headers}
	ordinal := 0
	for _, raw := range lines[1:] {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if opts.MaxRows > 0 && ordinal >= opts.MaxRows {
			return nil, fmt.Errorf("%w: limit is %d", ErrTooManyRows, opts.MaxRows)
		}
		ordinal++

		values := splitLine(line)
		if len(values) != len(headers) {
			switch opts.RaggedRows {
			case RaggedDrop:
				batch.Dropped++
			default:
				batch.Rejected = append(batch.Rejected, fmt.Sprintf(
					"Row %d: Column count mismatch (expected %d, got %d)",
					ordinal+1, len(headers), len(values)))
			}
			continue
		}

		number := ordinal + 1
		if opts.RaggedRows == RaggedDrop {
			// dropped rows leave no gap in the numbering
			number = len(batch.Rows) + 2
		}
		fields := make(map[string]string, len(headers))
		for i, h := range headers {
			fields[h] = values[i]
		}
		batch.Rows = append(batch.Rows, Row{Number: number, Fields: fields})
	}

	// a body of only ragged rows is unrecoverable under either policy
	if len(batch.Rows) == 0 {
		return nil, ErrNoValidRows
	}
	return batch, nil
}

// splitLine is the quote-toggle field scan. Every field is trimmed.
func splitLine(line string) []string {
	var (
		values   []string
		current  strings.Builder
		inQuotes bool
	)
	for _, ch := range line {
		switch {
		case ch == '"':
			inQuotes = !inQuotes
		case ch == ',' && !inQuotes:
			values = append(values, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	return append(values, strings.TrimSpace(current.String()))
}
