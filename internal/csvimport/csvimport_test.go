package csvimport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestParse_Basic(t *testing.T) {
	batch, err := Parse("name,email\nA,a@x.com\nB,b@x.com", Options{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(batch.Rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(batch.Rows))
	}
	if batch.Rows[0].Number != 2 || batch.Rows[1].Number != 3 {
		t.Errorf("Expected row numbers 2 and 3, got %d and %d", batch.Rows[0].Number, batch.Rows[1].Number)
	}
	if batch.Rows[1].Get("email") != "b@x.com" {
		t.Errorf("Expected b@x.com, got %q", batch.Rows[1].Get("email"))
	}
}

func TestParse_QuotedFields(t *testing.T) {
	text := "name,\"City & Province?\",email\n\"Doe, Jane\", \"Toronto, ON\" ,jane@x.com\n"
	batch, err := Parse(text, Options{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(batch.Headers) != 3 || batch.Headers[1] != "City & Province?" {
		t.Fatalf("Unexpected headers: %v", batch.Headers)
	}
	row := batch.Rows[0]
	if row.Get("name") != "Doe, Jane" {
		t.Errorf("Expected 'Doe, Jane', got %q", row.Get("name"))
	}
	if row.Get("City & Province?") != "Toronto, ON" {
		t.Errorf("Expected 'Toronto, ON', got %q", row.Get("City & Province?"))
	}
}

func TestParse_EscapedQuotesAreStripped(t *testing.T) {
	batch, err := Parse("name,email\n\"say \"\"hi\"\"\",a@x.com", Options{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := batch.Rows[0].Get("name"); got != "say hi" {
		t.Errorf("Expected 'say hi', got %q", got)
	}
}

func TestParse_SkipsBlankLinesAndCRLF(t *testing.T) {
	batch, err := Parse("\ufeffname,email\r\n\r\nA,a@x.com\r\n   \r\nB,b@x.com\r\n", Options{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if batch.Headers[0] != "name" {
		t.Errorf("Expected BOM to be stripped, got %q", batch.Headers[0])
	}
	if len(batch.Rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(batch.Rows))
	}
	if batch.Rows[1].Number != 3 {
		t.Errorf("Expected blank lines not to be numbered, got row %d", batch.Rows[1].Number)
	}
}

func TestParse_RaggedRows(t *testing.T) {
	text := "name,email\nA,a@x.com\nB,b@x.com,extra\nC,c@x.com"

	t.Run("drop", func(t *testing.T) {
		batch, err := Parse(text, Options{RaggedRows: RaggedDrop})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(batch.Rows) != 2 {
			t.Fatalf("Expected 2 rows, got %d", len(batch.Rows))
		}
		for _, r := range batch.Rows {
			if r.Get("name") == "B" {
				t.Error("Expected ragged row to be dropped")
			}
		}
		if len(batch.Rejected) != 0 {
			t.Errorf("Expected no reported rows, got %v", batch.Rejected)
		}
		if batch.Dropped != 1 {
			t.Errorf("Expected 1 dropped, got %d", batch.Dropped)
		}
		if batch.Rows[1].Number != 3 {
			t.Errorf("Expected renumbered row 3, got %d", batch.Rows[1].Number)
		}
	})

	t.Run("report", func(t *testing.T) {
		batch, err := Parse(text, Options{RaggedRows: RaggedReport})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(batch.Rows) != 2 {
			t.Fatalf("Expected 2 rows, got %d", len(batch.Rows))
		}
		if len(batch.Rejected) != 1 {
			t.Fatalf("Expected 1 rejected row, got %d", len(batch.Rejected))
		}
		want := "Row 3: Column count mismatch (expected 2, got 3)"
		if batch.Rejected[0] != want {
			t.Errorf("Expected %q, got %q", want, batch.Rejected[0])
		}
		if batch.Rows[1].Number != 4 {
			t.Errorf("Expected row 4, got %d", batch.Rows[1].Number)
		}
		if batch.Len() != 3 {
			t.Errorf("Expected Len 3, got %d", batch.Len())
		}
	})
}

func TestParse_Unrecoverable(t *testing.T) {
	tests := []struct {
		name string
		text string
		opts Options
		want error
	}{
		{"empty", "", Options{}, ErrTooFewLines},
		{"header only", "name,email", Options{}, ErrTooFewLines},
		{"blank body", "name,email\n\n  \n", Options{}, ErrNoValidRows},
		{"all ragged report", "name,email\nA\nB", Options{RaggedRows: RaggedReport}, ErrNoValidRows},
		{"all ragged drop", "name,email\nA\nB", Options{RaggedRows: RaggedDrop}, ErrNoValidRows},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text, tt.opts)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParse_MaxRows(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
		rows    int
	}{
		{"over the limit", "name,email\nA,a@x.com\nB,b@x.com\nC,c@x.com", true, 0},
		{"at the limit", "name,email\nA,a@x.com\nB,b@x.com", false, 2},
		{"trailing blank lines do not count", "name,email\nA,a@x.com\nB,b@x.com\n\n\n", false, 2},
		{"ragged rows count", "name,email\nA\nB,b@x.com\nC,c@x.com", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := Parse(tt.text, Options{MaxRows: 2})
			if tt.wantErr {
				if !errors.Is(err, ErrTooManyRows) {
					t.Fatalf("Expected ErrTooManyRows, got %v", err)
				}
				if !strings.Contains(err.Error(), "limit is 2") {
					t.Errorf("Expected limit in error, got %q", err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(batch.Rows) != tt.rows {
				t.Errorf("Expected %d rows, got %d", tt.rows, len(batch.Rows))
			}
		})
	}
}

func TestParseRaggedPolicy(t *testing.T) {
	if ParseRaggedPolicy("DROP") != RaggedDrop {
		t.Error("Expected drop")
	}
	if ParseRaggedPolicy("") != RaggedReport || ParseRaggedPolicy("whatever") != RaggedReport {
		t.Error("Expected report as default")
	}
}

func TestBatchPreview(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("name,email\n")
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&sb, "N%d,n%d@x.com\n", i, i)
	}
	batch, err := Parse(sb.String(), Options{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if got := len(batch.Preview(0)); got != DefaultPreviewRows {
		t.Errorf("Expected %d preview rows, got %d", DefaultPreviewRows, got)
	}
	if got := len(batch.Preview(20)); got != 8 {
		t.Errorf("Expected 8 preview rows, got %d", got)
	}
	if got := batch.Preview(2)[1].Get("name"); got != "N1" {
		t.Errorf("Expected N1, got %s", got)
	}
}

func TestDedupe(t *testing.T) {
	row := func(n int, email string) Row {
		return Row{Number: n, Fields: map[string]string{"email": email}}
	}

	t.Run("first occurrence wins", func(t *testing.T) {
		unique, dups := Dedupe([]Row{row(2, "A@x.com"), row(3, "a@x.com")}, EmailSet(nil))
		if len(unique) != 1 || dups != 1 {
			t.Fatalf("Expected 1 survivor and 1 duplicate, got %d and %d", len(unique), dups)
		}
		if unique[0].Number != 2 {
			t.Errorf("Expected row 2 to survive, got %d", unique[0].Number)
		}
	})

	t.Run("against storage", func(t *testing.T) {
		unique, dups := Dedupe([]Row{row(2, "A@X.COM")}, EmailSet([]string{"a@x.com"}))
		if len(unique) != 0 || dups != 1 {
			t.Errorf("Expected 0 survivors and 1 duplicate, got %d and %d", len(unique), dups)
		}
	})

	t.Run("order is stable", func(t *testing.T) {
		rows := []Row{row(2, "c@x.com"), row(3, "a@x.com"), row(4, "C@x.com"), row(5, "b@x.com"), row(6, "z@x.com")}
		unique, dups := Dedupe(rows, EmailSet([]string{"Z@x.com"}))
		if dups != 2 {
			t.Errorf("Expected 2 duplicates, got %d", dups)
		}
		want := []int{2, 3, 5}
		if len(unique) != len(want) {
			t.Fatalf("Expected %d survivors, got %d", len(want), len(unique))
		}
		for i, n := range want {
			if unique[i].Number != n {
				t.Errorf("Expected row %d at %d, got %d", n, i, unique[i].Number)
			}
		}
	})
}

// recordingWriter records attempted rows and fails on the configured call numbers.
type recordingWriter struct {
	mu       sync.Mutex
	attempts []Row
	failOn   map[int]error
}

func (w *recordingWriter) WriteRow(ctx context.Context, row Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts = append(w.attempts, row)
	if err, ok := w.failOn[len(w.attempts)]; ok {
		return err
	}
	return nil
}

func emails(list ...string) EmailSource {
	return EmailSourceFunc(func(ctx context.Context) ([]string, error) {
		return list, nil
	})
}

func mustParse(t *testing.T, text string) *Batch {
	t.Helper()
	batch, err := Parse(text, Options{})
	if err != nil {
		t.Fatalf("Unexpected parse error: %v", err)
	}
	return batch
}

func TestPipeline_EndToEnd(t *testing.T) {
	batch := mustParse(t, "name,email\nA,a@x.com\nB,b@x.com\nC,c@x.com\nD,d@x.com\nE,e@x.com\n")
	writer := &recordingWriter{}
	p := NewPipeline(batch, emails(), writer)

	if p.State() != StateParsed {
		t.Fatalf("Expected parsed, got %s", p.State())
	}
	p.Preview(5)
	if p.State() != StatePreviewed {
		t.Fatalf("Expected previewed, got %s", p.State())
	}

	var reports []Progress
	result, err := p.Run(context.Background(), func(pr Progress) { reports = append(reports, pr) })
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.Success != 5 || result.Failed != 0 || result.Duplicates != 0 || len(result.Errors) != 0 {
		t.Errorf("Expected {5 0 0 []}, got %+v", result)
	}
	if result.Errors == nil {
		t.Error("Expected empty, non-nil error list")
	}
	if len(reports) != 5 {
		t.Fatalf("Expected 5 progress reports, got %d", len(reports))
	}
	if reports[0] != (Progress{Done: 1, Total: 5}) || reports[4].Fraction() != 1 {
		t.Errorf("Unexpected progress: %+v", reports)
	}
	if p.State() != StateCompleted {
		t.Errorf("Expected completed, got %s", p.State())
	}
}

func TestPipeline_WriteIsolation(t *testing.T) {
	batch := mustParse(t, "name,email\nA,a@x.com\nB,b@x.com\nC,c@x.com")
	writer := &recordingWriter{failOn: map[int]error{2: errors.New("permission denied")}}

	result, err := NewPipeline(batch, emails(), writer).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Success != 2 || result.Failed != 1 {
		t.Errorf("Expected 2 success and 1 failed, got %+v", result)
	}
	if len(result.Errors) != 1 || result.Errors[0] != "Row 2: permission denied" {
		t.Errorf("Expected one error for row 2, got %v", result.Errors)
	}
	if len(writer.attempts) != 3 {
		t.Fatalf("Expected all 3 rows attempted, got %d", len(writer.attempts))
	}
	if writer.attempts[2].Get("name") != "C" {
		t.Errorf("Expected row C attempted last, got %s", writer.attempts[2].Get("name"))
	}
}

func TestPipeline_WriterPanicIsIsolated(t *testing.T) {
	batch := mustParse(t, "name,email\nA,a@x.com\nB,b@x.com")
	calls := 0
	writer := RowWriterFunc(func(ctx context.Context, row Row) error {
		calls++
		if calls == 1 {
			panic("boom")
		}
		return nil
	})

	result, err := NewPipeline(batch, emails(), writer).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Success != 1 || result.Failed != 1 {
		t.Errorf("Expected 1 success and 1 failed, got %+v", result)
	}
}

func TestPipeline_ValidationErrors(t *testing.T) {
	batch := mustParse(t, "name,email\n,a@x.com\nB,not-an-email\nC,c@x.com")
	writer := &recordingWriter{}

	result, err := NewPipeline(batch, emails(), writer).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := []string{
		"Row 2: Missing required fields (name or email)",
		"Row 3: Invalid email format (not-an-email)",
	}
	if len(result.Errors) != len(want) {
		t.Fatalf("Expected %d errors, got %v", len(want), result.Errors)
	}
	for i := range want {
		if result.Errors[i] != want[i] {
			t.Errorf("Expected %q, got %q", want[i], result.Errors[i])
		}
	}
	if result.Success != 1 || result.Failed != 2 {
		t.Errorf("Expected 1 success and 2 failed, got %+v", result)
	}
}

func TestPipeline_AllInvalidSkipsDedupeAndWrite(t *testing.T) {
	batch := mustParse(t, "name,email\n,a@x.com\nB,\n")
	fetched := false
	source := EmailSourceFunc(func(ctx context.Context) ([]string, error) {
		fetched = true
		return nil, nil
	})
	writer := &recordingWriter{}

	result, err := NewPipeline(batch, source, writer).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Failed != 2 || result.Success != 0 || len(result.Errors) != 2 {
		t.Errorf("Expected 2 failed with 2 errors, got %+v", result)
	}
	if fetched || len(writer.attempts) != 0 {
		t.Error("Expected dedupe and write to be skipped")
	}
}

func TestPipeline_AllDuplicates(t *testing.T) {
	batch := mustParse(t, "name,email\nA,a@x.com\nB,B@x.com")
	writer := &recordingWriter{}

	result, err := NewPipeline(batch, emails("A@X.com", "b@x.com"), writer).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Duplicates != 2 || result.Success != 0 || result.Failed != 0 {
		t.Errorf("Expected 2 duplicates only, got %+v", result)
	}
	if len(result.Errors) != 1 || result.Errors[0] != AllDuplicatesNote {
		t.Errorf("Expected duplicates note, got %v", result.Errors)
	}
	if len(writer.attempts) != 0 {
		t.Errorf("Expected no writes, got %d", len(writer.attempts))
	}
}

func TestPipeline_ReportsRaggedRows(t *testing.T) {
	batch, err := Parse("name,email\nA,a@x.com\nB\n", Options{RaggedRows: RaggedReport})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	result, err := NewPipeline(batch, emails(), &recordingWriter{}).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Success != 1 || result.Failed != 1 {
		t.Errorf("Expected 1 success and 1 failed, got %+v", result)
	}
	if len(result.Errors) != 1 || !strings.HasPrefix(result.Errors[0], "Row 3: Column count mismatch") {
		t.Errorf("Unexpected errors: %v", result.Errors)
	}
}

func TestPipeline_AssignsCreatedAt(t *testing.T) {
	batch := mustParse(t, "name,email,created_at\nA,a@x.com,\nB,b@x.com,2023-05-01T00:00:00Z")
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	writer := &recordingWriter{}

	_, err := NewPipeline(batch, emails(), writer).WithClock(func() time.Time { return fixed }).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := writer.attempts[0].Get("created_at"); got != "2024-03-01T12:00:00Z" {
		t.Errorf("Expected assigned timestamp, got %q", got)
	}
	if got := writer.attempts[1].Get("created_at"); got != "2023-05-01T00:00:00Z" {
		t.Errorf("Expected original timestamp kept, got %q", got)
	}
	if batch.Rows[0].Fields["created_at"] != "" {
		t.Error("Expected parsed batch to be left untouched")
	}
}

func TestPipeline_RunsOnce(t *testing.T) {
	batch := mustParse(t, "name,email\nA,a@x.com")
	p := NewPipeline(batch, emails(), &recordingWriter{})

	if _, err := p.Run(context.Background(), nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := p.Run(context.Background(), nil); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}
}

func TestPipeline_ExistingEmailsFailure(t *testing.T) {
	batch := mustParse(t, "name,email\nA,a@x.com")
	source := EmailSourceFunc(func(ctx context.Context) ([]string, error) {
		return nil, errors.New("connection refused")
	})
	p := NewPipeline(batch, source, &recordingWriter{})

	if _, err := p.Run(context.Background(), nil); err == nil {
		t.Fatal("Expected error")
	}
	if p.State() != StateFailed {
		t.Errorf("Expected failed, got %s", p.State())
	}
}

func TestPipeline_WritesIgnoreCancellation(t *testing.T) {
	batch := mustParse(t, "name,email\nA,a@x.com\nB,b@x.com")
	ctx, cancel := context.WithCancel(context.Background())
	writer := RowWriterFunc(func(wctx context.Context, row Row) error {
		cancel()
		return wctx.Err()
	})

	result, err := NewPipeline(batch, emails(), writer).Run(ctx, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Success != 2 {
		t.Errorf("Expected both writes to complete, got %+v", result)
	}
}

func TestStateString(t *testing.T) {
	if StateDeduplicating.String() != "deduplicating" {
		t.Errorf("Expected deduplicating, got %s", StateDeduplicating)
	}
	if State(99).String() != "unknown" {
		t.Errorf("Expected unknown, got %s", State(99))
	}
	if !StateFailed.Done() || StateWriting.Done() {
		t.Error("Unexpected Done result")
	}
}

func TestTemplate(t *testing.T) {
	raw, err := Template()
	if err != nil {
		t.Fatalf("Template failed: %v", err)
	}
	tpl := string(raw)
	batch, err := Parse(tpl+"Jane,Jane,Doe,jane@x.com,,,,,,,,,,,,,\n", Options{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(batch.Headers) != 17 {
		t.Fatalf("Expected 17 template columns, got %d", len(batch.Headers))
	}
	if batch.Headers[6] != "Are you self-employed, working for a company, or a student?" {
		t.Errorf("Expected quoted header to survive, got %q", batch.Headers[6])
	}
	if len(batch.Rows) != 1 {
		t.Errorf("Expected template row to parse, got %d rows", len(batch.Rows))
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestWriteTemplate_ReportsWriterError(t *testing.T) {
	err := WriteTemplate(failingWriter{})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Expected writer error, got %v", err)
	}
}
