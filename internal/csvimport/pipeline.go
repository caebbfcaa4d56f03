package csvimport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/member-dashboard-api/internal/models"
	"github.com/member-dashboard-api/internal/validation"
)

type (
	// Progress is reported after every write.
	Progress = models.ImportProgress
	// Result summarizes one run.
	Result = models.ImportResult
)

// ErrAlreadyRunning is returned by Run on a pipeline that has already started.
var ErrAlreadyRunning = errors.New("import already started")

// AllDuplicatesNote is the result entry used when every valid row is a duplicate.
const AllDuplicatesNote = "All records are duplicates"

// State is a pipeline stage.
type State int

const (
	StateIdle State = iota
	StateParsed
	StatePreviewed
	StateValidating
	StateDeduplicating
	StateWriting
	StateCompleted
	// StateFailed means the run stopped on an error outside any single row.
	StateFailed
)

var stateNames = [...]string{
	StateIdle:          "idle",
	StateParsed:        "parsed",
	StatePreviewed:     "previewed",
	StateValidating:    "validating",
	StateDeduplicating: "deduplicating",
	StateWriting:       "writing",
	StateCompleted:     "completed",
	StateFailed:        "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Done reports whether the pipeline has finished, successfully or not.
func (s State) Done() bool {
	return s == StateCompleted || s == StateFailed
}

// EmailSource lists the emails already in storage.
type EmailSource interface {
	ExistingEmails(ctx context.Context) ([]string, error)
}

// EmailSourceFunc adapts a function to EmailSource.
type EmailSourceFunc func(ctx context.Context) ([]string, error)

func (f EmailSourceFunc) ExistingEmails(ctx context.Context) ([]string, error) {
	return f(ctx)
}

// RowWriter persists one row.
type RowWriter interface {
	WriteRow(ctx context.Context, row Row) error
}

// RowWriterFunc adapts a function to RowWriter.
type RowWriterFunc func(ctx context.Context, row Row) error

func (f RowWriterFunc) WriteRow(ctx context.Context, row Row) error {
	return f(ctx, row)
}

// Pipeline drives one batch through validate, dedupe and write. It runs
// at most once.
type Pipeline struct {
	batch     *Batch
	existing  EmailSource
	writer    RowWriter
	validator *validation.Validator
	now       func() time.Time

	mu       sync.Mutex
	state    State
	progress Progress
}

// NewPipeline creates a pipeline for a parsed batch.
func NewPipeline(batch *Batch, existing EmailSource, writer RowWriter) *Pipeline {
	state := StateIdle
	if batch != nil {
		state = StateParsed
	}
	return &Pipeline{
		batch:     batch,
		existing:  existing,
		writer:    writer,
		validator: validation.NewValidator(),
		now:       time.Now,
		state:     state,
	}
}

// WithClock replaces the clock used for missing created_at values.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// State returns the current stage.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Progress returns the write progress so far.
func (p *Pipeline) Progress() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// Preview returns the leading rows and marks the batch as previewed.
func (p *Pipeline) Preview(n int) []Row {
	p.mu.Lock()
	if p.state == StateParsed {
		p.state = StatePreviewed
	}
	p.mu.Unlock()
	if p.batch == nil {
		return nil
	}
	return p.batch.Preview(n)
}

// Run validates the whole batch, drops duplicates and writes the rest one
// row at a time. A failed write is recorded and the next row is still
// attempted. onProgress, if set, is called after every write.
//
// Cancelling ctx stops the run only before writing begins.
func (p *Pipeline) Run(ctx context.Context, onProgress func(Progress)) (*Result, error) {
	p.mu.Lock()
	if p.state != StateParsed && p.state != StatePreviewed {
		p.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	p.state = StateValidating
	p.mu.Unlock()

	result := &Result{Errors: []string{}}
	result.Errors = append(result.Errors, p.batch.Rejected...)

	valid, invalid := p.validate()
	result.Errors = append(result.Errors, invalid...)
	result.Failed = len(p.batch.Rejected) + len(invalid)

	if len(valid) == 0 {
		p.setState(StateCompleted)
		return result, nil
	}

	p.setState(StateDeduplicating)
	if err := ctx.Err(); err != nil {
		p.setState(StateFailed)
		return nil, err
	}
	emails, err := p.existing.ExistingEmails(ctx)
	if err != nil {
		p.setState(StateFailed)
		return nil, fmt.Errorf("fetch existing emails: %w", err)
	}
	unique, duplicates := Dedupe(valid, EmailSet(emails))
	result.Duplicates = duplicates

	if len(unique) == 0 {
		result.Errors = append(result.Errors, AllDuplicatesNote)
		p.setState(StateCompleted)
		return result, nil
	}

	p.mu.Lock()
	p.state = StateWriting
	p.progress = Progress{Total: len(unique)}
	p.mu.Unlock()

	writeCtx := context.WithoutCancel(ctx)
	for i, row := range unique {
		if err := p.write(writeCtx, row); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %s", i+1, err.Error()))
		} else {
			result.Success++
		}

		p.mu.Lock()
		p.progress.Done = i + 1
		progress := p.progress
		p.mu.Unlock()
		if onProgress != nil {
			onProgress(progress)
		}
	}

	p.setState(StateCompleted)
	return result, nil
}

// validate splits rows into valid ones and row errors. Valid rows without
// a created_at get the current time.
func (p *Pipeline) validate() ([]Row, []string) {
	valid := make([]Row, 0, len(p.batch.Rows))
	var errs []string

	for _, row := range p.batch.Rows {
		if verr := p.validator.ValidateMember(row.Get("name"), row.Get("email")); verr != nil {
			errs = append(errs, fmt.Sprintf("Row %d: %s", row.Number, verr.Message))
			continue
		}
		if row.Get(models.CreatedAtHeader) == "" {
			row = withField(row, models.CreatedAtHeader, p.now().UTC().Format(time.RFC3339Nano))
		}
		valid = append(valid, row)
	}
	return valid, errs
}

// write isolates a panicking writer to its row.
func (p *Pipeline) write(ctx context.Context, row Row) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("write panicked: %v", r)
		}
	}()
	return p.writer.WriteRow(ctx, row)
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// withField returns a copy of row with key set, leaving the original map untouched.
func withField(row Row, key, value string) Row {
	fields := make(map[string]string, len(row.Fields)+1)
	for k, v := range row.Fields {
		fields[k] = v
	}
	fields[key] = value
	return Row{Number: row.Number, Fields: fields}
}
