package models

import (
	"strings"
	"time"
)

// ImportRow is one parsed upload row keyed by header
type ImportRow struct {
	// Number is the 1-based file row; the first data row is row 2
	Number int               `json:"row"`
	Fields map[string]string `json:"fields"`
}

// Get returns the value of header key, matched case-insensitively
func (r ImportRow) Get(key string) string {
	if v, ok := r.Fields[key]; ok {
		return v
	}
	for k, v := range r.Fields {
		if strings.EqualFold(strings.TrimSpace(k), key) {
			return v
		}
	}
	return ""
}

// ImportProgress counts completed writes
type ImportProgress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// Fraction returns Done/Total, or 0 before anything is scheduled
func (p ImportProgress) Fraction() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Done) / float64(p.Total)
}

// ImportResult is the outcome of one import run. It is returned to the
// caller and never persisted.
type ImportResult struct {
	Success    int      `json:"success"`
	Failed     int      `json:"failed"`
	Duplicates int      `json:"duplicates"`
	Errors     []string `json:"errors"`
}

// ImportSession tracks one uploaded file from preview to completion.
// Sessions live in memory only and expire after the configured TTL.
type ImportSession struct {
	ID          string         `json:"import_id"`
	Filename    string         `json:"filename"`
	CreatedBy   string         `json:"created_by"`
	State       string         `json:"state"`
	Headers     []string       `json:"headers"`
	TotalRows   int            `json:"total_rows"`
	Preview     []ImportRow    `json:"preview"`
	Progress    ImportProgress `json:"progress"`
	Result      *ImportResult  `json:"result,omitempty"`
	ParseErrors []string       `json:"parse_errors,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	DurationMs  int64          `json:"duration_ms,omitempty"`
}
