package csvimport

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/member-dashboard-api/internal/models"
)

// TemplateFilename is the download name of the import template.
const TemplateFilename = "sample_members.csv"

// Template returns the header row an upload is expected to carry.
func Template() ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteTemplate(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTemplate writes the header row to w.
func WriteTemplate(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(models.MemberHeaders()); err != nil {
		return fmt.Errorf("write template: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write template: %w", err)
	}
	return nil
}
