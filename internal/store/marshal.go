package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/conform/internal/ir"
)

// timeLayout stores timestamps as sortable UTC text.
const timeLayout = time.RFC3339Nano

// marshalReport converts a report to JSON TEXT for storage.
// HTML escaping is disabled so fragments are stored as scanned.
func marshalReport(r ir.Report) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalReport parses a stored report.
func unmarshalReport(data string) (ir.Report, error) {
	var r ir.Report
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return ir.Report{}, fmt.Errorf("unmarshal report: %w", err)
	}
	if r.Findings == nil {
		r.Findings = []ir.Finding{}
	}
	return r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
