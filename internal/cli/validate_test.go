package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// benchExportJSON is a compact but complete export document: one of each
// entity, every reference resolvable.
const benchExportJSON = `{
  "id": "https://cloud.connect-mesh.io/api/core/networks/2f7ac1f3-9e40-4bd1-8a14-d0e6b14f2a77/export",
  "partial": false,
  "$schema": "http://json-schema.org/draft-04/schema#",
  "version": "1.0.0",
  "meshName": "Workshop",
  "timestamp": "2025-02-03T09:15:00Z",
  "meshUUID": "4E1A0FD2-95C3-45F2-B1D1-6E2C9A7F3B08",
  "netKeys": [
    {"name": "Primary", "index": 0, "key": "0123456789ABCDEF0123456789ABCDEF",
     "minSecurity": "secure", "phase": 0, "timestamp": "2025-02-03T09:15:00Z"}
  ],
  "appKeys": [
    {"name": "Lighting", "index": 0, "boundNetKey": 0, "key": "FEDCBA9876543210FEDCBA9876543210"}
  ],
  "provisioners": [],
  "groups": [
    {"name": "Workshop Bench", "address": "C000", "parentAddress": "0000"}
  ],
  "scenes": [
    {"name": "Work", "addresses": ["C000"], "number": "0001"}
  ],
  "nodes": [
    {"configComplete": true, "excluded": false,
     "UUID": "7D2E4C81-3B5F-4E09-A6D2-1C8F9B0E5A43",
     "unicastAddress": "0002", "security": "secure",
     "deviceKey": "00112233445566778899AABBCCDDEEFF",
     "elements": [
       {"location": "010C", "index": 0, "name": "Main",
        "models": [{"modelId": "1000", "subscribe": ["C000"], "bind": [0]}]}
     ]}
  ]
}`

// writeExport writes content to a temp file and returns its path.
func writeExport(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.json")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing export fixture: %v", err)
	}
	return path
}

// mutateExport decodes the bench fixture, applies fn, and re-encodes.
func mutateExport(t *testing.T, fn func(doc map[string]any)) string {
	t.Helper()
	var doc map[string]any
	if err := json.Unmarshal([]byte(benchExportJSON), &doc); err != nil {
		t.Fatalf("decoding fixture: %v", err)
	}
	fn(doc)
	out, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}
	return string(out)
}

// execute runs cmd with args and returns what it wrote to stdout. Error
// text goes to a separate buffer so JSON output stays machine-parseable.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// ─── Validate ──────────────────────────────────────────────────────────────

// TestValidateCommand_ValidDocument verifies a conforming export passes.
func TestValidateCommand_ValidDocument(t *testing.T) {
	path := writeExport(t, benchExportJSON)

	out, err := execute(t, newValidateCmd(), path)
	if err != nil {
		t.Fatalf("validate returned error: %v", err)
	}
	if !strings.Contains(out, "valid") {
		t.Errorf("output %q should report the document as valid", out)
	}
}

// TestValidateCommand_SchemaViolations verifies violations exit 1 and are listed.
func TestValidateCommand_SchemaViolations(t *testing.T) {
	path := writeExport(t, mutateExport(t, func(doc map[string]any) {
		delete(doc, "meshUUID")
	}))

	out, err := execute(t, newValidateCmd(), path)
	if err == nil {
		t.Fatal("validate should fail for a document missing meshUUID")
	}
	if got := ExitCode(err); got != 1 {
		t.Errorf("ExitCode = %d, want 1", got)
	}
	if !strings.Contains(out, "meshUUID") {
		t.Errorf("output %q should name the missing field", out)
	}
	if !strings.Contains(out, "schema violation") {
		t.Errorf("output %q should label the findings as schema violations", out)
	}
}

// TestValidateCommand_ParseError verifies malformed JSON exits 2.
func TestValidateCommand_ParseError(t *testing.T) {
	path := writeExport(t, `{"meshName": "Broken"`)

	_, err := execute(t, newValidateCmd(), path)
	if err == nil {
		t.Fatal("validate should fail for malformed JSON")
	}
	if got := ExitCode(err); got != 2 {
		t.Errorf("ExitCode = %d, want 2", got)
	}
}

// TestValidateCommand_MissingFile verifies a read failure is a plain error.
func TestValidateCommand_MissingFile(t *testing.T) {
	_, err := execute(t, newValidateCmd(), filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Fatal("validate should fail for a missing file")
	}
	if got := ExitCode(err); got != 1 {
		t.Errorf("ExitCode = %d, want 1", got)
	}
}

// TestValidateCommand_JSONOutput verifies --json emits a decodable report.
func TestValidateCommand_JSONOutput(t *testing.T) {
	path := writeExport(t, benchExportJSON)

	out, err := execute(t, newValidateCmd(), path, "--json")
	if err != nil {
		t.Fatalf("validate returned error: %v", err)
	}

	var report validateReport
	if decErr := json.Unmarshal([]byte(out), &report); decErr != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", decErr, out)
	}
	if !report.Valid {
		t.Error("report.Valid should be true")
	}
	if report.Violations == nil || len(report.Violations) != 0 {
		t.Errorf("report.Violations = %v, want empty non-nil slice", report.Violations)
	}
}

// TestValidateCommand_JSONOutputViolations verifies --json carries violations.
func TestValidateCommand_JSONOutputViolations(t *testing.T) {
	path := writeExport(t, mutateExport(t, func(doc map[string]any) {
		delete(doc, "meshUUID")
	}))

	out, err := execute(t, newValidateCmd(), path, "--json")
	if got := ExitCode(err); got != 1 {
		t.Fatalf("ExitCode = %d, want 1", got)
	}

	var report validateReport
	if decErr := json.Unmarshal([]byte(out), &report); decErr != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", decErr, out)
	}
	if report.Valid {
		t.Error("report.Valid should be false")
	}
	found := false
	for _, v := range report.Violations {
		if v.Path == "meshUUID" {
			found = true
		}
	}
	if !found {
		t.Errorf("violations %v should include meshUUID", report.Violations)
	}
}

// TestValidateCommand_ReferenceFindings verifies --refs surfaces dangling keys.
func TestValidateCommand_ReferenceFindings(t *testing.T) {
	path := writeExport(t, mutateExport(t, func(doc map[string]any) {
		appKeys := doc["appKeys"].([]any)
		appKeys[0].(map[string]any)["boundNetKey"] = float64(7)
	}))

	out, err := execute(t, newValidateCmd(), path, "--refs")
	if err == nil {
		t.Fatal("validate --refs should fail for a dangling boundNetKey")
	}
	if got := ExitCode(err); got != 1 {
		t.Errorf("ExitCode = %d, want 1", got)
	}
	if !strings.Contains(out, "appKeys[0].boundNetKey") {
		t.Errorf("output %q should name the dangling reference", out)
	}
	if !strings.Contains(out, "reference finding") {
		t.Errorf("output %q should label the findings as reference findings", out)
	}
}

// TestValidateCommand_RefsCleanDocument verifies --refs passes a closed document.
func TestValidateCommand_RefsCleanDocument(t *testing.T) {
	path := writeExport(t, benchExportJSON)

	out, err := execute(t, newValidateCmd(), path, "--refs")
	if err != nil {
		t.Fatalf("validate --refs returned error: %v", err)
	}
	if !strings.Contains(out, "valid") {
		t.Errorf("output %q should report the document as valid", out)
	}
}

// ─── Exit codes ────────────────────────────────────────────────────────────

// TestExitCode verifies the error-to-exit-code mapping.
func TestExitCode(t *testing.T) {
	wrapped := &ExitError{Code: 2, Err: errors.New("parse failed")}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain error", errors.New("boom"), 1},
		{"exit error", &ExitError{Code: 3, Err: errors.New("x")}, 3},
		{"wrapped exit error", wrapErr(wrapped), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func wrapErr(err error) error {
	return &wrappingError{err: err}
}

type wrappingError struct {
	err error
}

func (w *wrappingError) Error() string { return "wrapped: " + w.err.Error() }

func (w *wrappingError) Unwrap() error { return w.err }
