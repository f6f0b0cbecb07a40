package allure

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// historyNamespace keeps history ids stable for the same fullName across runs.
var historyNamespace = uuid.MustParse("6f1c3b7e-2d4a-4f0e-9a51-7c2e8d3b9f10")

// HistoryID derives a deterministic history id from a result's full name.
func HistoryID(fullName string) string {
	return uuid.NewSHA1(historyNamespace, []byte(fullName)).String()
}

// WriteResult stores r as <uuid>-result.json in dir and returns the file path.
// A missing uuid is generated.
func WriteResult(dir string, r Result) (string, error) {
	if r.UUID == "" {
		r.UUID = uuid.NewString()
	}
	if r.HistoryID == "" && r.FullName != "" {
		r.HistoryID = HistoryID(r.FullName)
	}
	if r.Labels == nil {
		r.Labels = []Label{}
	}
	path := filepath.Join(dir, r.UUID+ResultSuffix)
	if err := WriteJSON(path, r); err != nil {
		return "", err
	}
	return path, nil
}

// WriteJSON writes data as indented JSON, creating the parent directory.
func WriteJSON(path string, data any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prepare output directory for %q: %w", path, err)
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json %q: %w", path, err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write json file %q: %w", path, err)
	}
	return nil
}

// WriteAttachment stores content as <uuid>-attachment<ext> in dir and returns
// the Attachment that references it.
func WriteAttachment(dir, name, mimeType, ext string, content []byte) (Attachment, error) {
	source := uuid.NewString() + "-attachment" + ext
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Attachment{}, fmt.Errorf("prepare attachment directory %q: %w", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, source), content, 0o644); err != nil {
		return Attachment{}, fmt.Errorf("write attachment %q: %w", source, err)
	}
	return Attachment{Name: name, Source: source, Type: mimeType}, nil
}
