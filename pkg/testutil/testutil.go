// Package testutil provides shared fixtures for training-sync tests
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ncsa/training-sync/pkg/catalog"
	"github.com/ncsa/training-sync/pkg/json"
)

// TestLogger creates a test logger that writes to the test output.
// The logger is automatically cleaned up when the test completes.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// SampleRecord builds one parent record with the given ID and import source
func SampleRecord(id int, importSource string) catalog.ParentRecord {
	return catalog.ParentRecord{
		ID:           strconv.Itoa(id),
		CreationTime: "2026-01-15T10:00:00Z",
		EntityJSON: catalog.EntityJSON{
			ResourceName:        "Sample Training Resource",
			ResourceDescription: "An introductory training course",
			ResourceWebsite:     "https://training.example.edu/course/1",
			DataLicense:         "Proprietary",
			CostDescription:     "Free to affiliates",
			ImportSource:        importSource,
		},
	}
}

// SampleDocument builds a catalog document with n records carrying
// importSource plus extra records carrying a different source tag
func SampleDocument(n, extra int, importSource string) *catalog.Document {
	doc := &catalog.Document{}
	for i := 0; i < n; i++ {
		doc.Results = append(doc.Results, SampleRecord(i+1, importSource))
	}
	for i := 0; i < extra; i++ {
		doc.Results = append(doc.Results, SampleRecord(n+i+1, "Other.org"))
	}
	return doc
}

// WriteDocument writes doc as JSON into dir and returns the file path
func WriteDocument(t *testing.T, dir string, doc *catalog.Document) string {
	t.Helper()
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("encoding document: %v", err)
	}
	path := filepath.Join(dir, "catalog.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing document: %v", err)
	}
	return path
}

// WriteConfig writes a JSON config file into dir and returns its path
func WriteConfig(t *testing.T, dir string, cfg map[string]interface{}) string {
	t.Helper()
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("encoding config: %v", err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}
