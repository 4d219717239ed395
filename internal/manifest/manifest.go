// Package manifest records the outcome of a fetch run as JSON.
package manifest

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"

	"github.com/xkilldash9x/iconfetch/internal/fetcher"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Manifest is the persisted form of a fetch report.
type Manifest struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	BaseURL    string    `json:"base_url"`
	OutputDir  string    `json:"output_dir"`
	Counts     Counts    `json:"counts"`
	Entries    []Entry   `json:"entries"`
}

// Counts mirrors fetcher.Summary.
type Counts struct {
	Total      int   `json:"total"`
	Downloaded int   `json:"downloaded"`
	Skipped    int   `json:"skipped"`
	Failed     int   `json:"failed"`
	Bytes      int64 `json:"bytes"`
}

// Entry is one icon in the manifest.
type Entry struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	Path       string `json:"path"`
	Status     string `json:"status"`
	Bytes      int64  `json:"bytes,omitempty"`
	SHA256     string `json:"sha256,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// FromReport converts a report into a Manifest with a fresh run ID.
func FromReport(report *fetcher.Report, baseURL, outputDir string) *Manifest {
	summary := report.Summary()
	m := &Manifest{
		RunID:      uuid.NewString(),
		StartedAt:  report.StartedAt.UTC(),
		FinishedAt: report.FinishedAt.UTC(),
		BaseURL:    baseURL,
		OutputDir:  outputDir,
		Counts: Counts{
			Total:      summary.Total,
			Downloaded: summary.Downloaded,
			Skipped:    summary.Skipped,
			Failed:     summary.Failed,
			Bytes:      summary.Bytes,
		},
		Entries: make([]Entry, 0, len(report.Results)),
	}

	for _, res := range report.Results {
		entry := Entry{
			Name:       res.Icon.Name,
			URL:        res.Icon.URL,
			Path:       res.Path,
			Status:     string(res.Status),
			Bytes:      res.Bytes,
			SHA256:     res.SHA256,
			DurationMS: res.Duration.Milliseconds(),
		}
		if res.Err != nil {
			entry.Error = res.Err.Error()
		}
		m.Entries = append(m.Entries, entry)
	}
	return m
}

// Write stores m as indented JSON at path, replacing any previous manifest atomically.
func Write(fs afero.Fs, path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}

	tmp, err := afero.TempFile(fs, dir, ".manifest-*")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmp.Name())
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmp.Name())
		return fmt.Errorf("close manifest: %w", err)
	}
	if err := fs.Rename(tmp.Name(), path); err != nil {
		_ = fs.Remove(tmp.Name())
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}

// Read loads a manifest written by Write.
func Read(fs afero.Fs, path string) (*Manifest, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return &m, nil
}
