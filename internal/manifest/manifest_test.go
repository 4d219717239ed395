package manifest

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/iconfetch/internal/catalog"
	"github.com/xkilldash9x/iconfetch/internal/fetcher"
)

func sampleReport() *fetcher.Report {
	start := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	return &fetcher.Report{
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
		Results: []fetcher.Result{
			{
				Icon:     catalog.Icon{Name: "Attack", FileName: "Attack_icon.png", URL: "https://example.org/images/Attack_icon.png"},
				Path:     "icons/Attack_icon.png",
				Status:   fetcher.StatusDownloaded,
				Bytes:    512,
				SHA256:   "abc123",
				Duration: 150 * time.Millisecond,
			},
			{
				Icon:   catalog.Icon{Name: "Magic", FileName: "Magic_icon.png", URL: "https://example.org/images/Magic_icon.png"},
				Path:   "icons/Magic_icon.png",
				Status: fetcher.StatusFailed,
				Err:    errors.New("unexpected HTTP status 404 Not Found"),
			},
			{
				Icon:   catalog.Icon{Name: "Prayer", FileName: "Prayer_icon.png", URL: "https://example.org/images/Prayer_icon.png"},
				Path:   "icons/Prayer_icon.png",
				Status: fetcher.StatusSkipped,
			},
		},
	}
}

func TestFromReport(t *testing.T) {
	m := FromReport(sampleReport(), "https://example.org/images/", "icons")

	_, err := uuid.Parse(m.RunID)
	require.NoError(t, err, "run ID must be a UUID")
	assert.Equal(t, Counts{Total: 3, Downloaded: 1, Skipped: 1, Failed: 1, Bytes: 512}, m.Counts)

	want := []Entry{
		{Name: "Attack", URL: "https://example.org/images/Attack_icon.png", Path: "icons/Attack_icon.png", Status: "downloaded", Bytes: 512, SHA256: "abc123", DurationMS: 150},
		{Name: "Magic", URL: "https://example.org/images/Magic_icon.png", Path: "icons/Magic_icon.png", Status: "failed", Error: "unexpected HTTP status 404 Not Found"},
		{Name: "Prayer", URL: "https://example.org/images/Prayer_icon.png", Path: "icons/Prayer_icon.png", Status: "skipped"},
	}
	if diff := cmp.Diff(want, m.Entries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteAndRead(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := FromReport(sampleReport(), "https://example.org/images/", "icons")

	require.NoError(t, Write(fs, "/runs/latest/manifest.json", m))

	got, err := Read(fs, "/runs/latest/manifest.json")
	require.NoError(t, err)
	if diff := cmp.Diff(m, got, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	entries, err := afero.ReadDir(fs, "/runs/latest")
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must be renamed away")
}

func TestWrite_ProducesReadableJSON(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, Write(fs, "/manifest.json", FromReport(sampleReport(), "https://example.org/images/", "icons")))

	data, err := afero.ReadFile(fs, "/manifest.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id"`)
	assert.Contains(t, string(data), `"status": "failed"`)
	assert.NotContains(t, string(data), `"sha256": ""`, "empty optional fields are omitted")
}

func TestRead_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := Read(fs, "/missing.json")
	assert.ErrorContains(t, err, "read manifest")

	require.NoError(t, afero.WriteFile(fs, "/bad.json", []byte("{not json"), 0o644))
	_, err = Read(fs, "/bad.json")
	assert.ErrorContains(t, err, "decode manifest")
}

func TestWrite_ReadOnlyFs(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	err := Write(fs, "/out/manifest.json", FromReport(sampleReport(), "", ""))
	assert.Error(t, err)
}
