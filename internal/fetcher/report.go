package fetcher

import (
	"time"

	"github.com/xkilldash9x/iconfetch/internal/catalog"
)

// Status is the outcome of a single icon download.
type Status string

const (
	StatusDownloaded Status = "downloaded"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
)

// Result describes what happened to one icon.
type Result struct {
	Icon     catalog.Icon
	Path     string
	Status   Status
	Bytes    int64
	SHA256   string
	Duration time.Duration
	Err      error
}

// Report collects the results of a run, in the order the icons were given.
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []Result
}

// Summary counts results by status.
type Summary struct {
	Total      int
	Downloaded int
	Skipped    int
	Failed     int
	Bytes      int64
}

// Summary tallies the report.
func (r *Report) Summary() Summary {
	s := Summary{Total: len(r.Results)}
	for _, res := range r.Results {
		switch res.Status {
		case StatusDownloaded:
			s.Downloaded++
			s.Bytes += res.Bytes
		case StatusSkipped:
			s.Skipped++
		default:
			s.Failed++
		}
	}
	return s
}

// Failures returns the failed results.
func (r *Report) Failures() []Result {
	var failed []Result
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			failed = append(failed, res)
		}
	}
	return failed
}
