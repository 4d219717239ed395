// File: internal/fetcher/fetcher.go
package fetcher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/iconfetch/internal/catalog"
)

// pngSignature is the fixed 8-byte header of every PNG file.
var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

var (
	// ErrNotPNG is returned when validation is on and the body is not a PNG.
	ErrNotPNG = errors.New("response body is not a PNG image")
	// ErrTooLarge is returned when the body exceeds Config.MaxBytes.
	ErrTooLarge = errors.New("response body exceeds size limit")
	// ErrEmptyBody is returned for a 200 response without content.
	ErrEmptyBody = errors.New("response body is empty")
)

// StatusError reports a non-200 HTTP response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %s", e.Status)
}

// HTTPDoer is the subset of *http.Client used by the fetcher.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config controls a single fetch run.
type Config struct {
	OutputDir   string
	Concurrency int
	// RateLimit is in requests per second; zero or less means unlimited.
	RateLimit   float64
	// Limiter replaces the one built from RateLimit. Share it with the HTTP
	// client's retry policy so retries draw from the same budget.
	Limiter     *rate.Limiter
	Overwrite   bool
	ValidatePNG bool
	MaxBytes    int64
}

// Fetcher downloads icons into an output directory.
type Fetcher struct {
	client  HTTPDoer
	fs      afero.Fs
	cfg     Config
	logger  *zap.Logger
	limiter *rate.Limiter
	now     func() time.Time
}

// New creates a Fetcher. A nil logger disables logging.
func New(client HTTPDoer, fs afero.Fs, cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewLimiter(cfg.RateLimit)
	}

	return &Fetcher{
		client:  client,
		fs:      fs,
		cfg:     cfg,
		logger:  logger.Named("fetcher"),
		limiter: limiter,
		now:     time.Now,
	}
}

// NewLimiter returns a limiter allowing perSecond requests with a burst of
// one. Zero or less means unlimited.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// Run downloads every icon and returns one Result per icon, in input order.
// Individual failures are recorded in the report and do not stop the run.
// The returned error is non-nil only when the output directory cannot be
// prepared or ctx is cancelled.
func (f *Fetcher) Run(ctx context.Context, icons []catalog.Icon) (*Report, error) {
	report := &Report{
		StartedAt: f.now(),
		Results:   make([]Result, len(icons)),
	}

	if err := f.fs.MkdirAll(f.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", f.cfg.OutputDir, err)
	}

	f.logger.Info("Starting icon download",
		zap.Int("icons", len(icons)),
		zap.String("output_dir", f.cfg.OutputDir),
		zap.Int("concurrency", f.cfg.Concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Concurrency)

	for i := range icons {
		if gctx.Err() != nil {
			// Record what never got scheduled.
			report.Results[i] = Result{Icon: icons[i], Status: StatusFailed, Err: gctx.Err()}
			continue
		}
		g.Go(func() error {
			report.Results[i] = f.fetchOne(gctx, icons[i])
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = f.now()

	summary := report.Summary()
	f.logger.Info("Icon download finished",
		zap.Int("downloaded", summary.Downloaded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// fetchOne downloads a single icon. It never returns an error; failures are
// captured in the Result.
func (f *Fetcher) fetchOne(ctx context.Context, icon catalog.Icon) Result {
	start := f.now()
	result := Result{
		Icon: icon,
		Path: filepath.Join(f.cfg.OutputDir, icon.FileName),
	}
	logger := f.logger.With(zap.String("name", icon.Name), zap.String("url", icon.URL))

	if !f.cfg.Overwrite {
		if exists, err := afero.Exists(f.fs, result.Path); err == nil && exists {
			result.Status = StatusSkipped
			logger.Debug("Icon already present, skipping", zap.String("path", result.Path))
			return result
		}
	}

	data, err := f.download(ctx, icon.URL)
	if err == nil {
		err = f.save(result.Path, data)
	}
	result.Duration = f.now().Sub(start)

	if err != nil {
		result.Status = StatusFailed
		result.Err = err
		logger.Warn("Icon download failed", zap.Error(err))
		return result
	}

	sum := sha256.Sum256(data)
	result.Status = StatusDownloaded
	result.Bytes = int64(len(data))
	result.SHA256 = hex.EncodeToString(sum[:])
	logger.Info("Icon downloaded", zap.String("path", result.Path), zap.Int64("bytes", result.Bytes))
	return result
}

// download performs the GET and returns the validated body.
func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "image/png,image/*;q=0.8,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	limit := f.cfg.MaxBytes
	if limit <= 0 {
		limit = 5 << 20
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, limit)
	}
	if len(data) == 0 {
		return nil, ErrEmptyBody
	}
	if f.cfg.ValidatePNG && !bytes.HasPrefix(data, pngSignature) {
		return nil, ErrNotPNG
	}
	return data, nil
}

// save writes data to a temp file beside path and renames it into place, so
// a partially written icon never appears under its final name.
func (f *Fetcher) save(path string, data []byte) error {
	tmp, err := afero.TempFile(f.fs, filepath.Dir(path), ".iconfetch-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = f.fs.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = f.fs.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	// TempFile creates files with mode 0600.
	if err := f.fs.Chmod(tmpName, 0o644); err != nil && !errors.Is(err, os.ErrNotExist) {
		f.logger.Debug("Could not relax icon file mode", zap.String("path", tmpName), zap.Error(err))
	}
	if err := f.fs.Rename(tmpName, path); err != nil {
		_ = f.fs.Remove(tmpName)
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
