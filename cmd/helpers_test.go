// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R'}

// executeCommand runs a fresh command tree and returns what it wrote to stdout.
func executeCommand(ctx context.Context, args ...string) (string, error) {
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

// useFs swaps the command filesystem for the duration of a test.
func useFs(t *testing.T, fs afero.Fs) {
	t.Helper()
	prev := appFs
	appFs = fs
	t.Cleanup(func() { appFs = prev })
}

// newIconServer serves PNG bytes under /images/ and 404s any name starting
// with "Missing". The returned counter tracks requests.
func newIconServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		name := strings.TrimPrefix(r.URL.Path, "/images/")
		if strings.HasPrefix(name, "Missing") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	}))
	t.Cleanup(server.Close)
	return server, &hits
}
