// internal/network/compression.go
package network

import (
	"bufio"
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// acceptEncoding is advertised on every request that does not set its own.
const acceptEncoding = "br, gzip, deflate"

var brotliReaderPool = sync.Pool{
	New: func() interface{} {
		return brotli.NewReader(nil)
	},
}

// compressionTransport is an http.RoundTripper that negotiates compression and
// transparently decodes the response body.
type compressionTransport struct {
	next http.RoundTripper
}

func (ct *compressionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}

	resp, err := ct.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := DecompressResponse(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to initialize response decompression: %w", err)
	}
	return resp, nil
}

// closeWrapper closes the decoder and the original body, and hands pooled
// decoders back once.
type closeWrapper struct {
	io.ReadCloser
	originalBody io.ReadCloser
	release      func()
}

func (w *closeWrapper) Close() error {
	if w.release != nil {
		w.release()
		w.release = nil
	}
	return errors.Join(w.ReadCloser.Close(), w.originalBody.Close())
}

// DecompressResponse wraps resp.Body with decoders for every layer listed in
// Content-Encoding, applied in reverse order. It supports br, gzip and both
// zlib-wrapped and raw deflate.
//
// On success Content-Encoding and Content-Length are removed and
// resp.Uncompressed is set. On error the body may be partially consumed and
// must be discarded by the caller.
func DecompressResponse(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}

	encodings := resp.Header.Values("Content-Encoding")
	if len(encodings) == 0 {
		return nil
	}

	// A single header value may itself be a comma separated list.
	var layers []string
	for _, value := range encodings {
		for _, part := range strings.Split(value, ",") {
			layers = append(layers, strings.ToLower(strings.TrimSpace(part)))
		}
	}

	for i := len(layers) - 1; i >= 0; i-- {
		var (
			reader  io.ReadCloser
			release func()
		)

		switch layers[i] {
		case "gzip", "x-gzip":
			gz, err := gzip.NewReader(resp.Body)
			if err != nil {
				return fmt.Errorf("gzip initialization error: %w", err)
			}
			reader = gz
		case "deflate":
			reader = tryDeflate(resp.Body)
		case "br":
			br := brotliReaderPool.Get().(*brotli.Reader)
			if err := br.Reset(resp.Body); err != nil {
				brotliReaderPool.Put(br)
				return fmt.Errorf("brotli initialization error: %w", err)
			}
			reader = io.NopCloser(br)
			release = func() {
				_ = br.Reset(bytes.NewReader(nil))
				brotliReaderPool.Put(br)
			}
		case "identity", "":
			continue
		default:
			return fmt.Errorf("unsupported Content-Encoding layer: %s", layers[i])
		}

		resp.Body = &closeWrapper{ReadCloser: reader, originalBody: resp.Body, release: release}
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// tryDeflate decodes zlib-wrapped deflate, falling back to raw deflate when the
// zlib header is missing. Some servers send the latter despite RFC 9110.
func tryDeflate(r io.Reader) io.ReadCloser {
	br := bufio.NewReader(r)
	if header, err := br.Peek(2); err == nil && isZlibHeader(header) {
		if zr, err := zlib.NewReader(br); err == nil {
			return zr
		}
	}
	return flate.NewReader(br)
}

// isZlibHeader reports whether the two bytes form a valid RFC 1950 header.
func isZlibHeader(h []byte) bool {
	return h[0]&0x0f == 8 && (uint16(h[0])<<8|uint16(h[1]))%31 == 0
}
