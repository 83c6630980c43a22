package tangguh

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"time"
)

// Request is an immutable request descriptor. Callers build it once and hand
// it to Execute; the client never mutates it.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte

	// Timeout overrides the client's per-attempt timeout when positive.
	Timeout time.Duration
}

// validate checks the descriptor before dispatch.
func (r Request) validate() error {
	switch r.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete,
		http.MethodHead, http.MethodOptions:
	default:
		return fmt.Errorf("unsupported method %q", r.Method)
	}
	if _, err := url.Parse(r.URL); err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if r.URL == "" {
		return fmt.Errorf("empty url")
	}
	return nil
}

// httpRequest materializes the descriptor into an *http.Request bound to ctx.
func (r Request) httpRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", UserAgent)
	}
	// Replays and retries re-read the body from the descriptor's bytes.
	if len(r.Body) > 0 {
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(r.Body)), nil
		}
	}
	return req, nil
}

// DefaultFingerprint derives the cache/de-duplication key from method, URL
// and body hash. Headers never contribute; see WithFingerprintHeaders for
// opting specific headers in.
func DefaultFingerprint(req Request) string {
	h := fnv.New64a()
	h.Write([]byte(req.Method))
	h.Write([]byte{':'})
	h.Write([]byte(req.URL))
	if len(req.Body) > 0 {
		sum := sha256.Sum256(req.Body)
		h.Write(sum[:])
	}
	return fmt.Sprintf("%x", h.Sum64())
}

// FingerprintWithHeaders returns a FingerprintFunc that additionally folds
// the named headers into the key. Use for headers that legitimately vary the
// response (e.g. Accept, Authorization scope), never for per-call noise.
func FingerprintWithHeaders(names ...string) FingerprintFunc {
	canonical := make([]string, len(names))
	for i, n := range names {
		canonical[i] = textproto.CanonicalMIMEHeaderKey(n)
	}
	sort.Strings(canonical)

	return func(req Request) string {
		h := fnv.New64a()
		h.Write([]byte(req.Method))
		h.Write([]byte{':'})
		h.Write([]byte(req.URL))
		if len(req.Body) > 0 {
			sum := sha256.Sum256(req.Body)
			h.Write(sum[:])
		}
		for _, name := range canonical {
			for _, v := range req.Header.Values(name) {
				h.Write([]byte{';'})
				h.Write([]byte(name))
				h.Write([]byte{'='})
				h.Write([]byte(v))
			}
		}
		return fmt.Sprintf("%x", h.Sum64())
	}
}

// DefaultCacheCondition caches GET requests only.
func DefaultCacheCondition(req Request) bool {
	return req.Method == http.MethodGet
}

// DefaultDedupeCondition de-duplicates safe idempotent methods.
func DefaultDedupeCondition(req Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// endpointOf extracts host+path for metric labels.
func endpointOf(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	if u.Path == "" || u.Path == "/" {
		return u.Host + "/"
	}
	return u.Host + u.Path
}

// hostOf extracts the host for per-host rate limiting.
func hostOf(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return "unknown"
	}
	return u.Host
}
