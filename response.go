package tangguh

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxBodySize bounds how much of a response body is buffered (and cached).
const maxBodySize = 10 * 1024 * 1024

// Response is the settled outcome of one logical request. The body is fully
// buffered so that cached and de-duplicated callers can all read it.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode parses the JSON body into v. Failures are reported as KindDecode
// and are terminal: retrying will not fix a malformed body.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &RequestError{
			Kind:       KindDecode,
			Message:    "failed to decode response body",
			Cause:      err,
			StatusCode: r.StatusCode,
			Timestamp:  time.Now(),
		}
	}
	return nil
}

// clone returns a shallow copy with its own header map. The body bytes are
// shared and must be treated as read-only.
func (r *Response) clone() *Response {
	if r == nil {
		return nil
	}
	return &Response{
		StatusCode: r.StatusCode,
		Header:     r.Header.Clone(),
		Body:       r.Body,
	}
}

// drainResponse buffers and closes an *http.Response body.
func drainResponse(resp *http.Response) (*Response, error) {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}
