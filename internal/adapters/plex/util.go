package plex

import (
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// drainAndClose fully consumes and closes a response body so the
// underlying connection can be reused
func drainAndClose(rc io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 64<<10))
	return rc.Close()
}

// parseRetryAfter returns the Retry-After header in whole seconds, 0 when
// absent or not a plain delay
func parseRetryAfter(h http.Header) int {
	s := strings.TrimSpace(h.Get("Retry-After"))
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return 0
}

// cloneValues copies url.Values so pagination can mutate offset per page
func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+2)
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
