package cache

import (
	"net/http"
	"time"
)

// noCacheHeaders are forced on every managed request and freshness probe.
var noCacheHeaders = map[string]string{
	"Cache-Control": "no-cache, no-store, must-revalidate",
	"Pragma":        "no-cache",
	"Expires":       "0",
}

// ApplyNoCacheHeaders sets the no-cache directives on req, replacing any
// conflicting caller values.
func ApplyNoCacheHeaders(req *http.Request) {
	if req == nil {
		return
	}
	for name, value := range noCacheHeaders {
		req.Header.Set(name, value)
	}
}

// mergeHeaders copies caller headers onto req. No-cache directives are
// applied afterwards and take precedence.
func mergeHeaders(req *http.Request, base http.Header) {
	for name, values := range base {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	ApplyNoCacheHeaders(req)
}

// serverTimestamp returns the origin's last-modified time from a probe
// response. A missing or unparsable Last-Modified header yields now, which
// makes the caller treat the data as stale.
func serverTimestamp(headers http.Header, now time.Time) (time.Time, bool) {
	raw := headers.Get("Last-Modified")
	if raw == "" {
		return now, false
	}

	lastModified, err := http.ParseTime(raw)
	if err != nil {
		return now, false
	}
	return lastModified, true
}

// isOK reports whether status is in the 2xx range.
func isOK(status int) bool {
	return status >= 200 && status < 300
}
