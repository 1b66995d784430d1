package obs

import (
	"net/http"
	"time"
)

type RequestContext struct {
	RequestID  string
	Method     string
	Path       string
	Route      string
	Status     int
	Duration   time.Duration
	BytesIn    int64
	BytesOut   int64
	WriteCache string
	User       string
	UserAgent  string
	RemoteAddr string
	// Headers are only logged at debug level, redacted.
	Headers http.Header
}
