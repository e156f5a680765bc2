package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"ecolisting-chat-backend/internal/logger"
	"ecolisting-chat-backend/utils"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("statusRecorder: underlying ResponseWriter does not support hijacking")
}

func (r *statusRecorder) Push(target string, opts *http.PushOptions) error {
	if p, ok := r.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return http.ErrNotSupported
}

// Logging writes one structured access log entry per request. The request
// id is echoed back in X-Request-ID; one is generated when the caller sent
// none.
func Logging(log *logger.Logger) Middleware {
	log = logger.OrNop(log).With("component", "http")
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = utils.RequestID()
			}
			w.Header().Set("X-Request-ID", reqID)

			next(rec, r)

			log.Info("request",
				"method", r.Method,
				"uri", r.URL.RequestURI(),
				"status", rec.status,
				"size", rec.size,
				"duration", time.Since(start).String(),
				"client_ip", utils.RealClientIP(r),
				"user_agent", r.UserAgent(),
				"referer", r.Referer(),
				"request_id", reqID,
				"profile", Client(r).Profile,
			)
		}
	}
}
