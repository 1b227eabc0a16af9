package http

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/yanqian/finedust/internal/infra/config"
)

const retryBodyLimit = 1 << 20 // 1 MiB

var errBodyTooLarge = errors.New("request body exceeds retry limit")

// withRetry replays idempotent writes (sample upserts, consent updates) that
// fail with a 5xx, typically a storage hiccup surfacing as 503.
func withRetry(handler http.Handler, cfg config.RetryConfig, logger *slog.Logger) http.Handler {
	if !cfg.Enabled || cfg.MaxAttempts <= 1 {
		return handler
	}
	exclusions := make(map[string]struct{}, len(cfg.Exclude))
	for _, path := range cfg.Exclude {
		exclusions[path] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, skip := exclusions[r.URL.Path]; skip || !idempotentWrite(r.Method) {
			handler.ServeHTTP(w, r)
			return
		}
		bodyBytes, err := readRequestBody(r)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, errBodyTooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			http.Error(w, err.Error(), status)
			return
		}

		for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
			if attempt > 1 {
				timer := time.NewTimer(cfg.BaseBackoff * time.Duration(1<<(attempt-2)))
				select {
				case <-r.Context().Done():
					timer.Stop()
					http.Error(w, r.Context().Err().Error(), http.StatusServiceUnavailable)
					return
				case <-timer.C:
				}
			}

			recorder := newBufferedResponse()
			reqCopy := r.Clone(r.Context())
			reqCopy.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			reqCopy.ContentLength = int64(len(bodyBytes))

			handler.ServeHTTP(recorder, reqCopy)
			if !recorder.retryable() || attempt == cfg.MaxAttempts {
				recorder.writeTo(w)
				return
			}
			logger.Warn("transient failure, retrying request", "method", r.Method, "path", r.URL.Path, "status", recorder.statusCode, "attempt", attempt)
		}
	})
}

func idempotentWrite(method string) bool {
	return method == http.MethodPost || method == http.MethodPut
}

func readRequestBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, retryBodyLimit+1))
	if err != nil {
		return nil, err
	}
	if len(data) > retryBodyLimit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// bufferedResponse holds one attempt's response until it is final.
type bufferedResponse struct {
	header     http.Header
	body       bytes.Buffer
	statusCode int
	wroteHead  bool
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: make(http.Header), statusCode: http.StatusOK}
}

func (r *bufferedResponse) Header() http.Header {
	return r.header
}

func (r *bufferedResponse) WriteHeader(status int) {
	if r.wroteHead {
		return
	}
	r.statusCode = status
	r.wroteHead = true
}

func (r *bufferedResponse) Write(b []byte) (int, error) {
	return r.body.Write(b)
}

func (r *bufferedResponse) writeTo(dst http.ResponseWriter) {
	dstHeader := dst.Header()
	for k, values := range r.header {
		dstHeader[k] = append([]string(nil), values...)
	}
	dst.WriteHeader(r.statusCode)
	if r.body.Len() > 0 {
		_, _ = dst.Write(r.body.Bytes())
	}
}

func (r *bufferedResponse) retryable() bool {
	return r.statusCode >= http.StatusInternalServerError
}
