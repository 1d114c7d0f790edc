package middleware

import "net/http"

// Compose склеивает middleware; первый в списке оказывается внешним.
func Compose(mws ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// statusWriter позволяет перехватить статус ответа.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func wrapWriter(w http.ResponseWriter) *statusWriter {
	return &statusWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *statusWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }
