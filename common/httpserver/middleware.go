package httpserver

import (
	"net/http"
	"runtime/debug"

	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/YaganovValera/dataset-api/common/logger"
)

// Middleware — стандартная обёртка над http.Handler.
type Middleware func(http.Handler) http.Handler

// RecoverMiddleware перехватывает паники и возвращает 500.
func RecoverMiddleware(log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rcv := recover(); rcv != nil {
					log.WithContext(r.Context()).Error("panic recovered",
						zap.Any("panic", rcv),
						zap.ByteString("stack", debug.Stack()),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"detail":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware возвращает permissive CORS.
func CORSMiddleware() Middleware {
	return cors.AllowAll().Handler
}
