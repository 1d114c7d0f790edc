// services/dataset-api/internal/transport/http/response.go
package http

import (
	"bytes"
	"encoding/json"
	"net/http"
)

type detailBody struct {
	Detail string `json:"detail"`
}

// writeJSON кодирует v целиком до отправки статуса: при ошибке кодирования
// клиент получает 500, а не 200 с обрезанным телом.
func writeJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		buf.Reset()
		code = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(detailBody{Detail: "Query execution failed: encode response: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}

// writeDetail пишет ошибку в виде {"detail": msg}.
func writeDetail(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, detailBody{Detail: msg})
}
