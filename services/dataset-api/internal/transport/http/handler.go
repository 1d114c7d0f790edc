// services/dataset-api/internal/transport/http/handler.go
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/engine"
	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/usecase"
)

const rootMessage = "DuckDB Query API is running"

// UseCase — операции, которые обслуживает HTTP-слой.
type UseCase interface {
	Execute(ctx context.Context, req usecase.QueryRequest) (*engine.Result, error)
	Columns(ctx context.Context) ([]string, error)
}

// Handler — обработчики публичных маршрутов.
type Handler struct {
	uc           UseCase
	schema       *gojsonschema.Schema
	maxBodyBytes int64
	now          func() time.Time
}

// NewHandler создаёт Handler; maxBodyBytes <= 0 снимает ограничение тела.
func NewHandler(uc UseCase, maxBodyBytes int64) (*Handler, error) {
	schema, err := compileQuerySchema()
	if err != nil {
		return nil, err
	}
	return &Handler{uc: uc, schema: schema, maxBodyBytes: maxBodyBytes, now: time.Now}, nil
}

type queryRequest struct {
	Query  string         `json:"query"`
	Params map[string]any `json:"params"`
}

type queryResponse struct {
	Result  []engine.Row `json:"result"`
	Columns []string     `json:"columns"`
}

// Root — GET /.
func (h *Handler) Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": rootMessage})
}

// Health — GET /health. Движок не трогает.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": h.now().Format(time.RFC3339Nano),
	})
}

// Columns — GET /columns.
func (h *Handler) Columns(w http.ResponseWriter, r *http.Request) {
	cols, err := h.uc.Columns(r.Context())
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"columns": cols})
}

// Query — POST /query.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	body := io.Reader(r.Body)
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeDetail(w, http.StatusBadRequest, "cannot read request body")
		return
	}

	violations, err := validateBody(h.schema, raw)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid JSON body: "+err.Error())
		return
	}
	if violations != "" {
		writeDetail(w, http.StatusUnprocessableEntity, violations)
		return
	}

	var req queryRequest
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid JSON body: "+err.Error())
		return
	}

	res, err := h.uc.Execute(r.Context(), usecase.QueryRequest{Query: req.Query, Params: req.Params})
	if err != nil {
		code := http.StatusBadRequest
		var qe *usecase.QueryError
		if errors.As(err, &qe) && qe.Kind == usecase.KindInternal {
			code = http.StatusInternalServerError
		}
		writeDetail(w, code, "Query execution failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{Result: res.Rows, Columns: res.Columns})
}
