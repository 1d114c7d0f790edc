package http

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// querySchema — форма тела POST /query.
const querySchema = `{
	"type": "object",
	"properties": {
		"query":  {"type": "string"},
		"params": {"type": ["object", "null"]}
	},
	"required": ["query"]
}`

var queryRequestSchema = gojsonschema.NewStringLoader(querySchema)

// compileQuerySchema разбирает схему один раз при создании Handler.
func compileQuerySchema() (*gojsonschema.Schema, error) {
	s, err := gojsonschema.NewSchema(queryRequestSchema)
	if err != nil {
		return nil, fmt.Errorf("transport: compile query schema: %w", err)
	}
	return s, nil
}

// validateBody возвращает описание нарушений схемы или "" для корректного тела.
func validateBody(schema *gojsonschema.Schema, body []byte) (string, error) {
	res, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return "", err
	}
	if res.Valid() {
		return "", nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return strings.Join(msgs, "; "), nil
}
