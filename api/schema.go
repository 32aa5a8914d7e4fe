package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Request body schemas. Shape only: enum values and required fields are
// checked here, date and domain rules by the workflow layer.

const (
	datePattern   = `^\\d{4}-\\d{2}-\\d{2}$` // JSON-escaped
	schemaBaseURL = "https://qperform.local/schemas/"
)

var requestSchemas = map[string]string{
	"agent.json": `{
		"type": "object",
		"required": ["id"],
		"properties": {
			"id":        {"type": "string", "minLength": 1},
			"name":      {"type": "string"},
			"leader_id": {"type": "string"},
			"client":    {"type": "string"}
		},
		"additionalProperties": false
	}`,
	"warning.json": `{
		"type": "object",
		"required": ["kind", "metric", "issued_by"],
		"properties": {
			"kind":       {"enum": ["Coaching", "Verbal", "Written"]},
			"metric":     {"enum": ["Production", "QA"]},
			"subtype":    {"type": "string"},
			"notes":      {"type": "string"},
			"issued_by":  {"type": "string", "minLength": 1},
			"issued_at":  {"type": "string", "pattern": "` + datePattern + `"},
			"week_start": {"type": "string", "pattern": "` + datePattern + `"},
			"week_end":   {"type": "string", "pattern": "` + datePattern + `"},
			"client":     {"type": "string"},
			"category":   {"type": "string"}
		},
		"additionalProperties": false
	}`,
	"evaluate.json": `{
		"type": "object",
		"required": ["metric", "week_start", "week_end"],
		"properties": {
			"metric":     {"enum": ["Production", "QA"]},
			"week_start": {"type": "string", "pattern": "` + datePattern + `"},
			"week_end":   {"type": "string", "pattern": "` + datePattern + `"},
			"at":         {"type": "string", "pattern": "` + datePattern + `"}
		},
		"additionalProperties": false
	}`,
	"actioned.json": `{
		"type": "object",
		"required": ["actioned_by"],
		"properties": {
			"actioned_by": {"type": "string", "minLength": 1},
			"notes":       {"type": "string"}
		},
		"additionalProperties": false
	}`,
	"action.json": `{
		"type": "object",
		"required": ["author", "note"],
		"properties": {
			"author":    {"type": "string", "minLength": 1},
			"logged_at": {"type": "string", "pattern": "` + datePattern + `"},
			"note":      {"type": "string", "minLength": 1}
		},
		"additionalProperties": false
	}`,
	"performance.json": `{
		"type": "object",
		"required": ["metric", "week_start", "week_end", "score"],
		"properties": {
			"metric":     {"enum": ["Production", "QA"]},
			"week_start": {"type": "string", "pattern": "` + datePattern + `"},
			"week_end":   {"type": "string", "pattern": "` + datePattern + `"},
			"score":      {"type": "string", "pattern": "^-?\\d+(\\.\\d+)?$"},
			"target":     {"type": "string", "pattern": "^-?\\d+(\\.\\d+)?$"},
			"flag":       {"enum": ["OK", "Low", "Critical"]}
		},
		"additionalProperties": false
	}`,
	"leader_evaluate.json": `{
		"type": "object",
		"required": ["agent_id", "metric"],
		"properties": {
			"agent_id":     {"type": "string", "minLength": 1},
			"metric":       {"enum": ["Production", "QA"]},
			"window_start": {"type": "string", "pattern": "` + datePattern + `"},
			"window_end":   {"type": "string", "pattern": "` + datePattern + `"},
			"at":           {"type": "string", "pattern": "` + datePattern + `"},
			"issued_by":    {"type": "string"},
			"weeks": {
				"type": "array",
				"uniqueItems": true,
				"items": {
					"type": "object",
					"required": ["week_start", "week_end", "underperforming"],
					"properties": {
						"week_start":      {"type": "string", "pattern": "` + datePattern + `"},
						"week_end":        {"type": "string", "pattern": "` + datePattern + `"},
						"underperforming": {"type": "boolean"}
					},
					"additionalProperties": false
				}
			}
		},
		"additionalProperties": false
	}`,
	"scenario.json": `{
		"type": "object",
		"required": ["scenario_id"],
		"properties": {
			"scenario_id": {"type": "string", "minLength": 1}
		}
	}`,
}

// compileSchemas compiles every request schema once at startup.
func compileSchemas() (map[string]*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	for name, src := range requestSchemas {
		if err := compiler.AddResource(schemaBaseURL+name, strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", name, err)
		}
	}

	compiled := make(map[string]*jsonschema.Schema, len(requestSchemas))
	for name := range requestSchemas {
		schema, err := compiler.Compile(schemaBaseURL + name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		compiled[name] = schema
	}
	return compiled, nil
}

const maxBodyBytes = 1 << 20

// decodeBody validates the request body against the named schema, then
// decodes it into dst.
func (h *Handler) decodeBody(r *http.Request, schemaName string, dst any) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	schema, ok := h.schemas[schemaName]
	if !ok {
		return fmt.Errorf("no schema %q", schemaName)
	}
	if err := schema.Validate(payload); err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
