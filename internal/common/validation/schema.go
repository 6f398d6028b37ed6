// Package validation checks payloads from third-party CDS services against
// the wire shapes this client depends on. Anything that fails here is treated
// the same as a parse failure: the payload is dropped and the caller degrades.
package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const discoverySchema = `{
	"type": "object",
	"required": ["services"],
	"properties": {
		"services": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "hook"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"hook": {"type": "string", "minLength": 1},
					"title": {"type": "string"},
					"description": {"type": "string"},
					"prefetch": {
						"type": "object",
						"additionalProperties": {"type": "string"}
					}
				}
			}
		}
	}
}`

const hookResponseSchema = `{
	"type": "object",
	"required": ["cards"],
	"properties": {
		"cards": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["summary", "indicator", "source"],
				"properties": {
					"uuid": {"type": "string"},
					"summary": {"type": "string", "minLength": 1},
					"detail": {"type": "string"},
					"indicator": {"enum": ["info", "warning", "critical"]},
					"source": {
						"type": "object",
						"required": ["label"],
						"properties": {
							"label": {"type": "string", "minLength": 1},
							"url": {"type": "string"},
							"icon": {"type": "string"}
						}
					},
					"suggestions": {"type": "array"},
					"links": {"type": "array"}
				}
			}
		},
		"systemActions": {"type": "array"}
	}
}`

var (
	discoveryLoader    = gojsonschema.NewStringLoader(discoverySchema)
	hookResponseLoader = gojsonschema.NewStringLoader(hookResponseSchema)
)

// ValidateDiscoveryResponse checks a raw discovery document body.
func ValidateDiscoveryResponse(data []byte) error {
	return validate(discoveryLoader, data)
}

// ValidateHookResponse checks a raw per-service hook response body.
func ValidateHookResponse(data []byte) error {
	return validate(hookResponseLoader, data)
}

func validate(schema gojsonschema.JSONLoader, data []byte) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("schema validation: %s", strings.Join(msgs, "; "))
}
