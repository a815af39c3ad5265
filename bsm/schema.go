package bsm

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// minimalSchema captures only the fields this core actually depends on
// (coreData.id, coreData.position, coreData.speed_mps). Everything else in a
// BSM document passes through untouched and unvalidated, matching the
// original's tolerance for extra or vendor-specific fields.
const minimalSchema = `{
  "type": "object",
  "properties": {
    "coreData": {
      "type": "object",
      "properties": {
        "id": {"type": "string"},
        "speed_mps": {"type": "number"},
        "position": {
          "type": "object",
          "properties": {
            "latitude": {"type": "number"},
            "longitude": {"type": "number"}
          },
          "required": ["latitude", "longitude"]
        }
      },
      "required": ["id", "position"]
    }
  },
  "required": ["coreData"]
}`

var schemaLoader = gojsonschema.NewStringLoader(minimalSchema)

// ValidateSchema checks raw against the minimal BSM shape this core requires
// before any field is trusted. It is intentionally permissive about anything
// outside coreData: partII, security headers, and vendor extensions are
// passed through without validation.
func ValidateSchema(raw map[string]any) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(raw))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("bsm document failed schema validation: %v", msgs)
	}
	return nil
}
