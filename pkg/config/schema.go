package config

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Schema returns the JSON schema of the config file, for editor validation
// and docs. Duration fields carry their own schema via common.Duration.
func Schema() ([]byte, error) {
	r := jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: false,
	}

	schema := r.Reflect(&Config{})
	schema.Title = "marketsync configuration"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config schema: %w", err)
	}

	return data, nil
}
