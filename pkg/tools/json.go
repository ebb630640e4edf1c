package tools

import (
	"encoding/json"
)

func JSONRoundtrip(params, v any) error {
	buf, err := json.Marshal(params)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(buf, v); err != nil {
		return err
	}

	return nil
}

// ConvertSchema marshals a JSON-schema-shaped value and unmarshals it into a
// provider SDK's concrete schema type.
func ConvertSchema(schema, v any) error {
	return JSONRoundtrip(schema, v)
}
