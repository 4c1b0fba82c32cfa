package yaml

import (
	"encoding/json"
	"fmt"

	"github.com/goccy/go-yaml"
)

// JSONToYAML converts JSON bytes to YAML bytes.
func JSONToYAML(jsonBytes []byte) ([]byte, error) {
	// Parse JSON into a generic value
	var jsonObj interface{}
	if err := json.Unmarshal(jsonBytes, &jsonObj); err != nil {
		return nil, fmt.Errorf("error parsing JSON: %w", err)
	}

	// Convert the parsed value to YAML
	yamlBytes, err := yaml.Marshal(jsonObj)
	if err != nil {
		return nil, fmt.Errorf("error converting to YAML: %w", err)
	}

	return yamlBytes, nil
}

// YAMLToJSON converts YAML bytes to JSON bytes.
func YAMLToJSON(yamlBytes []byte) ([]byte, error) {
	// Parse YAML into a generic value
	var yamlObj interface{}
	if err := yaml.Unmarshal(yamlBytes, &yamlObj); err != nil {
		return nil, fmt.Errorf("error parsing YAML: %w", err)
	}

	// Convert the parsed value to JSON
	jsonBytes, err := json.Marshal(yamlObj)
	if err != nil {
		return nil, fmt.Errorf("error converting to JSON: %w", err)
	}

	return jsonBytes, nil
}

// Decode parses a YAML or JSON document into obj. JSON is accepted because it
// is a subset of YAML; app descriptors ship in either form. Decoding goes
// through JSON so that `json` struct tags drive field mapping for both.
func Decode(data []byte, obj interface{}) error {
	jsonBytes, err := YAMLToJSON(data)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(jsonBytes, obj); err != nil {
		return fmt.Errorf("error decoding document: %w", err)
	}
	return nil
}

// Encode renders obj as YAML, honouring its `json` struct tags.
func Encode(obj interface{}) ([]byte, error) {
	jsonBytes, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("error marshaling to JSON: %w", err)
	}
	return JSONToYAML(jsonBytes)
}
