package model

import (
	"encoding/json"
	"fmt"
)

// FormFieldType enumerates the input kinds an app descriptor can request.
type FormFieldType string

const (
	FieldText     FormFieldType = "text"
	FieldPassword FormFieldType = "password"
	FieldEmail    FormFieldType = "email"
	FieldNumber   FormFieldType = "number"
	FieldFQDN     FormFieldType = "fqdn"
	FieldIP       FormFieldType = "ip"
	FieldFQDNIP   FormFieldType = "fqdnip"
	FieldURL      FormFieldType = "url"
	FieldRandom   FormFieldType = "random"
	FieldBoolean  FormFieldType = "boolean"
)

// FormField describes one input of the install form and the env variable it maps to.
type FormField struct {
	Type        FormFieldType `json:"type" validate:"required"`
	Label       string        `json:"label"`
	EnvVariable string        `json:"env_variable" validate:"required"`
	Required    bool          `json:"required,omitempty"`
	Default     any           `json:"default,omitempty"`
	Min         *int          `json:"min,omitempty"`
	Max         *int          `json:"max,omitempty"`
	Regex       string        `json:"regex,omitempty"`
	// Encoding applies to random fields: "hex" (default) or "base64".
	Encoding string `json:"encoding,omitempty"`
}

// AppDescriptor is the marketplace metadata of an app (config.json).
type AppDescriptor struct {
	ID                     string      `json:"id" validate:"required"`
	Name                   string      `json:"name"`
	Port                   int         `json:"port" validate:"gte=0,lte=65535"`
	Version                int         `json:"tipi_version" validate:"gte=0"`
	AppVersion             string      `json:"version,omitempty"`
	FormFields             []FormField `json:"form_fields" validate:"dive"`
	SupportedArchitectures []string    `json:"supported_architectures,omitempty"`
	MinOrchestratorVersion string      `json:"min_tipi_version,omitempty"`
	Exposable              bool        `json:"exposable"`
	ForceExpose            bool        `json:"force_expose,omitempty"`
	ForcePull              bool        `json:"force_pull,omitempty"`
	Https                  bool        `json:"https,omitempty"`
	NoGui                  bool        `json:"no_gui,omitempty"`
}

// ParseAppDescriptor parses the app descriptor from JSON bytes.
func ParseAppDescriptor(data []byte) (*AppDescriptor, error) {
	var d AppDescriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse app descriptor: %w", err)
	}
	return &d, nil
}

// SupportsArchitecture reports whether arch is allowed. An empty list means any.
func (d *AppDescriptor) SupportsArchitecture(arch string) bool {
	if len(d.SupportedArchitectures) == 0 {
		return true
	}
	for _, a := range d.SupportedArchitectures {
		if a == arch {
			return true
		}
	}
	return false
}
