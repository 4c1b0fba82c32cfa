// Package compose turns an app's compose descriptor into the docker compose
// document that is written next to the installed app.
package compose

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"appcrane/pkg/yaml"
)

// DescriptorFile is the name of the compose descriptor inside an app directory.
const DescriptorFile = "docker-compose.json"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Service is one container definition in an app descriptor.
type Service struct {
	Image        string            `json:"image,omitempty"`
	Command      any               `json:"command,omitempty"`
	Entrypoint   any               `json:"entrypoint,omitempty"`
	Environment  []string          `json:"environment,omitempty"`
	Ports        []string          `json:"ports,omitempty"`
	Volumes      []string          `json:"volumes,omitempty"`
	Labels       map[string]string `json:"labels,omitempty"`
	DependsOn    []string          `json:"depends_on,omitempty"`
	Restart      string            `json:"restart,omitempty"`
	IsMain       bool              `json:"is_main,omitempty"`
	InternalPort int               `json:"internal_port,omitempty" validate:"gte=0,lte=65535"`
	Healthcheck  map[string]any    `json:"healthcheck,omitempty"`
}

// Descriptor is the parsed docker-compose.json of an app: base services plus
// per-architecture overrides.
type Descriptor struct {
	Services  map[string]Service            `json:"services" validate:"required,min=1,dive"`
	Overrides map[string]map[string]Service `json:"overrides,omitempty"`
}

// ParseDescriptor decodes a JSON or YAML descriptor and checks its shape.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := yaml.Decode(data, &d); err != nil {
		return nil, fmt.Errorf("parse compose descriptor: %w", err)
	}
	if err := validate.Struct(d); err != nil {
		return nil, fmt.Errorf("invalid compose descriptor: %w", err)
	}
	for name := range d.Services {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid compose descriptor: empty service name")
		}
	}
	return &d, nil
}
