package compose

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"appcrane/internal/domain/model"
	"appcrane/pkg/yaml"
)

// DefaultLabelKey is the container label carrying the app urn.
const DefaultLabelKey = "appcrane.urn"

const defaultRestart = "unless-stopped"

// ComposeService is a service in the generated compose document.
type ComposeService struct {
	Image       string            `json:"image" validate:"required"`
	Command     any               `json:"command,omitempty"`
	Entrypoint  any               `json:"entrypoint,omitempty"`
	Environment []string          `json:"environment,omitempty"`
	Ports       []string          `json:"ports,omitempty"`
	Volumes     []string          `json:"volumes,omitempty"`
	Labels      map[string]string `json:"labels" validate:"required"`
	DependsOn   []string          `json:"depends_on,omitempty"`
	Restart     string            `json:"restart"`
	Networks    []string          `json:"networks" validate:"required,min=1"`
	Healthcheck map[string]any    `json:"healthcheck,omitempty"`
}

type IPAMConfig struct {
	Subnet string `json:"subnet"`
}

type IPAM struct {
	Config []IPAMConfig `json:"config"`
}

type Network struct {
	Name   string `json:"name"`
	Driver string `json:"driver"`
	IPAM   IPAM   `json:"ipam"`
}

// Spec is the final compose document.
type Spec struct {
	Services map[string]ComposeService `json:"services"`
	Networks map[string]Network        `json:"networks"`
}

// Params carries everything the builder needs besides the descriptor.
type Params struct {
	Urn          model.AppUrn
	Architecture string
	Subnet       string
	LabelKey     string
	Form         model.AppForm
}

// NetworkName is the name of the app's dedicated network.
func NetworkName(urn model.AppUrn) string {
	return urn.ProjectName() + "_network"
}

// Build merges the descriptor for the target architecture and attaches every
// service to the app network. Any problem is a descriptor error for the app.
func Build(d *Descriptor, p Params) (*Spec, error) {
	if d == nil || len(d.Services) == 0 {
		return nil, model.NewDescriptorError(p.Urn, errors.New("no services defined"))
	}
	if p.Subnet == "" {
		return nil, fmt.Errorf("no subnet allocated for %s", p.Urn)
	}
	labelKey := p.LabelKey
	if labelKey == "" {
		labelKey = DefaultLabelKey
	}

	merged := MergeServices(d.Services, d.Overrides, p.Architecture)
	mainName := mainService(merged)
	network := NetworkName(p.Urn)

	spec := &Spec{
		Services: make(map[string]ComposeService, len(merged)),
		Networks: map[string]Network{
			network: {
				Name:   network,
				Driver: "bridge",
				IPAM:   IPAM{Config: []IPAMConfig{{Subnet: p.Subnet}}},
			},
		},
	}

	for name, svc := range merged {
		out := ComposeService{
			Image:       svc.Image,
			Command:     svc.Command,
			Entrypoint:  svc.Entrypoint,
			Environment: svc.Environment,
			Ports:       svc.Ports,
			Volumes:     svc.Volumes,
			DependsOn:   svc.DependsOn,
			Restart:     svc.Restart,
			Networks:    []string{network},
			Healthcheck: svc.Healthcheck,
			Labels:      make(map[string]string, len(svc.Labels)+1),
		}
		if out.Restart == "" {
			out.Restart = defaultRestart
		}
		for k, v := range svc.Labels {
			out.Labels[k] = v
		}
		out.Labels[labelKey] = p.Urn.String()

		if name == mainName {
			applyExposure(&out, svc, p)
		}

		if err := validate.Struct(out); err != nil {
			return nil, model.NewDescriptorError(p.Urn, fmt.Errorf("service %s: %w", name, err))
		}
		spec.Services[name] = out
	}

	return spec, nil
}

// mainService returns the service flagged is_main, or the only service, or
// the first one by name.
func mainService(services map[string]Service) string {
	names := make([]string, 0, len(services))
	for name, svc := range services {
		if svc.IsMain {
			return name
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names[0]
}

func applyExposure(out *ComposeService, svc Service, p Params) {
	if svc.InternalPort == 0 {
		return
	}
	port := strconv.Itoa(svc.InternalPort)

	if p.Form.Bool(model.FormKeyOpenPort) {
		out.Ports = appendUnique(out.Ports, []string{"${APP_PORT}:" + port})
	}

	project := p.Urn.ProjectName()
	domain := p.Form.String(model.FormKeyDomain)
	exposed := p.Form.Bool(model.FormKeyExposed) && domain != ""
	exposedLocal := p.Form.Bool(model.FormKeyExposedLocal)
	if !exposed && !exposedLocal {
		return
	}

	out.Labels["traefik.enable"] = "true"
	out.Labels["traefik.http.services."+project+".loadbalancer.server.port"] = port
	if exposed {
		router := "traefik.http.routers." + project
		out.Labels[router+".rule"] = "Host(`" + domain + "`)"
		out.Labels[router+".entrypoints"] = "websecure"
		out.Labels[router+".tls.certresolver"] = "myresolver"
		out.Labels[router+".service"] = project
	}
	if exposedLocal {
		router := "traefik.http.routers." + project + "-local"
		out.Labels[router+".rule"] = "Host(`" + p.Urn.AppName() + ".local`)"
		out.Labels[router+".entrypoints"] = "web"
		out.Labels[router+".service"] = project
	}
}

// Marshal renders the spec as YAML.
func Marshal(spec *Spec) ([]byte, error) {
	return yaml.Encode(spec)
}
