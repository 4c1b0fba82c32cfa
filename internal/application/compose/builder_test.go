package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appcrane/internal/domain/model"
)

const descriptorJSON = `{
  "services": {
    "web": {
      "image": "nginx:1.25",
      "command": "nginx -g 'daemon off;'",
      "environment": ["TZ=UTC", "MODE=prod", "DEBUG"],
      "ports": ["8080:80"],
      "volumes": ["${APP_DATA_DIR}/data:/data"],
      "is_main": true,
      "internal_port": 80
    },
    "db": {
      "image": "postgres:16",
      "environment": ["POSTGRES_PASSWORD=${DB_PASSWORD}"]
    }
  },
  "overrides": {
    "arm64": {
      "web": {
        "image": "arm64v8/nginx:1.25",
        "environment": ["MODE=arm", "EXTRA=1"],
        "volumes": ["/extra:/extra"]
      },
      "cache": {
        "image": "redis:7"
      }
    }
  }
}`

func TestMergeScalarsListsAndEnvironment(t *testing.T) {
	base := Service{
		Image:       "nginx",
		Command:     "run",
		Environment: []string{"A=1", "B=2"},
		Ports:       []string{"80:80"},
		Volumes:     []string{"/a:/a"},
		Restart:     "always",
	}
	override := Service{
		Image:       "nginx-arm",
		Environment: []string{"B=3", "C=4"},
		Ports:       []string{"80:80", "443:443"},
	}

	got := Merge(base, override)

	assert.Equal(t, "nginx-arm", got.Image)
	assert.Equal(t, "run", got.Command)
	assert.Equal(t, "always", got.Restart)
	assert.Equal(t, []string{"A=1", "B=3", "C=4"}, got.Environment)
	assert.Equal(t, []string{"80:80", "443:443"}, got.Ports)
	assert.Equal(t, []string{"/a:/a"}, got.Volumes)
}

func TestMergeServicesAddsOverrideOnlyServices(t *testing.T) {
	d, err := ParseDescriptor([]byte(descriptorJSON))
	require.NoError(t, err)

	amd := MergeServices(d.Services, d.Overrides, "amd64")
	assert.Len(t, amd, 2)
	assert.Equal(t, "nginx:1.25", amd["web"].Image)

	arm := MergeServices(d.Services, d.Overrides, "arm64")
	require.Len(t, arm, 3)
	assert.Equal(t, "arm64v8/nginx:1.25", arm["web"].Image)
	assert.Equal(t, []string{"TZ=UTC", "MODE=arm", "DEBUG", "EXTRA=1"}, arm["web"].Environment)
	assert.Equal(t, []string{"${APP_DATA_DIR}/data:/data", "/extra:/extra"}, arm["web"].Volumes)
	assert.Equal(t, "redis:7", arm["cache"].Image)

	// The base map is not modified.
	assert.Equal(t, "nginx:1.25", d.Services["web"].Image)
}

func TestBuildAttachesNetworkAndLabels(t *testing.T) {
	d, err := ParseDescriptor([]byte(descriptorJSON))
	require.NoError(t, err)

	spec, err := Build(d, Params{
		Urn:          "nginx:official",
		Architecture: "arm64",
		Subnet:       "10.128.12.0/24",
		Form:         model.AppForm{},
	})
	require.NoError(t, err)

	require.Contains(t, spec.Networks, "nginx_official_network")
	net := spec.Networks["nginx_official_network"]
	assert.Equal(t, "bridge", net.Driver)
	assert.Equal(t, "10.128.12.0/24", net.IPAM.Config[0].Subnet)

	require.Len(t, spec.Services, 3)
	for name, svc := range spec.Services {
		assert.Equal(t, []string{"nginx_official_network"}, svc.Networks, name)
		assert.Equal(t, "nginx:official", svc.Labels[DefaultLabelKey], name)
		assert.Equal(t, "unless-stopped", svc.Restart, name)
	}
	assert.NotContains(t, spec.Services["web"].Labels, "traefik.enable")
}

func TestBuildExposure(t *testing.T) {
	d, err := ParseDescriptor([]byte(descriptorJSON))
	require.NoError(t, err)

	spec, err := Build(d, Params{
		Urn:      "nginx:official",
		Subnet:   "10.128.12.0/24",
		LabelKey: "custom.urn",
		Form: model.AppForm{
			model.FormKeyOpenPort:     true,
			model.FormKeyExposed:      true,
			model.FormKeyDomain:       "web.example.com",
			model.FormKeyExposedLocal: true,
		},
	})
	require.NoError(t, err)

	web := spec.Services["web"]
	assert.Contains(t, web.Ports, "${APP_PORT}:80")
	assert.Equal(t, "nginx:official", web.Labels["custom.urn"])
	assert.Equal(t, "true", web.Labels["traefik.enable"])
	assert.Equal(t, "Host(`web.example.com`)", web.Labels["traefik.http.routers.nginx_official.rule"])
	assert.Equal(t, "Host(`nginx.local`)", web.Labels["traefik.http.routers.nginx_official-local.rule"])
	assert.Equal(t, "80", web.Labels["traefik.http.services.nginx_official.loadbalancer.server.port"])

	db := spec.Services["db"]
	assert.NotContains(t, db.Labels, "traefik.enable")
	assert.Empty(t, db.Ports)
}

func TestBuildRejectsServiceWithoutImage(t *testing.T) {
	d, err := ParseDescriptor([]byte(`{"services":{"web":{"command":"run"}}}`))
	require.NoError(t, err)

	_, err = Build(d, Params{Urn: "broken:official", Subnet: "10.128.10.0/24"})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrDescriptor)
	assert.Contains(t, err.Error(), "broken:official")
}

func TestParseDescriptorErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not a document", "{{{"},
		{"no services", `{"services":{}}`},
		{"bad port", `{"services":{"web":{"image":"x","internal_port":70000}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDescriptor([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestParseDescriptorAcceptsYAML(t *testing.T) {
	d, err := ParseDescriptor([]byte("services:\n  web:\n    image: nginx\n    internal_port: 80\n"))
	require.NoError(t, err)
	assert.Equal(t, "nginx", d.Services["web"].Image)
	assert.Equal(t, 80, d.Services["web"].InternalPort)
}

func TestMarshal(t *testing.T) {
	d, err := ParseDescriptor([]byte(descriptorJSON))
	require.NoError(t, err)
	spec, err := Build(d, Params{Urn: "nginx:official", Subnet: "10.128.12.0/24"})
	require.NoError(t, err)

	out, err := Marshal(spec)
	require.NoError(t, err)
	assert.Contains(t, string(out), "nginx_official_network")
	assert.Contains(t, string(out), "10.128.12.0/24")
}
