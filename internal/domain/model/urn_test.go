package model

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var composeProjectName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

func TestProjectNamePlainUrn(t *testing.T) {
	assert.Equal(t, "nginx_official", AppUrn("nginx:official").ProjectName())
	assert.Equal(t, "my-app_store-2", AppUrn("my-app:store-2").ProjectName())
}

func TestProjectNameDistinctUrns(t *testing.T) {
	pairs := [][2]AppUrn{
		{"foo_bar:store", "foo:bar_store"},
		{"Nextcloud:store", "nextcloud:store"},
		{"a.b:s", "a-b:s"},
		{"a.b:s", "a_b:s"},
		{"foo:bar", "foo_bar:x"},
	}
	for _, p := range pairs {
		a, b := p[0].ProjectName(), p[1].ProjectName()
		assert.NotEqual(t, a, b, "%s and %s", p[0], p[1])
	}
}

func TestProjectNameIsComposeSafe(t *testing.T) {
	for _, urn := range []AppUrn{"nginx:official", "Nextcloud:Store", "a.b:s.t", "foo_bar:store"} {
		name := urn.ProjectName()
		assert.Regexp(t, composeProjectName, name, string(urn))
		assert.Equal(t, name, urn.ProjectName(), "stable for %s", urn)
	}
	assert.True(t, strings.Contains(AppUrn("a.b:s").ProjectName(), "__"))
}
