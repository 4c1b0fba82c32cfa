package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

var urnPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*:[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// AppUrn identifies an app within a marketplace source: <appName>:<appStoreId>.
type AppUrn string

// NewAppUrn builds an urn from its parts.
func NewAppUrn(appName, storeID string) AppUrn {
	return AppUrn(appName + ":" + storeID)
}

// ParseAppUrn validates s and returns it as an AppUrn.
func ParseAppUrn(s string) (AppUrn, error) {
	if !urnPattern.MatchString(s) {
		return "", NewValidationError("APP_ERROR_INVALID_URN", fmt.Sprintf("invalid app urn %q, expected <appName>:<appStoreId>", s))
	}
	return AppUrn(s), nil
}

// IsValid reports whether the urn has the <appName>:<appStoreId> shape.
func (u AppUrn) IsValid() bool {
	return urnPattern.MatchString(string(u))
}

// AppName returns the part before the colon.
func (u AppUrn) AppName() string {
	name, _, _ := strings.Cut(string(u), ":")
	return name
}

// StoreID returns the part after the colon.
func (u AppUrn) StoreID() string {
	_, store, _ := strings.Cut(string(u), ":")
	return store
}

// ProjectName is the compose project name for the app. Compose only accepts
// lowercase alphanumerics, dashes and underscores, so urns using anything else
// get a hash of the raw urn appended after a double underscore. Plain urns
// map to <appName>_<appStoreId> and never contain "__".
func (u AppUrn) ProjectName() string {
	name, store := u.AppName(), u.StoreID()
	if isProjectSafe(name) && isProjectSafe(store) {
		return name + "_" + store
	}

	raw := strings.ToLower(name + "_" + store)
	sanitized := strings.Map(func(r rune) rune {
		if isProjectRune(r) || r == '_' {
			return r
		}
		return '-'
	}, raw)
	sum := sha256.Sum256([]byte(u))
	return sanitized + "__" + hex.EncodeToString(sum[:projectHashBytes])
}

const projectHashBytes = 6

func isProjectRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-'
}

func isProjectSafe(part string) bool {
	if part == "" {
		return false
	}
	for _, r := range part {
		if !isProjectRune(r) {
			return false
		}
	}
	return true
}

func (u AppUrn) String() string {
	return string(u)
}
