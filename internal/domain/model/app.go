package model

import (
	"fmt"
	"time"
)

// AppStatus is the lifecycle state of an app.
type AppStatus string

const (
	AppStatusMissing      AppStatus = "missing"
	AppStatusInstalling   AppStatus = "installing"
	AppStatusRunning      AppStatus = "running"
	AppStatusStopped      AppStatus = "stopped"
	AppStatusStarting     AppStatus = "starting"
	AppStatusStopping     AppStatus = "stopping"
	AppStatusRestarting   AppStatus = "restarting"
	AppStatusUpdating     AppStatus = "updating"
	AppStatusResetting    AppStatus = "resetting"
	AppStatusBackingUp    AppStatus = "backing_up"
	AppStatusRestoring    AppStatus = "restoring"
	AppStatusUninstalling AppStatus = "uninstalling"
)

// IsTransient reports whether the status is an optimistic marker written
// before a command runs. Apps only rest in missing, running or stopped.
func (s AppStatus) IsTransient() bool {
	switch s {
	case AppStatusMissing, AppStatusRunning, AppStatusStopped:
		return false
	default:
		return true
	}
}

// Reserved form keys the orchestrator interprets itself.
const (
	FormKeyDomain             = "domain"
	FormKeyExposed            = "exposed"
	FormKeyExposedLocal       = "exposedLocal"
	FormKeyOpenPort           = "openPort"
	FormKeyPort               = "port"
	FormKeyVisibleOnGuestDash = "isVisibleOnGuestDashboard"
)

// AppForm is the user supplied key/value configuration of an app.
type AppForm map[string]any

// String returns the value of key as a string, or "" when absent.
func (f AppForm) String(key string) string {
	switch v := f[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Bool returns the value of key interpreted as a boolean.
func (f AppForm) Bool(key string) bool {
	switch v := f[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1" || v == "on"
	case float64:
		return v != 0
	case int:
		return v != 0
	default:
		return false
	}
}

// Int returns the value of key as an int and whether it was present and numeric.
func (f AppForm) Int(key string) (int, bool) {
	switch v := f[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// Clone returns a shallow copy of the form.
func (f AppForm) Clone() AppForm {
	out := make(AppForm, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// App is one installed (or installing) app.
type App struct {
	Urn                       AppUrn
	Status                    AppStatus
	Config                    AppForm
	Version                   int
	Subnet                    *string
	Domain                    string
	Exposed                   bool
	ExposedLocal              bool
	OpenPort                  bool
	IsVisibleOnGuestDashboard bool
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// AppPatch carries the fields to change on an App. Nil fields are left untouched.
type AppPatch struct {
	Status                    *AppStatus
	Config                    AppForm
	Version                   *int
	Subnet                    *string
	Domain                    *string
	Exposed                   *bool
	ExposedLocal              *bool
	OpenPort                  *bool
	IsVisibleOnGuestDashboard *bool
}

// StatusPatch is a shorthand for a patch that only changes the status.
func StatusPatch(status AppStatus) AppPatch {
	return AppPatch{Status: &status}
}

// Apply returns a copy of app with the patch applied.
func (p AppPatch) Apply(app App) App {
	if p.Status != nil {
		app.Status = *p.Status
	}
	if p.Config != nil {
		app.Config = p.Config.Clone()
	}
	if p.Version != nil {
		app.Version = *p.Version
	}
	if p.Subnet != nil {
		s := *p.Subnet
		app.Subnet = &s
	}
	if p.Domain != nil {
		app.Domain = *p.Domain
	}
	if p.Exposed != nil {
		app.Exposed = *p.Exposed
	}
	if p.ExposedLocal != nil {
		app.ExposedLocal = *p.ExposedLocal
	}
	if p.OpenPort != nil {
		app.OpenPort = *p.OpenPort
	}
	if p.IsVisibleOnGuestDashboard != nil {
		app.IsVisibleOnGuestDashboard = *p.IsVisibleOnGuestDashboard
	}
	return app
}

// ExposureFromForm extracts the networking flags stored alongside the config.
func ExposureFromForm(form AppForm) AppPatch {
	domain := form.String(FormKeyDomain)
	exposed := form.Bool(FormKeyExposed)
	exposedLocal := form.Bool(FormKeyExposedLocal)
	openPort := form.Bool(FormKeyOpenPort)
	visible := form.Bool(FormKeyVisibleOnGuestDash)
	return AppPatch{
		Config:                    form,
		Domain:                    &domain,
		Exposed:                   &exposed,
		ExposedLocal:              &exposedLocal,
		OpenPort:                  &openPort,
		IsVisibleOnGuestDashboard: &visible,
	}
}
