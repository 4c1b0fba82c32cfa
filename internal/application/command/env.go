package command

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"appcrane/internal/domain/model"
	"appcrane/pkg/env"
)

const defaultRandomLength = 32

var validate = validator.New()

// typeTags maps form field types to the validator tag checking them.
var typeTags = map[model.FormFieldType]string{
	model.FieldEmail:  "email",
	model.FieldFQDN:   "fqdn",
	model.FieldIP:     "ip",
	model.FieldFQDNIP: "fqdn|ip",
	model.FieldURL:    "url",
	model.FieldNumber: "number",
}

// descriptor returns the installed app descriptor, falling back to the store.
func (e *Executor) descriptor(ctx context.Context, urn model.AppUrn) (*model.AppDescriptor, error) {
	d, err := e.Marketplace.GetInstalledAppDescriptor(ctx, urn)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}
	return e.Marketplace.GetAppDescriptor(ctx, urn)
}

// generateEnv writes <app-data>/app.env from the form and the descriptor and
// returns the variables written. Random values already present are kept.
func (e *Executor) generateEnv(ctx context.Context, r *run) (map[string]string, error) {
	urn := r.cmd.AppUrn
	form := r.cmd.Form

	d, err := e.descriptor(ctx, urn)
	if err != nil {
		return nil, fmt.Errorf("load descriptor for %s: %w", urn, err)
	}

	path := filepath.Join(e.layout.AppDataDir(urn), envFile)
	existing, err := env.Load(path)
	if err != nil {
		return nil, fmt.Errorf("read env for %s: %w", urn, err)
	}

	vars, err := e.formVars(d, form, existing)
	if err != nil {
		return nil, err
	}
	for k, v := range e.reservedVars(urn, d, form) {
		vars[k] = v
	}

	if err := env.Save(path, vars); err != nil {
		return nil, fmt.Errorf("write env for %s: %w", urn, err)
	}
	return vars, nil
}

func (e *Executor) reservedVars(urn model.AppUrn, d *model.AppDescriptor, form model.AppForm) map[string]string {
	port := d.Port
	if p, ok := form.Int(model.FormKeyPort); ok && p > 0 {
		port = p
	}
	portStr := strconv.Itoa(port)

	domain := form.String(model.FormKeyDomain)
	exposed := form.Bool(model.FormKeyExposed) && domain != ""

	appDomain := e.opts.InternalIP + ":" + portStr
	appHost := e.opts.InternalIP
	protocol := "http"
	if exposed {
		appDomain = domain
		appHost = domain
		protocol = "https"
	}

	return map[string]string{
		"APP_ID":            urn.AppName(),
		"APP_URN":           urn.String(),
		"APP_PORT":          portStr,
		"APP_DOMAIN":        appDomain,
		"APP_HOST":          appHost,
		"APP_EXPOSED":       strconv.FormatBool(exposed),
		"APP_PROTOCOL":      protocol,
		"APP_DATA_DIR":      e.layout.AppDataHostDir(urn),
		"ROOT_FOLDER_HOST":  e.opts.RootFolderHost,
		"NETWORK_INTERFACE": e.opts.NetworkInterface,
		"INTERNAL_IP":       e.opts.InternalIP,
		"TZ":                e.opts.Timezone,
	}
}

func (e *Executor) formVars(d *model.AppDescriptor, form model.AppForm, existing map[string]string) (map[string]string, error) {
	vars := make(map[string]string, len(d.FormFields))
	for _, field := range d.FormFields {
		name := field.EnvVariable
		value := form.String(name)

		if field.Type == model.FieldRandom {
			switch {
			case existing[name] != "":
				value = existing[name]
			case value == "":
				v, err := randomValue(field)
				if err != nil {
					return nil, fmt.Errorf("generate %s: %w", name, err)
				}
				value = v
			}
			vars[name] = value
			continue
		}

		if value == "" && field.Default != nil {
			value = fmt.Sprint(field.Default)
		}
		if value == "" {
			if field.Required {
				return nil, model.NewValidationError("APP_ERROR_MISSING_REQUIRED_FIELD", fmt.Sprintf("variable %s is required", name))
			}
			continue
		}
		if err := checkField(field, value); err != nil {
			return nil, err
		}
		vars[name] = value
	}
	return vars, nil
}

func checkField(field model.FormField, value string) error {
	label := field.Label
	if label == "" {
		label = field.EnvVariable
	}
	invalid := func(reason string) error {
		return model.NewValidationError("APP_ERROR_INVALID_FIELD", fmt.Sprintf("%s %s", label, reason))
	}

	if tag, ok := typeTags[field.Type]; ok {
		if err := validate.Var(value, tag); err != nil {
			return invalid(fmt.Sprintf("must be a valid %s", field.Type))
		}
	}

	if field.Regex != "" {
		re, err := regexp.Compile(field.Regex)
		if err != nil {
			return fmt.Errorf("invalid regex for %s: %w", field.EnvVariable, err)
		}
		if !re.MatchString(value) {
			return invalid("does not match the expected format")
		}
	}

	if field.Type == model.FieldNumber {
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return invalid("must be a number")
		}
		if field.Min != nil && n < float64(*field.Min) {
			return invalid(fmt.Sprintf("must be at least %d", *field.Min))
		}
		if field.Max != nil && n > float64(*field.Max) {
			return invalid(fmt.Sprintf("must be at most %d", *field.Max))
		}
		return nil
	}

	length := utf8.RuneCountInString(value)
	if field.Min != nil && length < *field.Min {
		return invalid(fmt.Sprintf("must be at least %d characters", *field.Min))
	}
	if field.Max != nil && length > *field.Max {
		return invalid(fmt.Sprintf("must be at most %d characters", *field.Max))
	}
	return nil
}

func randomValue(field model.FormField) (string, error) {
	length := defaultRandomLength
	if field.Min != nil && *field.Min > 0 {
		length = *field.Min
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	if field.Encoding == "base64" {
		return base64.RawURLEncoding.EncodeToString(buf)[:length], nil
	}
	return hex.EncodeToString(buf)[:length], nil
}
