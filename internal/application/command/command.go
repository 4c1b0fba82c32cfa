// Package command executes app lifecycle commands against docker compose.
package command

import (
	"fmt"

	"appcrane/internal/domain/model"
	"appcrane/pkg/queue"
)

// Kind is the closed set of lifecycle commands.
type Kind string

const (
	KindInstall     Kind = "install"
	KindStart       Kind = "start"
	KindStop        Kind = "stop"
	KindRestart     Kind = "restart"
	KindUninstall   Kind = "uninstall"
	KindReset       Kind = "reset"
	KindBackup      Kind = "backup"
	KindRestore     Kind = "restore"
	KindUpdate      Kind = "update"
	KindGenerateEnv Kind = "generate_env"
)

// Kinds lists every command kind.
var Kinds = []Kind{
	KindInstall, KindStart, KindStop, KindRestart, KindUninstall,
	KindReset, KindBackup, KindRestore, KindUpdate, KindGenerateEnv,
}

// ParseKind validates s as a command kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown command %q", s)
}

// Command is one lifecycle operation for an app.
type Command struct {
	Kind   Kind
	AppUrn model.AppUrn
	Form   model.AppForm
	// Filename selects the archive for KindRestore.
	Filename string
	// PerformBackup makes KindUpdate take a backup first.
	PerformBackup bool
}

// Message is the queue payload of a Command.
type Message struct {
	Command       string         `json:"command" validate:"required,oneof=install start stop restart uninstall reset backup update restore generate_env"`
	AppUrn        string         `json:"appUrn" validate:"required,contains=:"`
	Form          map[string]any `json:"form"`
	Filename      string         `json:"filename,omitempty" validate:"required_if=Command restore"`
	PerformBackup bool           `json:"performBackup,omitempty"`
}

// NewMessage builds the queue payload for cmd.
func NewMessage(cmd Command) Message {
	form := map[string]any(cmd.Form)
	if form == nil {
		form = map[string]any{}
	}
	return Message{
		Command:       string(cmd.Kind),
		AppUrn:        cmd.AppUrn.String(),
		Form:          form,
		Filename:      cmd.Filename,
		PerformBackup: cmd.PerformBackup,
	}
}

// ToCommand decodes a validated message.
func (m Message) ToCommand() (Command, error) {
	kind, err := ParseKind(m.Command)
	if err != nil {
		return Command{}, err
	}
	urn, err := model.ParseAppUrn(m.AppUrn)
	if err != nil {
		return Command{}, err
	}
	return Command{
		Kind:          kind,
		AppUrn:        urn,
		Form:          model.AppForm(m.Form),
		Filename:      m.Filename,
		PerformBackup: m.PerformBackup,
	}, nil
}

// StepError is a failed best-effort step.
type StepError struct {
	Step string
	Err  error
}

func (e StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

// Outcome is the result of a command plus the best-effort steps that failed
// without aborting it.
type Outcome struct {
	queue.Result
	NonFatal []StepError
}

func (o *Outcome) nonFatal(step string, err error) {
	o.NonFatal = append(o.NonFatal, StepError{Step: step, Err: err})
}
