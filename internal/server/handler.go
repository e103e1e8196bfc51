// Package server provides the WebSocket command handling for the voice trigger
// web interface.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/types"
)

// asyncTimeout bounds background command actions such as notification tests.
const asyncTimeout = 60 * time.Second

// validate is the shared validator instance for request validation.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON field names so clients can map errors to their inputs.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// CommandResult is the reply to a command. ID echoes the command ID so a
// client can match replies to requests.
type CommandResult struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"` // string, or *types.ValidationError
}

func resultFor(cmd WSCommand) CommandResult {
	return CommandResult{Type: cmd.Type + "_result", ID: cmd.ID}
}

// DecodeAndValidate decodes the command data into data and validates it. A
// command without data validates the zero value.
// Returns true if successful, false if an error response was already sent.
func DecodeAndValidate[T any](cmd WSCommand, send chan<- any, data *T) bool {
	raw := cmd.Data
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, data); err != nil {
		SendError(send, cmd, fmt.Errorf("invalid JSON: %w", err))
		return false
	}

	if err := validate.Struct(data); err != nil {
		SendValidationErrors(send, cmd, err)
		return false
	}
	return true
}

// HandleCommand decodes, validates, and processes a command, then replies
// with success or the error process returned.
func HandleCommand[T any](h *CommandHandler, cmd WSCommand, send chan<- any, process func(*T) error) {
	var data T
	if !DecodeAndValidate(cmd, send, &data) {
		return
	}

	if err := process(&data); err != nil {
		SendError(send, cmd, err)
		return
	}
	SendSuccess(send, cmd, nil)
}

// HandleActionAsync runs a command action asynchronously with panic recovery.
// The action receives a context bounded by asyncTimeout.
func HandleActionAsync(cmd WSCommand, send chan<- any, action func(ctx context.Context) (any, error)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in async handler", "command", cmd.Type, "panic", r)
				SendError(send, cmd, errors.New("internal error"))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), asyncTimeout)
		defer cancel()

		result, err := action(ctx)
		if err != nil {
			SendError(send, cmd, err)
			return
		}
		SendSuccess(send, cmd, result)
	}()
}

// --- Response helpers ---

// SendSuccess replies that cmd succeeded, with optional data.
func SendSuccess(send chan<- any, cmd WSCommand, data any) {
	res := resultFor(cmd)
	res.Success = true
	res.Data = data
	trySend(send, cmd.Type, res)
}

// SendError replies that cmd failed with err.
func SendError(send chan<- any, cmd WSCommand, err error) {
	res := resultFor(cmd)
	res.Error = err.Error()
	trySend(send, cmd.Type, res)
}

// SendValidationErrors replies with one entry per invalid field.
func SendValidationErrors(send chan<- any, cmd WSCommand, err error) {
	verr := types.NewValidationError()

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, e := range fieldErrs {
			verr.Add(e.Field(), formatValidationMessage(e), e.Value())
		}
	} else {
		verr.Add("", err.Error(), nil)
	}

	res := resultFor(cmd)
	res.Error = verr
	trySend(send, cmd.Type, res)
}

// SendData sends an unsolicited message such as a settings or events page.
func SendData(send chan<- any, data any) {
	trySend(send, "data", data)
}

// trySend queues msg without blocking the caller. Async handlers may finish
// after the connection closed its send channel.
func trySend(send chan<- any, msgType string, msg any) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("dropped response for closed connection", "type", msgType)
		}
	}()
	select {
	case send <- msg:
	default:
		slog.Warn("failed to send response: channel full", "type", msgType)
	}
}

// validationMessages maps validator tags to messages; %s is the tag parameter.
var validationMessages = map[string]string{
	"required": "is required",
	"gt":       "must be greater than %s",
	"gte":      "must be greater than or equal to %s",
	"lte":      "must be less than or equal to %s",
	"max":      "must be at most %s",
	"url":      "must be a valid URL",
	"oneof":    "must be one of: %s",
}

// formatValidationMessage creates a human-readable message from a validator error.
func formatValidationMessage(e validator.FieldError) string {
	msg, ok := validationMessages[e.Tag()]
	if !ok {
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
	if strings.Contains(msg, "%s") {
		return fmt.Sprintf(msg, e.Param())
	}
	return msg
}
