package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrTypeMismatch  = errors.New("type mismatch")
	ErrLocked        = errors.New("locked")
	ErrDuplicateID   = errors.New("duplicate id")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrExternalTool  = errors.New("external tool error")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrPersistence   = errors.New("persistence error")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsStructural reports whether err describes a tree or request shape problem
// the caller must see, as opposed to a collaborator or persistence failure.
func IsStructural(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrTypeMismatch),
		errors.Is(err, ErrLocked),
		errors.Is(err, ErrDuplicateID),
		errors.Is(err, ErrValidation):
		return true
	default:
		return false
	}
}

// Hint returns a short operator-facing remediation string for err.
func Hint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "collaborator did not finish in time; raise the timeout or attempt count"
	case errors.Is(err, ErrExternalTool):
		return "check that ffmpeg/ffprobe or the configured backend is installed and reachable"
	case errors.Is(err, ErrConfiguration):
		return "review the config file"
	case errors.Is(err, ErrPersistence):
		return "check the data directory is writable; in-memory state may be ahead of disk"
	default:
		return "check logs for details"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
