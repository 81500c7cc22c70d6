package orgchart

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("position not found")
	ErrCycle    = errors.New("reporting line would form a cycle")
	// ErrConflict means the stored position changed since it was read.
	ErrConflict = errors.New("position was modified concurrently")
)

// ValidationError rejects input before any backend call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Op names a mutation for notifications.
type Op string

const (
	OpLoad   Op = "load"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// FailureMessage is the short notice shown to a user after op failed. It
// names the failed action and never carries diagnostic detail.
func FailureMessage(op Op, err error) string {
	var ve ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve) && ve.Field == "title":
		return "Bitte geben Sie einen Titel für die Position ein"
	case errors.As(err, &ve):
		return "Die Eingaben sind ungültig"
	case errors.Is(err, ErrCycle):
		return "Eine Position kann nicht sich selbst oder einer ihrer Unterpositionen unterstellt werden"
	case errors.Is(err, ErrConflict):
		return "Die Position wurde zwischenzeitlich geändert, bitte neu laden"
	case errors.Is(err, ErrNotFound):
		return "Position nicht gefunden"
	}
	switch op {
	case OpLoad:
		return "Organigramm konnte nicht geladen werden"
	case OpCreate:
		return "Position konnte nicht erstellt werden"
	case OpUpdate:
		return "Position konnte nicht aktualisiert werden"
	case OpDelete:
		return "Position konnte nicht gelöscht werden"
	}
	return "Aktion fehlgeschlagen"
}
