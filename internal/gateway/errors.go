package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/i18n"
)

// Error is a rejected or failed backend call. Kind says which user-visible
// condition it is; Message is whatever explanation the server sent.
type Error struct {
	Op      string
	Kind    i18n.Key
	Status  int
	Message string
	Err     error
}

// Sentinels for errors.Is. Only Kind is compared.
var (
	ErrInvalidCredentials = &Error{Kind: i18n.InvalidCredentials}
	ErrUnauthorized       = &Error{Kind: i18n.Unauthorized}
	ErrValidation         = &Error{Kind: i18n.Validation}
	ErrConflict           = &Error{Kind: i18n.Conflict}
	ErrNotFound           = &Error{Kind: i18n.NotFound}
	ErrServerUnavailable  = &Error{Kind: i18n.ServerUnavailable}
)

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s (%d): %s", e.Op, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Kind, e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func (e *Error) MessageKey() i18n.Key { return e.Kind }

func kindForStatus(op string, status int) i18n.Key {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		if op == opLogin {
			return i18n.InvalidCredentials
		}
		return i18n.Unauthorized
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return i18n.Validation
	case status == http.StatusNotFound:
		return i18n.NotFound
	case status == http.StatusConflict:
		return i18n.Conflict
	case status >= 500:
		return i18n.ServerUnavailable
	}
	return i18n.Unknown
}
