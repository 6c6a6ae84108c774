// Package i18n holds the user-visible strings for failure conditions.
// Raw transport errors are never shown to the user; every failure is mapped
// to one of these keys first.
package i18n

import "errors"

type Key string

const (
	InvalidCredentials Key = "invalid_credentials"
	Unauthorized       Key = "unauthorized"
	Validation         Key = "validation"
	Conflict           Key = "conflict"
	NotFound           Key = "not_found"
	ServerUnavailable  Key = "server_unavailable"
	Unknown            Key = "unknown"

	SessionExpired Key = "session_expired"
	NotLoggedIn    Key = "not_logged_in"
	NoPeer         Key = "no_peer"
	EmptyMessage   Key = "empty_message"

	Connected      Key = "connected"
	Disconnected   Key = "disconnected"
	ConnectionLost Key = "connection_lost"
)

const DefaultLang = "en"

var catalogs = map[string]map[Key]string{
	"en": {
		InvalidCredentials: "Invalid username or password.",
		Unauthorized:       "You are not allowed to do that. Please log in again.",
		Validation:         "Some of the entered data is invalid.",
		Conflict:           "That username is already taken.",
		NotFound:           "The requested item does not exist.",
		ServerUnavailable:  "The server is unavailable. Please try again later.",
		Unknown:            "Something went wrong.",
		SessionExpired:     "Your session has expired. Please log in again.",
		NotLoggedIn:        "You are not logged in.",
		NoPeer:             "Select a user to chat with first.",
		EmptyMessage:       "The message is empty.",
		Connected:          "Live updates connected.",
		Disconnected:       "Live updates interrupted, reconnecting…",
		ConnectionLost:     "Live updates unavailable. Messages will refresh periodically.",
	},
	"de": {
		InvalidCredentials: "Benutzername oder Passwort ist falsch.",
		Unauthorized:       "Keine Berechtigung. Bitte erneut anmelden.",
		Validation:         "Einige Eingaben sind ungültig.",
		Conflict:           "Dieser Benutzername ist bereits vergeben.",
		NotFound:           "Der angeforderte Eintrag existiert nicht.",
		ServerUnavailable:  "Der Server ist nicht erreichbar. Bitte später erneut versuchen.",
		Unknown:            "Etwas ist schiefgelaufen.",
		SessionExpired:     "Die Sitzung ist abgelaufen. Bitte erneut anmelden.",
		NotLoggedIn:        "Du bist nicht angemeldet.",
		NoPeer:             "Bitte zuerst einen Chatpartner auswählen.",
		EmptyMessage:       "Die Nachricht ist leer.",
		Connected:          "Live-Verbindung hergestellt.",
		Disconnected:       "Live-Verbindung unterbrochen, verbinde neu…",
		ConnectionLost:     "Live-Verbindung nicht verfügbar. Nachrichten werden regelmäßig aktualisiert.",
	},
}

// Text returns the string for key in lang, falling back to English.
func Text(lang string, key Key) string {
	if s, ok := catalogs[lang][key]; ok {
		return s
	}
	if s, ok := catalogs[DefaultLang][key]; ok {
		return s
	}
	return string(key)
}

// Keyed is implemented by errors that know their user-visible condition.
type Keyed interface {
	MessageKey() Key
}

// KeyFor maps err to a condition, Unknown when it carries none.
func KeyFor(err error) Key {
	var k Keyed
	if errors.As(err, &k) {
		return k.MessageKey()
	}
	return Unknown
}

// ForError is the user-visible text for err.
func ForError(lang string, err error) string {
	if err == nil {
		return ""
	}
	return Text(lang, KeyFor(err))
}

func Supported(lang string) bool {
	_, ok := catalogs[lang]
	return ok
}
