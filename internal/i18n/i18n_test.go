package i18n

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type keyedErr Key

func (k keyedErr) Error() string   { return string(k) }
func (k keyedErr) MessageKey() Key { return Key(k) }

func TestText_Fallbacks(t *testing.T) {
	assert.Equal(t, "Invalid username or password.", Text("en", InvalidCredentials))
	assert.Equal(t, "Benutzername oder Passwort ist falsch.", Text("de", InvalidCredentials))
	assert.Equal(t, Text("en", Conflict), Text("fr", Conflict))
	assert.Equal(t, "no_such_key", Text("en", Key("no_such_key")))
}

func TestForError(t *testing.T) {
	wrapped := fmt.Errorf("login: %w", keyedErr(InvalidCredentials))
	assert.Equal(t, Text("de", InvalidCredentials), ForError("de", wrapped))
	assert.Equal(t, Text("en", Unknown), ForError("en", errors.New("dial tcp: refused")))
	assert.Empty(t, ForError("en", nil))
}

func TestCatalogsAreComplete(t *testing.T) {
	for lang, cat := range catalogs {
		for key := range catalogs[DefaultLang] {
			assert.NotEmpty(t, cat[key], "%s missing %s", lang, key)
		}
	}
	assert.True(t, Supported("de"))
	assert.False(t, Supported("xx"))
}
