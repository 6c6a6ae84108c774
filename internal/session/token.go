package session

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is what the client reads out of a session token. The client cannot
// verify the signature; these values only fill gaps in login responses and
// decide when to ask for a fresh login.
type Claims struct {
	UserID    string
	Username  string
	ExpiresAt time.Time
}

func ParseClaims(token string) (Claims, error) {
	if token == "" {
		return Claims{}, fmt.Errorf("session: empty token")
	}
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, fmt.Errorf("session: parse token: %w", err)
	}

	var c Claims
	for _, k := range []string{"id", "userId", "user_id", "sub"} {
		if v := claimString(mc[k]); v != "" {
			c.UserID = v
			break
		}
	}
	c.Username = claimString(mc["username"])
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}

func claimString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}
