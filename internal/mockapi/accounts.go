package mockapi

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserExists         = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingFields      = errors.New("username and password are required")
)

const tokenTTL = 24 * time.Hour

type account struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"`
}

type Claims struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// accounts is the user registry. Passwords are bcrypt hashes.
type accounts struct {
	secret []byte
	now    func() time.Time

	mu     sync.RWMutex
	nextID int
	byName map[string]*account
}

func newAccounts(secret string, now func() time.Time) *accounts {
	return &accounts{
		secret: []byte(secret),
		now:    now,
		byName: make(map[string]*account),
	}
}

func (a *accounts) register(username, password string) (account, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return account{}, ErrMissingFields
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return account{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.byName[username]; ok {
		return account{}, ErrUserExists
	}
	a.nextID++
	u := &account{ID: a.nextID, Username: username, Password: string(hashed)}
	a.byName[username] = u
	return *u, nil
}

// login checks the password and signs a token carrying the id and username.
func (a *accounts) login(username, password string) (string, account, error) {
	a.mu.RLock()
	u, ok := a.byName[username]
	a.mu.RUnlock()
	if !ok {
		return "", account{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return "", account{}, ErrInvalidCredentials
	}

	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ID:       u.ID,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "livechat-mockapi",
			Subject:   strconv.Itoa(u.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	})
	ss, err := token.SignedString(a.secret)
	if err != nil {
		return "", account{}, err
	}
	return ss, *u, nil
}

func (a *accounts) ValidateToken(tokenString string) (int, string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return 0, "", err
	}
	if !token.Valid {
		return 0, "", errors.New("invalid token")
	}
	return claims.ID, claims.Username, nil
}

func (a *accounts) list() []account {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]account, 0, len(a.byName))
	for _, u := range a.byName {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
