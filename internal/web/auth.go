package web

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const authSubject = "webchat"

// Auth is the shared-password gate. Passwords are checked against a bcrypt
// hash; a successful login is remembered with a signed token in a cookie.
type Auth struct {
	hash   []byte
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuth builds the gate from either a plain password or a bcrypt hash
// (the hash wins when both are set). It returns nil, nil when neither is set,
// which leaves the app open. An empty secret is replaced by a random one, so
// logins do not survive a restart.
func NewAuth(password, passwordHash, secret string, ttl time.Duration) (*Auth, error) {
	var hash []byte
	switch {
	case passwordHash != "":
		if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
			return nil, fmt.Errorf("invalid password hash: %w", err)
		}
		hash = []byte(passwordHash)
	case password != "":
		h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
		hash = h
	default:
		return nil, nil
	}

	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating session secret: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Auth{hash: hash, secret: key, ttl: ttl, now: time.Now}, nil
}

// HashPassword returns the bcrypt hash to put in password_hash.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(h), err
}

// Check reports whether password matches the shared password.
func (a *Auth) Check(password string) bool {
	return bcrypt.CompareHashAndPassword(a.hash, []byte(password)) == nil
}

// Issue returns a signed login token and its expiry.
func (a *Auth) Issue() (string, time.Time, error) {
	now := a.now()
	expires := now.Add(a.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   authSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing login token: %w", err)
	}
	return token, expires, nil
}

// Validate checks a token produced by Issue.
func (a *Auth) Validate(tokenStr string) error {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return a.secret, nil
		},
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return err
	}
	if !token.Valid || claims.Subject != authSubject {
		return errors.New("invalid token")
	}
	return nil
}
