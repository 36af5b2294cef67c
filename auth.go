package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const jwtExpiry = 24 * time.Hour

// AdminAuth guards the operator endpoints. It is entirely separate from
// the lounge itself: clients join without any authentication. With no
// configured password hash the admin surface stays disabled.
type AdminAuth struct {
	passHash  []byte
	jwtSecret []byte
}

// NewAdminAuth creates the admin guard. passHash is a bcrypt hash of the
// operator password ("" disables admin). The JWT signing secret is
// persisted in the settings table so tokens survive restarts; without a
// DB a fresh secret is generated per process.
func NewAdminAuth(passHash string, db *DB, log *zap.SugaredLogger) *AdminAuth {
	return &AdminAuth{
		passHash:  []byte(passHash),
		jwtSecret: loadOrCreateSecret(db, log),
	}
}

// loadOrCreateSecret loads the JWT secret from the database, or
// generates and persists a new one if none exists.
func loadOrCreateSecret(db *DB, log *zap.SugaredLogger) []byte {
	if db != nil {
		if h := db.GetSetting("jwt_secret"); h != "" {
			if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
				return b
			}
		}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("failed to generate JWT secret: " + err.Error())
	}
	if db != nil {
		if err := db.SetSetting("jwt_secret", hex.EncodeToString(secret)); err != nil {
			log.Warnw("could not persist JWT secret", "err", err)
		}
	}
	return secret
}

// Enabled reports whether an operator password is configured
func (a *AdminAuth) Enabled() bool {
	return len(a.passHash) > 0
}

// Login exchanges the operator password for a signed token
func (a *AdminAuth) Login(password string) (string, error) {
	if !a.Enabled() {
		return "", fmt.Errorf("admin disabled")
	}
	if err := bcrypt.CompareHashAndPassword(a.passHash, []byte(password)); err != nil {
		return "", fmt.Errorf("invalid password")
	}
	claims := jwt.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(jwtExpiry).Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

// ValidateToken checks a bearer token
func (a *AdminAuth) ValidateToken(tokenStr string) error {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}

// Authorize checks the Authorization header of an operator request
func (a *AdminAuth) Authorize(r *http.Request) error {
	header := r.Header.Get("Authorization")
	tokenStr, found := strings.CutPrefix(header, "Bearer ")
	if !found || tokenStr == "" {
		return fmt.Errorf("missing bearer token")
	}
	return a.ValidateToken(tokenStr)
}
