package auth

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
)

type Role string

const (
	RoleRead  Role = "read"
	RoleWrite Role = "write"
)

// Allows reports whether a session holding r may call a route that
// needs min.
func (r Role) Allows(min Role) bool {
	switch min {
	case RoleWrite:
		return r == RoleWrite
	default:
		return r == RoleRead || r == RoleWrite
	}
}

type User struct {
	PasswordHash string `json:"pw_hash"`
	Role         Role   `json:"role"`
}

type Users map[string]User

// ParseUsers decodes the USERS_JSON document:
// {"name": {"pw_hash": "$argon2id$...", "role": "read|write"}}.
func ParseUsers(raw string) (Users, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Users{}, nil
	}
	var users Users
	if err := json.Unmarshal([]byte(raw), &users); err != nil {
		return Users{}, fmt.Errorf("parse users json: %w", err)
	}
	if users == nil {
		users = Users{}
	}
	return users, nil
}

func HashPassword(plain string) (string, error) {
	return argon2id.CreateHash(plain, argon2id.DefaultParams)
}

// VerifyPassword compares plain with an argon2id hash. A malformed hash
// never matches.
func VerifyPassword(plain, encoded string) bool {
	if encoded == "" {
		return false
	}
	ok, err := argon2id.ComparePasswordAndHash(plain, encoded)
	return err == nil && ok
}
