// Package models contains shared data models used across the self-service codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Loader is a key-holding agent assigned to one of a user's slots. The slot is
// encoded as the numeric suffix of Name. Raw keys are shown once at creation;
// only the bcrypt hash is stored.
type Loader struct {
	ID        uuid.UUID  `db:"id"           json:"id"`
	Name      string     `db:"name"         json:"name"`
	Prefix    string     `db:"prefix"       json:"prefix"`
	KeyHash   string     `db:"key_hash"     json:"-"`
	AgentName string     `db:"agent_name"   json:"agentname"`
	ExpectEnv string     `db:"expect_env"   json:"expectenv,omitempty"`
	Enabled   bool       `db:"enabled"      json:"enabled"`
	LastSeen  *time.Time `db:"last_seen_at" json:"lastseen,omitempty"`
	CreatedAt time.Time  `db:"created_at"   json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"   json:"updated_at"`
}

// LoaderKey is returned once when a loader is created or re-keyed. The
// credential a loader authenticates with is Prefix followed by Key.
type LoaderKey struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Prefix  string    `json:"prefix"`
	Key     string    `json:"key"`
	Enabled bool      `json:"enabled"`
}
