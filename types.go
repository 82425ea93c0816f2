package authcore

import (
	"time"

	"github.com/pipelinedash/authcore/account"
)

// Status is the lifecycle state of a user account.
type Status = account.Status

const (
	StatusActive    = account.StatusActive
	StatusInactive  = account.StatusInactive
	StatusSuspended = account.StatusSuspended
)

// NewUser carries the fields accepted by [Engine.CreateUser].
type NewUser = account.NewUser

// UserPatch is a partial update for [Engine.UpdateUser]. Nil fields are
// left unchanged.
type UserPatch = account.Patch

// User is the public view of an account. It never carries password material.
type User struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email,omitempty"`
	FullName  string     `json:"fullName,omitempty"`
	Role      string     `json:"role"`
	Status    Status     `json:"status"`
	IsAdmin   bool       `json:"isAdmin"`
	Created   time.Time  `json:"created"`
	Updated   time.Time  `json:"updated"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
}

// LoginRequest carries credentials and client metadata. Empty IP and
// UserAgent fall back to the values attached with [WithClientIP] and
// [WithUserAgent].
type LoginRequest struct {
	// Username also accepts the account's email.
	Username  string
	Password  string
	IP        string
	UserAgent string
}

// LoginResult is returned by a successful [Engine.Login].
type LoginResult struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"-"`
	SessionID        string    `json:"sessionId"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"-"`
	User             User      `json:"user"`
	// EvictedSessions lists sessions removed to respect the per-user cap.
	EvictedSessions []string `json:"-"`
}

// TokenPair is returned by a successful [Engine.Refresh].
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	SessionID        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AuthResult describes an authenticated request. When the access token had
// expired and was refreshed, Refreshed holds the new pair the caller must
// hand back to the client.
type AuthResult struct {
	User        User
	SessionID   string
	Permissions []string
	Refreshed   *TokenPair
}

// SessionInfo is the public view of a session. It never carries refresh
// token material.
type SessionInfo struct {
	ID         string    `json:"id"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	LastActive time.Time `json:"lastActive"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Current    bool      `json:"current"`
}

// SeedResult reports what [Engine.SeedUsers] did.
type SeedResult struct {
	Created []string
	Skipped []string
}
