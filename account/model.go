package account

import (
	"errors"
	"time"
)

// Status is the lifecycle state of an account.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended:
		return true
	}
	return false
}

var (
	ErrNotFound           = errors.New("user not found")
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrDuplicateEmail     = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPasswordPolicy     = errors.New("password does not meet policy")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrInvalidInput       = errors.New("invalid user input")
	ErrStorageUnavailable = errors.New("credential storage unavailable")
)

// User is a stored account. PasswordHash and Salt are credential material.
type User struct {
	ID           string
	Username     string
	Email        string
	FullName     string
	PasswordHash string
	Salt         string
	Role         string
	Status       Status
	Created      time.Time
	Updated      time.Time
	LastLogin    *time.Time
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	return &c
}

// NewUser carries the fields accepted at creation.
type NewUser struct {
	Username string
	Email    string
	FullName string
	Password string
	Role     string
}

// Patch carries a partial update. Nil fields are left unchanged.
type Patch struct {
	Username *string
	Email    *string
	FullName *string
	Password *string
	Role     *string
	Status   *Status
}

// Changes reports which security-relevant fields an update touched.
type Changes struct {
	Password bool
	Role     bool
	Status   bool
}
