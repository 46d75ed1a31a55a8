package auth

import (
	"time"

	"cardswap/trade"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the domain representation of an account. It carries no JSON tags
// so presentation layers choose their own shape.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Claims is the verified identity carried by a session token.
type Claims struct {
	UserID      string
	Role        Role
	DisplayName string
}

// Actor converts verified claims into the caller identity trade operations
// take.
func (c Claims) Actor() trade.Actor {
	return trade.Actor{UserID: c.UserID, DisplayName: c.DisplayName, Admin: c.Role == RoleAdmin}
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
