// Package model defines the data structures used throughout the application.
package model

import "time"

// Role is an ordered privilege tier. Higher values grant a superset of
// the permissions of lower values, so authorization checks compare with >=.
type Role int

const (
	RoleHacker Role = iota
	RoleSponsor
	RoleOrganizer
)

// String returns the lowercase name of the role, used in JSON responses
// and log output.
func (r Role) String() string {
	switch r {
	case RoleHacker:
		return "hacker"
	case RoleSponsor:
		return "sponsor"
	case RoleOrganizer:
		return "organizer"
	default:
		return "unknown"
	}
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	return r >= RoleHacker && r <= RoleOrganizer
}

// Provider identifies an external OAuth identity provider.
type Provider string

const (
	ProviderGitHub  Provider = "github"
	ProviderDiscord Provider = "discord"
)

// User represents a registered account.
//
// UUID is the stable external identifier, assigned at creation and never
// changed. Email is stored lowercase and is unique. PasswordHash is empty
// for accounts created through OAuth signup; those users have no password
// until they perform a reset. GitHubID and DiscordID are each unique when
// present; an empty string means the provider is not linked.
type User struct {
	UUID         string    `json:"uuid"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	GitHubID     string    `json:"githubId,omitempty"`
	DiscordID    string    `json:"discordId,omitempty"`
	Confirmed    bool      `json:"confirmed"`
	Points       int       `json:"points"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ProviderID returns the linked id for the given provider ("" if unlinked).
func (u *User) ProviderID(p Provider) string {
	switch p {
	case ProviderGitHub:
		return u.GitHubID
	case ProviderDiscord:
		return u.DiscordID
	}
	return ""
}

// SetProviderID sets the linked id for the given provider.
func (u *User) SetProviderID(p Provider, id string) {
	switch p {
	case ProviderGitHub:
		u.GitHubID = id
	case ProviderDiscord:
		u.DiscordID = id
	}
}
