package model

import "time"

// TokenType distinguishes the four kinds of session tokens. Each type is
// persisted in its own table; the table name is derived from the type.
type TokenType string

const (
	TokenAccess  TokenType = "access"  // short-lived API credential
	TokenRefresh TokenType = "refresh" // exchanged for new access tokens
	TokenReset   TokenType = "reset"   // single-purpose password reset
	TokenConfirm TokenType = "confirm" // single-use email confirmation
)

// TokenTypes lists every token type, in a stable order.
var TokenTypes = []TokenType{TokenAccess, TokenRefresh, TokenReset, TokenConfirm}

// TokenStatus is the tri-state result of verifying a token.
//
// Expired and Invalid are deliberately distinct: an expired token had a
// valid signature but its embedded expiry has passed, while an invalid
// token either fails signature verification or has no live store record
// (never issued, or revoked).
type TokenStatus int

const (
	TokenInvalid TokenStatus = iota
	TokenExpired
	TokenValid
)

func (s TokenStatus) String() string {
	switch s {
	case TokenInvalid:
		return "invalid"
	case TokenExpired:
		return "expired"
	case TokenValid:
		return "valid"
	default:
		return "unknown"
	}
}

// IssuedToken is a signed token together with its issue metadata.
// ExpiresAt is nil for token types that never expire by time
// (refresh and confirm; those are revoked only by record deletion).
type IssuedToken struct {
	Token     string     `json:"token"`
	IssuedAt  time.Time  `json:"issuedAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// TokenGrant pairs a signed token string with its type. Used when
// persisting several freshly minted tokens in a single transaction
// (account creation issues access + refresh together).
type TokenGrant struct {
	Type  TokenType
	Token string
}
