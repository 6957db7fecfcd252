package core

import "context"

// Identity is the authenticated principal behind a session.
type Identity struct {
	UserID   int64
	Username string
}

// Credentials are presented by a connecting client.
// Either Token or Username+Password is set.
type Credentials struct {
	Token    string
	Username string
	Password string
}

// Authenticator verifies credentials before a session may be created.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (Identity, error)
}
