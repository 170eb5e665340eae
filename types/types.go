package types

import "context"

type LifecycleManager interface {
	Start() error
	Stop() error
	IsRunning() bool
}

// IdentityProvider is the external sign-in collaborator. An empty token means
// the user is not authenticated.
type IdentityProvider interface {
	Token(ctx context.Context) (string, error)
	UserID(ctx context.Context) (string, error)
}
