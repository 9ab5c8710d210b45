package contract

import "context"

// Subscription tiers gate which features a user may exercise.
const (
	TierFree = "free"
	TierPro  = "pro"
)

// SubscriptionGate answers whether a user is entitled to premium features
// such as signal execution.
type SubscriptionGate interface {
	GetActiveSubscriptionTier(ctx context.Context, userID uint) (string, error)
}

// ExchangeCredential is a decrypted API key pair for a user's exchange
// account.
type ExchangeCredential struct {
	UserID       uint
	ConnectionID string
	Exchange     string
	APIKey       string
	APISecret    string
	Testnet      bool
}

// CredentialStore resolves the exchange credential to trade with on behalf of
// a user. An empty connectionID selects the user's default connection.
type CredentialStore interface {
	GetExchangeCredential(ctx context.Context, userID uint, connectionID string) (*ExchangeCredential, error)
}

// TokenAuthenticator resolves a bearer token to a user id, used by both the
// REST middleware and the websocket upgrade handshake.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (uint, error)
}
