package contract

import (
	"context"
	"errors"
)

var ErrUnauthorized = errors.New("unauthorized")

// StaticGate grants every known user the same tier. It stands in for a real
// billing service in single-tenant deployments.
type StaticGate struct {
	tier string
}

func NewStaticGate(tier string) *StaticGate {
	if tier == "" {
		tier = TierPro
	}
	return &StaticGate{tier: tier}
}

func (g *StaticGate) GetActiveSubscriptionTier(ctx context.Context, userID uint) (string, error) {
	return g.tier, nil
}

// StaticCredentialStore serves one credential from configuration for all
// users.
type StaticCredentialStore struct {
	credential ExchangeCredential
}

func NewStaticCredentialStore(cred ExchangeCredential) *StaticCredentialStore {
	return &StaticCredentialStore{credential: cred}
}

func (s *StaticCredentialStore) GetExchangeCredential(ctx context.Context, userID uint, connectionID string) (*ExchangeCredential, error) {
	cred := s.credential
	cred.UserID = userID
	cred.ConnectionID = connectionID
	return &cred, nil
}

// StaticAuthenticator maps fixed tokens to user ids.
type StaticAuthenticator struct {
	tokens map[string]uint
}

func NewStaticAuthenticator(tokens map[string]uint) *StaticAuthenticator {
	return &StaticAuthenticator{tokens: tokens}
}

func (a *StaticAuthenticator) Authenticate(ctx context.Context, token string) (uint, error) {
	if userID, ok := a.tokens[token]; ok {
		return userID, nil
	}
	return 0, ErrUnauthorized
}
