package auth

import "context"

// ProviderIdentity is what an external provider asserts about the signer
// after a successful authorization-code exchange.
type ProviderIdentity struct {
	Provider          string
	ProviderAccountID string
	DisplayName       string
	Email             string
}

// ProviderExchanger performs the authorization-code exchange against an
// external identity provider. The HTTP adapter supplies the implementation;
// the service only sees the asserted identity.
type ProviderExchanger interface {
	// AuthURL builds the provider's consent-screen URL carrying the opaque
	// state value.
	AuthURL(provider, state string) (string, error)
	// Exchange trades the callback code for the provider's identity claim.
	Exchange(ctx context.Context, provider, code string) (*ProviderIdentity, error)
}
