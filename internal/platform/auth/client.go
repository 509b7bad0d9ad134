package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// HTTPClient returns a client that authenticates every request according to
// cfg. base supplies the transport and timeout; nil means
// http.DefaultClient. In oidc mode the token endpoint is discovered from the
// issuer and tokens are minted with the client credentials grant; ctx bounds
// discovery and every later token refresh.
func HTTPClient(ctx context.Context, cfg Config, base *http.Client) (*http.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if base == nil {
		base = http.DefaultClient
	}

	var source oauth2.TokenSource
	switch cfg.Mode {
	case ModeNone:
		return base, nil
	case ModeToken:
		source = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})
	case ModeOIDC:
		ctx = oidc.ClientContext(ctx, base)
		provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuerURL)
		if err != nil {
			return nil, fmt.Errorf("oidc provider: %w", err)
		}
		tokenURL := provider.Endpoint().TokenURL
		if tokenURL == "" {
			return nil, fmt.Errorf("oidc provider %s advertises no token endpoint", cfg.OIDCIssuerURL)
		}
		cc := clientcredentials.Config{
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			TokenURL:     tokenURL,
			Scopes:       cfg.OIDCScopes,
		}
		source = cc.TokenSource(context.WithValue(ctx, oauth2.HTTPClient, base))
	}

	return &http.Client{
		Transport: &oauth2.Transport{Source: source, Base: base.Transport},
		Timeout:   base.Timeout,
	}, nil
}
