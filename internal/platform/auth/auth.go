// Package auth authenticates outgoing requests to the execution service.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/pipelinectl/internal/platform/env"
)

type Mode string

const (
	ModeNone  Mode = "none"
	ModeToken Mode = "token"
	ModeOIDC  Mode = "oidc"
)

type Config struct {
	Mode Mode

	Token string

	OIDCIssuerURL    string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCScopes       []string
}

func ParseMode(value string) (Mode, error) {
	switch raw := strings.ToLower(strings.TrimSpace(value)); raw {
	case "", string(ModeNone):
		return ModeNone, nil
	case string(ModeToken):
		return ModeToken, nil
	case string(ModeOIDC):
		return ModeOIDC, nil
	default:
		return "", fmt.Errorf("PIPELINECTL_AUTH_MODE must be one of: none, token, oidc (got %q)", raw)
	}
}

func ConfigFromEnv() (Config, error) {
	mode, err := ParseMode(env.String("PIPELINECTL_AUTH_MODE", string(ModeNone)))
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Mode:             mode,
		Token:            strings.TrimSpace(env.String("PIPELINECTL_TOKEN", "")),
		OIDCIssuerURL:    strings.TrimSpace(env.String("PIPELINECTL_OIDC_ISSUER_URL", "")),
		OIDCClientID:     strings.TrimSpace(env.String("PIPELINECTL_OIDC_CLIENT_ID", "")),
		OIDCClientSecret: env.String("PIPELINECTL_OIDC_CLIENT_SECRET", ""),
		OIDCScopes:       env.Strings("PIPELINECTL_OIDC_SCOPES", nil),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeNone:
	case ModeToken:
		if strings.TrimSpace(c.Token) == "" {
			return errors.New("PIPELINECTL_TOKEN is required when PIPELINECTL_AUTH_MODE=token")
		}
	case ModeOIDC:
		if strings.TrimSpace(c.OIDCIssuerURL) == "" {
			return errors.New("PIPELINECTL_OIDC_ISSUER_URL is required when PIPELINECTL_AUTH_MODE=oidc")
		}
		if strings.TrimSpace(c.OIDCClientID) == "" {
			return errors.New("PIPELINECTL_OIDC_CLIENT_ID is required when PIPELINECTL_AUTH_MODE=oidc")
		}
		if strings.TrimSpace(c.OIDCClientSecret) == "" {
			return errors.New("PIPELINECTL_OIDC_CLIENT_SECRET is required when PIPELINECTL_AUTH_MODE=oidc")
		}
	default:
		return fmt.Errorf("unsupported auth mode: %q", c.Mode)
	}
	return nil
}
