package main

import (
	"errors"
	"fmt"
)

// Config is the top-level YAML configuration for authd, grounded on dex's cmd/dex/config.go.
type Config struct {
	Issuer string `json:"issuer"`

	Storage StorageConfig `json:"storage"`
	Cache   CacheConfig   `json:"cache,omitempty"`

	Web struct {
		HTTP           string   `json:"http"`
		HTTPS          string   `json:"https"`
		TLSCert        string   `json:"tlsCert"`
		TLSKey         string   `json:"tlsKey"`
		AllowedOrigins []string `json:"allowedOrigins"`
	} `json:"web"`

	Telemetry struct {
		HTTP string `json:"http"`
	} `json:"telemetry"`

	Logger struct {
		Level  string `json:"level"`
		Format string `json:"format"`
	} `json:"logger"`

	OAuth2 OAuth2Config `json:"oauth2"`
	Expiry ExpiryConfig `json:"expiry"`

	StaticApplications []StaticApplication `json:"staticApplications"`
}

// StorageConfig selects and configures the persistence backend, per SPEC_FULL's storage/sql and
// storage/memory module layout.
type StorageConfig struct {
	Type string `json:"type"` // "memory", "postgres", "mysql", "sqlite3"
	DSN  string `json:"dsn"`
}

// CacheConfig selects the optional entity cache backend, per SPEC_FULL's cache/ module layout.
type CacheConfig struct {
	Type string `json:"type"` // "", "memory", "redis"
	Addr string `json:"addr"`
}

// OAuth2Config mirrors the subset of oauth2tx.Options a deployment needs to pick, per spec.md §4.2.
type OAuth2Config struct {
	ResponseTypes              []string `json:"responseTypes"`
	GrantTypes                 []string `json:"grantTypes"`
	ScopeValidationEnabled     bool     `json:"scopeValidationEnabled"`
	RequireEndpointPermission  bool     `json:"requireEndpointPermission"`
	RequireGrantTypePermission bool     `json:"requireGrantTypePermission"`
	RequireScopePermission     bool     `json:"requireScopePermission"`
}

// ExpiryConfig holds the duration strings for every lifetime the core needs, per spec.md §4.2/§4.7.
type ExpiryConfig struct {
	AccessTokens       string `json:"accessTokens"`
	IdentityTokens     string `json:"identityTokens"`
	RefreshTokens      string `json:"refreshTokens"`
	SigningKeys        string `json:"signingKeys"`
	SigningKeyValidFor string `json:"signingKeyValidFor"`
}

// StaticApplication seeds an Application record at startup, the way dex's StaticClients config
// block seeds OAuth2 clients.
type StaticApplication struct {
	ID           string   `json:"id"`
	Secret       string   `json:"secret"`
	Public       bool     `json:"public"`
	RedirectURIs []string `json:"redirectURIs"`
	Permissions  []string `json:"permissions"`
}

// Validate fails fast on configuration that would otherwise surface as a confusing runtime error,
// grounded on dex's Config.Validate.
func (c *Config) Validate() error {
	if c.Issuer == "" {
		return errors.New("invalid config: no issuer specified")
	}
	switch c.Storage.Type {
	case "memory", "postgres", "mysql", "sqlite3":
	case "":
		return errors.New("invalid config: no storage type specified")
	default:
		return fmt.Errorf("invalid config: unknown storage type %q", c.Storage.Type)
	}
	switch c.Cache.Type {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("invalid config: unknown cache type %q", c.Cache.Type)
	}
	if c.Web.HTTP == "" && c.Web.HTTPS == "" {
		return errors.New("invalid config: must supply a web.http or web.https address to listen on")
	}
	for _, app := range c.StaticApplications {
		if app.ID == "" {
			return errors.New("invalid config: id field is required for a static application")
		}
		if !app.Public && app.Secret == "" {
			return fmt.Errorf("invalid config: secret field is required for non-public application %q", app.ID)
		}
	}
	return nil
}
