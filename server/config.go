package server

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Hardcoded token and session defaults
const (
	DefaultAccessTTL        = 10 * time.Minute
	DefaultIDTokenTTL       = time.Hour
	DefaultSessionTTL       = 12 * time.Hour
	DefaultMaxLoginAttempts = 5
)

// Session store backends.
const (
	SessionStoreMemory = "memory"
	SessionStoreMongo  = "mongo"
)

// Duration wraps time.Duration so YAML values like "12h" round-trip.
type Duration time.Duration

// UnmarshalYAML parses Go duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML emits the duration in Go string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config captures the full application configuration loaded from YAML and
// environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Clients  []ClientConfig `yaml:"clients"`
	Users    []UserConfig   `yaml:"users"`
	Sessions SessionConfig  `yaml:"sessions"`
	Tokens   TokenConfig    `yaml:"tokens"`
	Keys     KeyConfig      `yaml:"keys"`
}

// ServerConfig controls listener, TLS, and HTTP concerns.
type ServerConfig struct {
	PublicURL         string    `yaml:"public_url"`
	DevListenAddr     string    `yaml:"dev_listen_addr"`
	HTTPListenAddr    string    `yaml:"http_listen_addr"`
	HTTPSListenAddr   string    `yaml:"https_listen_addr"`
	DevMode           bool      `yaml:"dev_mode"`
	CookieDomain      string    `yaml:"cookie_domain"`
	TrustProxyHeaders bool      `yaml:"trust_proxy_headers"`
	DebugEndpoints    bool      `yaml:"debug_endpoints"`
	TLS               TLSConfig `yaml:"tls"`
}

// TLSConfig defines autocert behaviour.
type TLSConfig struct {
	Domains  []string `yaml:"domains"`
	Email    string   `yaml:"email"`
	CacheDir string   `yaml:"cache_dir"`
}

// ClientConfig describes a registered OAuth client.
type ClientConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Name         string   `yaml:"name"`
	RedirectURIs []string `yaml:"redirect_uris"`
	Scopes       []string `yaml:"scopes"`
}

// UserConfig seeds a local account. Password is hashed at load time;
// PasswordHash takes precedence when both are set.
type UserConfig struct {
	Email        string `yaml:"email"`
	Name         string `yaml:"name"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
}

// SessionConfig controls browser session behaviour and backing storage.
type SessionConfig struct {
	TTL              Duration `yaml:"ttl"`
	MaxLoginAttempts int      `yaml:"max_login_attempts"`
	Store            string   `yaml:"store"`
	MongoURI         string   `yaml:"mongo_uri"`
	MongoDatabase    string   `yaml:"mongo_database"`
}

// TokenConfig controls token lifetimes.
type TokenConfig struct {
	AccessTTL  Duration `yaml:"access_ttl"`
	IDTokenTTL Duration `yaml:"id_token_ttl"`
}

// KeyConfig controls the signing keystore.
type KeyConfig struct {
	KeystorePath   string   `yaml:"keystore_path"`
	RotateInterval Duration `yaml:"rotate_interval"`
}

// LoadConfig reads the YAML config file and merges environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		sanitized := stripYAMLComments(b)

		// Strict unmarshaling surfaces typos and deprecated fields.
		decoder := yaml.NewDecoder(bytes.NewReader(sanitized))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfig returns the default configuration template.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			PublicURL:       "http://127.0.0.1:8080",
			DevListenAddr:   "127.0.0.1:8080",
			HTTPListenAddr:  ":80",
			HTTPSListenAddr: ":443",
			DevMode:         true,
			TLS: TLSConfig{
				Domains:  []string{"localhost"},
				CacheDir: ".secrets/tls",
			},
		},
		Sessions: SessionConfig{
			TTL:              Duration(DefaultSessionTTL),
			MaxLoginAttempts: DefaultMaxLoginAttempts,
			Store:            SessionStoreMemory,
		},
		Tokens: TokenConfig{
			AccessTTL:  Duration(DefaultAccessTTL),
			IDTokenTTL: Duration(DefaultIDTokenTTL),
		},
		Keys: KeyConfig{
			KeystorePath: ".secrets/keystore.json",
		},
	}
}

func stripYAMLComments(in []byte) []byte {
	lines := bytes.Split(in, []byte("\n"))
	out := make([][]byte, 0, len(lines))
	for _, line := range lines {
		trim := bytes.TrimLeft(line, " \t")
		if len(trim) > 0 && trim[0] == '#' {
			continue
		}
		out = append(out, line)
	}
	return bytes.Join(out, []byte("\n"))
}

func applyEnvOverrides(cfg *Config) {
	overrides := map[string]func(string){
		"AUTHD_SERVER_PUBLIC_URL":        func(v string) { cfg.Server.PublicURL = v },
		"AUTHD_SERVER_DEV_LISTEN_ADDR":   func(v string) { cfg.Server.DevListenAddr = v },
		"AUTHD_SERVER_HTTP_LISTEN_ADDR":  func(v string) { cfg.Server.HTTPListenAddr = v },
		"AUTHD_SERVER_HTTPS_LISTEN_ADDR": func(v string) { cfg.Server.HTTPSListenAddr = v },
		"AUTHD_SERVER_DEV_MODE":          func(v string) { cfg.Server.DevMode = parseBool(v, cfg.Server.DevMode) },
		"AUTHD_SERVER_TLS_DOMAINS":       func(v string) { cfg.Server.TLS.Domains = splitAndTrim(v) },
		"AUTHD_SERVER_TLS_EMAIL":         func(v string) { cfg.Server.TLS.Email = v },
		"AUTHD_KEYS_KEYSTORE_PATH":       func(v string) { cfg.Keys.KeystorePath = v },
		"AUTHD_SESSIONS_STORE":           func(v string) { cfg.Sessions.Store = v },
		"AUTHD_SESSIONS_MONGO_URI":       func(v string) { cfg.Sessions.MongoURI = v },
		"AUTHD_SESSIONS_MONGO_DATABASE":  func(v string) { cfg.Sessions.MongoDatabase = v },
	}

	for key, fn := range overrides {
		if val, ok := os.LookupEnv(key); ok {
			fn(val)
		}
	}
}

func parseBool(val string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate performs sanity checks on the config.
func (c Config) Validate() error {
	if c.Server.PublicURL == "" {
		return errors.New("server.public_url is required")
	}
	if !strings.HasPrefix(c.Server.PublicURL, "http://") && !strings.HasPrefix(c.Server.PublicURL, "https://") {
		return fmt.Errorf("server.public_url must start with http:// or https://, got: %s", c.Server.PublicURL)
	}
	if !c.Server.DevMode && len(c.Server.TLS.Domains) == 0 {
		return errors.New("server.tls.domains must be provided in production")
	}

	for i, client := range c.Clients {
		if client.ClientID == "" {
			return fmt.Errorf("clients[%d]: client_id is required", i)
		}
		if len(client.RedirectURIs) == 0 {
			return fmt.Errorf("clients[%d] (%s): at least one redirect_uri is required", i, client.ClientID)
		}
		for j, uri := range client.RedirectURIs {
			if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
				return fmt.Errorf("clients[%d] (%s): redirect_uris[%d] must start with http:// or https://, got: %s", i, client.ClientID, j, uri)
			}
		}
	}
	if len(c.Clients) == 0 {
		return errors.New("at least one client must be configured")
	}

	for i, user := range c.Users {
		if user.Email == "" {
			return fmt.Errorf("users[%d]: email is required", i)
		}
		if user.Password == "" && user.PasswordHash == "" {
			return fmt.Errorf("users[%d] (%s): password or password_hash is required", i, user.Email)
		}
	}

	switch c.Sessions.Store {
	case SessionStoreMemory:
	case SessionStoreMongo:
		if c.Sessions.MongoURI == "" {
			return errors.New("sessions.mongo_uri is required when sessions.store is mongo")
		}
		if c.Sessions.MongoDatabase == "" {
			return errors.New("sessions.mongo_database is required when sessions.store is mongo")
		}
	default:
		return fmt.Errorf("sessions.store must be %q or %q, got: %s", SessionStoreMemory, SessionStoreMongo, c.Sessions.Store)
	}

	if c.Sessions.TTL.Std() <= 0 {
		return errors.New("sessions.ttl must be positive")
	}
	if c.Tokens.AccessTTL.Std() <= 0 || c.Tokens.IDTokenTTL.Std() <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	return nil
}

// Issuer derives the token issuer identifier from the public URL.
func (c Config) Issuer() string {
	return strings.TrimSuffix(c.Server.PublicURL, "/")
}
