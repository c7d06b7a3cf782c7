package portal

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/governance/internal/chain"
	"github.com/MarkoPoloResearchLab/governance/pkg/governance"
)

const (
	defaultHTTPListenAddr = ":9090"
	defaultGRPCListenAddr = ":7000"
	defaultDatabaseURL    = "sqlite:///tmp/governance.db"
	defaultAllowedOrigin  = "http://localhost:8000"
	defaultSessionIssuer  = "tauth"
	defaultSessionCookie  = "app_session"
	defaultAPIIssuer      = "governanced"
	defaultSnapshotHubURL = "https://hub.snapshot.org"
	defaultRequestTimeout = 30 * time.Second
	defaultEventBuffer    = 64
	defaultConfirmations  = 1
	storeDriverGorm       = "gorm"
	storeDriverPgx        = "pgx"
)

// OrganizationConfig locates the DAO organization of one network.
type OrganizationConfig struct {
	Location  string `mapstructure:"location" yaml:"location"`
	Connector string `mapstructure:"connector" yaml:"connector"`
}

// Config aggregates runtime settings for the portal daemon.
type Config struct {
	HTTPListenAddr string
	GRPCListenAddr string
	DatabaseURL    string
	StoreDriver    string

	Network       string
	PrivateKey    string
	Confirmations uint64
	AutoConnect   bool
	RPCEndpoints  map[string]string
	Contracts     map[string]chain.ContractAddresses
	Organizations map[string]OrganizationConfig

	SnapshotHubURL          string
	GovernanceAPIURL        string
	GovernanceAPISigningKey string
	GovernanceAPIIssuer     string

	AllowedOrigins    []string
	SessionSigningKey string
	SessionIssuer     string
	SessionCookieName string
	RequestTimeout    time.Duration
	EventBuffer       int
}

// Validate fills defaults and rejects missing values.
func (cfg *Config) Validate() error {
	cfg.HTTPListenAddr = defaultIfEmpty(cfg.HTTPListenAddr, defaultHTTPListenAddr)
	cfg.GRPCListenAddr = defaultIfEmpty(cfg.GRPCListenAddr, defaultGRPCListenAddr)
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.StoreDriver = strings.ToLower(defaultIfEmpty(cfg.StoreDriver, storeDriverGorm))
	cfg.Network = strings.ToLower(defaultIfEmpty(cfg.Network, governance.NetworkMainnet.String()))
	cfg.SnapshotHubURL = defaultIfEmpty(cfg.SnapshotHubURL, defaultSnapshotHubURL)
	cfg.GovernanceAPIIssuer = defaultIfEmpty(cfg.GovernanceAPIIssuer, defaultAPIIssuer)
	cfg.SessionIssuer = defaultIfEmpty(cfg.SessionIssuer, defaultSessionIssuer)
	cfg.SessionCookieName = defaultIfEmpty(cfg.SessionCookieName, defaultSessionCookie)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	if cfg.Confirmations == 0 {
		cfg.Confirmations = defaultConfirmations
	}

	network, err := governance.ParseNetwork(cfg.Network)
	if err != nil {
		return err
	}
	if cfg.StoreDriver != storeDriverGorm && cfg.StoreDriver != storeDriverPgx {
		return fmt.Errorf("store driver %q is not supported", cfg.StoreDriver)
	}
	if cfg.StoreDriver == storeDriverPgx && !isPostgresURL(cfg.DatabaseURL) {
		return fmt.Errorf("pgx store requires a postgres database url")
	}
	if strings.TrimSpace(cfg.PrivateKey) == "" {
		return fmt.Errorf("private key is required")
	}
	if strings.TrimSpace(cfg.RPCEndpoints[network.String()]) == "" {
		return fmt.Errorf("rpc endpoint for %s is required", network)
	}
	if _, ok := cfg.Contracts[network.String()]; !ok {
		return fmt.Errorf("contract addresses for %s are required", network)
	}
	if err := requireURL("governance api url", cfg.GovernanceAPIURL); err != nil {
		return err
	}
	if err := requireURL("snapshot hub url", cfg.SnapshotHubURL); err != nil {
		return err
	}
	if len(cfg.GovernanceAPISigningKey) == 0 {
		return fmt.Errorf("governance api signing key is required")
	}
	if len(cfg.SessionSigningKey) == 0 {
		return fmt.Errorf("jwt signing key is required")
	}
	return nil
}

// OrganizationDirectory converts the configured organizations. Unknown networks are rejected.
func (cfg Config) OrganizationDirectory() (map[governance.Network]governance.OrganizationEndpoint, error) {
	directory := make(map[governance.Network]governance.OrganizationEndpoint, len(cfg.Organizations))
	for rawNetwork, organization := range cfg.Organizations {
		network, err := governance.ParseNetwork(rawNetwork)
		if err != nil {
			return nil, err
		}
		directory[network] = governance.OrganizationEndpoint{
			Location:  strings.TrimSpace(organization.Location),
			Connector: strings.TrimSpace(organization.Connector),
		}
	}
	return directory, nil
}

func requireURL(name string, raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}

func isPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
