package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/governance/internal/chain"
	"github.com/MarkoPoloResearchLab/governance/internal/portal"
)

const (
	flagConfigFile        = "config"
	flagHTTPListenAddr    = "http-listen-addr"
	flagGRPCListenAddr    = "grpc-listen-addr"
	flagDatabaseURL       = "database-url"
	flagStoreDriver       = "store-driver"
	flagNetwork           = "network"
	flagPrivateKey        = "private-key"
	flagRPCURL            = "rpc-url"
	flagConfirmations     = "confirmations"
	flagAutoConnect       = "auto-connect"
	flagSnapshotHubURL    = "snapshot-hub-url"
	flagGovernanceAPIURL  = "governance-api-url"
	flagGovernanceAPIKey  = "governance-api-signing-key"
	flagGovernanceIssuer  = "governance-api-issuer"
	flagAllowedOrigins    = "allowed-origins"
	flagJWTSigningKey     = "jwt-signing-key"
	flagJWTIssuer         = "jwt-issuer"
	flagJWTCookieName     = "jwt-cookie-name"
	flagRequestTimeout    = "request-timeout"
	flagEventBuffer       = "event-buffer"
	configKeyRPCEndpoints = "rpc-endpoints"
	configKeyContracts    = "contracts"
	configKeyOrganization = "organizations"
	envPrefix             = "GOVERNANCED"
)

var boundFlags = []string{
	flagHTTPListenAddr, flagGRPCListenAddr, flagDatabaseURL, flagStoreDriver,
	flagNetwork, flagPrivateKey, flagRPCURL, flagConfirmations, flagAutoConnect,
	flagSnapshotHubURL, flagGovernanceAPIURL, flagGovernanceAPIKey, flagGovernanceIssuer,
	flagAllowedOrigins, flagJWTSigningKey, flagJWTIssuer, flagJWTCookieName,
	flagRequestTimeout, flagEventBuffer,
}

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "governanced: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := portal.Config{}
	cmd := &cobra.Command{
		Use:           "governanced",
		Short:         "DAO governance portal: voting power, MANA wrapping and proposal votes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, &cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runPortal(ctx, cfg)
		},
	}

	cmd.Flags().String(flagConfigFile, "", "optional YAML file with contracts, rpc-endpoints and organizations")
	cmd.Flags().String(flagHTTPListenAddr, "", "HTTP listen address")
	cmd.Flags().String(flagGRPCListenAddr, "", "gRPC listen address")
	cmd.Flags().String(flagDatabaseURL, "", "activity journal database (sqlite path or postgres url)")
	cmd.Flags().String(flagStoreDriver, "", "activity journal driver: gorm or pgx")
	cmd.Flags().String(flagNetwork, "", "initial network: mainnet or ropsten")
	cmd.Flags().String(flagPrivateKey, "", "hex-encoded operator private key (required)")
	cmd.Flags().String(flagRPCURL, "", "Ethereum RPC endpoint for the initial network")
	cmd.Flags().Uint64(flagConfirmations, 0, "confirmations before a transaction counts as mined")
	cmd.Flags().Bool(flagAutoConnect, false, "connect the operator account at startup")
	cmd.Flags().String(flagSnapshotHubURL, "", "snapshot hub base URL")
	cmd.Flags().String(flagGovernanceAPIURL, "", "governance API base URL (required)")
	cmd.Flags().String(flagGovernanceAPIKey, "", "HS256 key for governance API bearer tokens (required)")
	cmd.Flags().String(flagGovernanceIssuer, "", "issuer of governance API bearer tokens")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagJWTSigningKey, "", "TAuth JWT signing key (required)")
	cmd.Flags().String(flagJWTIssuer, "", "expected JWT issuer")
	cmd.Flags().String(flagJWTCookieName, "", "JWT cookie name")
	cmd.Flags().Duration(flagRequestTimeout, 0, "per-request timeout (e.g. 30s)")
	cmd.Flags().Int(flagEventBuffer, 0, "event bus subscriber buffer")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *portal.Config) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flagName := range boundFlags {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}
	if err := v.BindEnv(flagDatabaseURL, envPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return err
	}

	configFile, err := cmd.Flags().GetString(flagConfigFile)
	if err != nil {
		return err
	}
	if configFile = strings.TrimSpace(configFile); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg.HTTPListenAddr = strings.TrimSpace(v.GetString(flagHTTPListenAddr))
	cfg.GRPCListenAddr = strings.TrimSpace(v.GetString(flagGRPCListenAddr))
	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.StoreDriver = strings.TrimSpace(v.GetString(flagStoreDriver))
	cfg.Network = strings.TrimSpace(v.GetString(flagNetwork))
	cfg.PrivateKey = strings.TrimSpace(v.GetString(flagPrivateKey))
	cfg.Confirmations = v.GetUint64(flagConfirmations)
	cfg.AutoConnect = v.GetBool(flagAutoConnect)
	cfg.SnapshotHubURL = strings.TrimSpace(v.GetString(flagSnapshotHubURL))
	cfg.GovernanceAPIURL = strings.TrimSpace(v.GetString(flagGovernanceAPIURL))
	cfg.GovernanceAPISigningKey = v.GetString(flagGovernanceAPIKey)
	cfg.GovernanceAPIIssuer = strings.TrimSpace(v.GetString(flagGovernanceIssuer))
	cfg.AllowedOrigins = portal.ParseAllowedOrigins(v.GetString(flagAllowedOrigins))
	cfg.SessionSigningKey = v.GetString(flagJWTSigningKey)
	cfg.SessionIssuer = strings.TrimSpace(v.GetString(flagJWTIssuer))
	cfg.SessionCookieName = strings.TrimSpace(v.GetString(flagJWTCookieName))
	cfg.RequestTimeout = v.GetDuration(flagRequestTimeout)
	cfg.EventBuffer = v.GetInt(flagEventBuffer)

	cfg.RPCEndpoints = map[string]string{}
	if err := v.UnmarshalKey(configKeyRPCEndpoints, &cfg.RPCEndpoints); err != nil {
		return fmt.Errorf("%s: %w", configKeyRPCEndpoints, err)
	}
	cfg.Contracts = map[string]chain.ContractAddresses{}
	if err := v.UnmarshalKey(configKeyContracts, &cfg.Contracts); err != nil {
		return fmt.Errorf("%s: %w", configKeyContracts, err)
	}
	cfg.Organizations = map[string]portal.OrganizationConfig{}
	if err := v.UnmarshalKey(configKeyOrganization, &cfg.Organizations); err != nil {
		return fmt.Errorf("%s: %w", configKeyOrganization, err)
	}
	if rpcURL := strings.TrimSpace(v.GetString(flagRPCURL)); rpcURL != "" {
		network := strings.ToLower(cfg.Network)
		if network == "" {
			network = "mainnet"
		}
		cfg.RPCEndpoints[network] = rpcURL
	}

	return cfg.Validate()
}

func runPortal(ctx context.Context, cfg portal.Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	app, err := portal.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("portal init: %w", err)
	}
	return app.Run(ctx)
}
