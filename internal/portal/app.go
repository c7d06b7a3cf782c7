// Package portal wires the governance services, the chain connection and the operator
// surfaces into one daemon.
package portal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/MarkoPoloResearchLab/governance/internal/activity"
	"github.com/MarkoPoloResearchLab/governance/internal/chain"
	"github.com/MarkoPoloResearchLab/governance/internal/governanceapi"
	"github.com/MarkoPoloResearchLab/governance/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/governance/internal/httpapi"
	"github.com/MarkoPoloResearchLab/governance/internal/snapshot"
	"github.com/MarkoPoloResearchLab/governance/pkg/governance"
)

const shutdownTimeout = 5 * time.Second

// Option configures App construction.
type Option func(*appOptions)

type appOptions struct {
	dial chain.DialFunc
}

// WithDialer replaces the Ethereum dialer.
func WithDialer(dial chain.DialFunc) Option {
	return func(options *appOptions) {
		if dial != nil {
			options.dial = dial
		}
	}
}

// App is a fully wired portal daemon.
type App struct {
	cfg    Config
	logger *zap.Logger

	bus         *governance.EventBus
	connections *chain.Connections
	provider    *chain.Provider
	reactor     *governance.SessionReactor
	journal     *activity.Journal
	closeStore  func()

	httpServer   *http.Server
	httpListener net.Listener
	grpcServer   *grpc.Server
	grpcListener net.Listener
	health       *grpcserver.HealthReporter
}

// New validates cfg and builds every component. Listeners are bound immediately.
func New(ctx context.Context, cfg Config, logger *zap.Logger, options ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", governance.ErrInvalidServiceConfig)
	}
	collected := appOptions{dial: chain.DialEthereum}
	for _, option := range options {
		if option != nil {
			option(&collected)
		}
	}

	app := &App{cfg: cfg, logger: logger, bus: governance.NewEventBus()}
	if err := app.build(ctx, collected); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (app *App) build(ctx context.Context, options appOptions) error {
	cfg := app.cfg
	store, closeStore, err := openJournalStore(ctx, cfg)
	if err != nil {
		return err
	}
	app.closeStore = closeStore
	journal, err := activity.NewJournal(app.logger, store)
	if err != nil {
		return err
	}
	app.journal = journal
	logged := governance.WithOperationLogger(journal)

	book, err := chain.NewAddressBook(cfg.Contracts)
	if err != nil {
		return fmt.Errorf("address book: %w", err)
	}
	connections, err := chain.NewConnections(cfg.RPCEndpoints, options.dial)
	if err != nil {
		return fmt.Errorf("rpc endpoints: %w", err)
	}
	app.connections = connections
	signer, err := chain.NewKeySigner(cfg.PrivateKey)
	if err != nil {
		return err
	}
	binder, err := chain.NewBinder(connections, book, signer.Transactor)
	if err != nil {
		return err
	}
	network := governance.Network(cfg.Network)
	provider, err := chain.NewProvider(chain.ProviderDependencies{
		Connections:   connections,
		Binder:        binder,
		Signer:        signer,
		Publisher:     app.bus,
		Network:       network,
		Confirmations: cfg.Confirmations,
	})
	if err != nil {
		return err
	}
	app.provider = provider

	directory, err := cfg.OrganizationDirectory()
	if err != nil {
		return err
	}
	aggregator, err := governance.NewBalanceAggregator(binder, logged)
	if err != nil {
		return err
	}
	wallets := governance.NewWalletStore()
	reactor, err := governance.NewSessionReactor(governance.SessionDependencies{
		Source:        provider,
		Aggregator:    aggregator,
		Wallets:       wallets,
		Publisher:     app.bus,
		Organizations: chain.NewOrganizationConnector(connections),
		Directory:     directory,
		Network:       network,
	}, logged)
	if err != nil {
		return err
	}
	app.reactor = reactor

	navigator := httpapi.NewNavigator()
	wrapping, err := governance.NewWrappingService(governance.WrappingDependencies{
		Binder:    binder,
		Wallets:   wallets,
		Publisher: app.bus,
		Tracker:   provider,
		Navigator: navigator,
	}, logged)
	if err != nil {
		return err
	}

	snapshotClient, err := snapshot.NewClient(snapshot.Config{HubURL: cfg.SnapshotHubURL})
	if err != nil {
		return err
	}
	votes, err := governance.NewVoteFlow(snapshotClient, provider, app.bus, logged)
	if err != nil {
		return err
	}
	apiClient, err := governanceapi.NewClient(governanceapi.Config{
		BaseURL:    cfg.GovernanceAPIURL,
		SigningKey: cfg.GovernanceAPISigningKey,
		Issuer:     cfg.GovernanceAPIIssuer,
		Accounts:   provider,
	})
	if err != nil {
		return err
	}
	proposals, err := governance.NewProposalPageController(governance.ProposalPageDependencies{
		API:       apiClient,
		Votes:     votes,
		Accounts:  provider,
		Navigator: navigator,
	}, logged)
	if err != nil {
		return err
	}

	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return fmt.Errorf("session validator: %w", err)
	}
	httpConfig := httpapi.Config{AllowedOrigins: cfg.AllowedOrigins, RequestTimeout: cfg.RequestTimeout}
	handler, err := httpapi.NewHandler(httpapi.Dependencies{
		Logger:    app.logger,
		Session:   provider,
		Wallets:   wallets,
		Wrapping:  wrapping,
		Proposals: proposals,
		Activity:  journal,
		Navigator: navigator,
	}, httpConfig)
	if err != nil {
		return err
	}
	app.httpServer = &http.Server{
		Handler:           httpapi.NewRouter(httpConfig, handler, validator),
		ReadHeaderTimeout: 10 * time.Second,
	}

	portalService, err := grpcserver.NewPortalServiceServer(provider, wallets, wrapping, journal)
	if err != nil {
		return err
	}
	healthServer := health.NewServer()
	app.grpcServer = grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(app.grpcServer, healthServer)
	grpcserver.RegisterPortalServiceServer(app.grpcServer, portalService)
	app.health = grpcserver.NewHealthReporter(healthServer)

	if app.httpListener, err = net.Listen("tcp", cfg.HTTPListenAddr); err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	if app.grpcListener, err = net.Listen("tcp", cfg.GRPCListenAddr); err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	return nil
}

// HTTPAddr returns the bound HTTP address.
func (app *App) HTTPAddr() string {
	if app.httpListener == nil {
		return ""
	}
	return app.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC address.
func (app *App) GRPCAddr() string {
	if app.grpcListener == nil {
		return ""
	}
	return app.grpcListener.Addr().String()
}

// Run serves until ctx ends or a component fails. A fatal session error (unknown
// network) stops the daemon.
func (app *App) Run(ctx context.Context) error {
	defer app.Close()
	group, groupCtx := errgroup.WithContext(ctx)
	sessionEvents := app.bus.SubscribeKinds(app.cfg.EventBuffer, governance.SessionEventKinds()...)
	healthEvents := app.bus.Subscribe(app.cfg.EventBuffer)

	group.Go(func() error {
		err := app.reactor.Run(groupCtx, sessionEvents)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		app.health.Run(groupCtx, healthEvents)
		return nil
	})
	group.Go(func() error {
		return app.serveHTTP(groupCtx)
	})
	group.Go(func() error {
		return app.serveGRPC(groupCtx)
	})
	if app.cfg.AutoConnect {
		group.Go(func() error {
			if err := app.provider.Connect(groupCtx); err != nil {
				app.logger.Warn("auto connect failed", zap.Error(err))
			}
			return nil
		})
	}
	return group.Wait()
}

func (app *App) serveHTTP(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("http api listening", zap.String("addr", app.HTTPAddr()))
		errCh <- app.httpServer.Serve(app.httpListener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := app.httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			app.logger.Warn("http shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (app *App) serveGRPC(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("gRPC server starting", zap.String("listen_addr", app.GRPCAddr()))
		errCh <- app.grpcServer.Serve(app.grpcListener)
	}()

	select {
	case <-ctx.Done():
		app.logger.Info("shutdown requested")
		app.health.Shutdown()
		app.grpcServer.GracefulStop()
		if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return serveErr
		}
		return nil
	case serveErr := <-errCh:
		if errors.Is(serveErr, grpc.ErrServerStopped) {
			return nil
		}
		return serveErr
	}
}

// Close releases every resource. It is safe to call more than once.
func (app *App) Close() {
	if app.provider != nil {
		app.provider.Close()
		app.provider = nil
	}
	if app.bus != nil {
		app.bus.Close()
	}
	if app.connections != nil {
		app.connections.Close()
		app.connections = nil
	}
	if app.httpListener != nil {
		_ = app.httpListener.Close()
	}
	if app.grpcListener != nil {
		_ = app.grpcListener.Close()
	}
	if app.closeStore != nil {
		app.closeStore()
		app.closeStore = nil
	}
}
