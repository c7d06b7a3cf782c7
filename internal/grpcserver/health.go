package grpcserver

import (
	"context"

	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/MarkoPoloResearchLab/governance/pkg/governance"
)

const (
	// HealthServiceSession reports whether the latest balance aggregation succeeded.
	HealthServiceSession = "governance.v1.Session"
	// HealthServiceOrganization reports whether the DAO organization is reachable.
	HealthServiceOrganization = "governance.v1.Organization"
)

// HealthReporter mirrors session events onto the gRPC health service.
type HealthReporter struct {
	health *health.Server
}

// NewHealthReporter starts every component as NOT_SERVING and the server itself as SERVING.
func NewHealthReporter(healthServer *health.Server) *HealthReporter {
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(HealthServiceSession, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(HealthServiceOrganization, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return &HealthReporter{health: healthServer}
}

// Run applies events until the channel closes or ctx ends.
func (reporter *HealthReporter) Run(ctx context.Context, events <-chan governance.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			reporter.Apply(event)
		}
	}
}

// Apply updates component health for one event.
func (reporter *HealthReporter) Apply(event governance.Event) {
	switch event.Kind {
	case governance.EventBalanceReady:
		reporter.health.SetServingStatus(HealthServiceSession, grpc_health_v1.HealthCheckResponse_SERVING)
	case governance.EventBalanceFailed:
		reporter.health.SetServingStatus(HealthServiceSession, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	case governance.EventAccountChange:
		if event.Account.IsZero() {
			reporter.health.SetServingStatus(HealthServiceSession, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		}
	case governance.EventOrganizationLoaded:
		reporter.health.SetServingStatus(HealthServiceOrganization, grpc_health_v1.HealthCheckResponse_SERVING)
	case governance.EventOrganizationFailed, governance.EventNetworkChange:
		reporter.health.SetServingStatus(HealthServiceOrganization, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
}

// Shutdown marks every service NOT_SERVING.
func (reporter *HealthReporter) Shutdown() {
	reporter.health.Shutdown()
}
