// Package health publishes the watchdog state through the standard gRPC
// health service, so ground tooling can tell a live link from a dead one.
package health

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/meshpilot/internal/commander"
	"github.com/banshee-data/meshpilot/internal/monitoring"
	"github.com/banshee-data/meshpilot/internal/timeutil"
)

// CommanderService is the health service name that tracks the watchdog.
const CommanderService = "commander"

const (
	DefaultPeriod = 100 * time.Millisecond
	shutdownGrace = 2 * time.Second
)

var logf = monitoring.Component("health")

// StateSource reports the current watchdog state.
type StateSource interface {
	State() commander.State
}

// StatusFor maps a watchdog state to a serving status. A degraded link still
// serves: the node levels out but keeps power.
func StatusFor(s commander.State) healthpb.HealthCheckResponse_ServingStatus {
	switch s {
	case commander.Fresh, commander.Degraded:
		return healthpb.HealthCheckResponse_SERVING
	default:
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
}

// Reporter polls a StateSource and mirrors it into a grpc health server.
// Both the commander service and the overall ("") status follow the
// watchdog.
type Reporter struct {
	health *health.Server
	source StateSource
	clock  timeutil.Clock
	period time.Duration

	mu   sync.Mutex
	last healthpb.HealthCheckResponse_ServingStatus
}

// NewReporter starts out NOT_SERVING until the first Update.
func NewReporter(source StateSource, clock timeutil.Clock, period time.Duration) *Reporter {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if period <= 0 {
		period = DefaultPeriod
	}
	r := &Reporter{
		health: health.NewServer(),
		source: source,
		clock:  clock,
		period: period,
		last:   healthpb.HealthCheckResponse_NOT_SERVING,
	}
	r.set(r.last)
	return r
}

func (r *Reporter) set(status healthpb.HealthCheckResponse_ServingStatus) {
	r.health.SetServingStatus(CommanderService, status)
	r.health.SetServingStatus("", status)
}

// Update reads the state once and publishes it. Changes are logged.
func (r *Reporter) Update() healthpb.HealthCheckResponse_ServingStatus {
	state := r.source.State()
	status := StatusFor(state)

	r.mu.Lock()
	changed := status != r.last
	r.last = status
	r.mu.Unlock()

	if changed {
		logf("%s is now %s (watchdog %s)", CommanderService, status, state)
	}
	r.set(status)
	return status
}

// Health exposes the underlying health server, for registering on a shared
// grpc.Server.
func (r *Reporter) Health() healthpb.HealthServer { return r.health }

// Run updates every period until ctx is cancelled, then marks every service
// NOT_SERVING.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.period)
	defer ticker.Stop()

	r.Update()
	for {
		select {
		case <-ctx.Done():
			r.health.Shutdown()
			return ctx.Err()
		case <-ticker.C():
			r.Update()
		}
	}
}

// Serve runs a grpc server carrying only the health service on lis until
// ctx is cancelled.
func (r *Reporter) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, r.health)

	errCh := make(chan error, 1)
	go func() {
		logf("grpc health listening on %s", lis.Addr())
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("grpc health server: %w", err)
	case <-ctx.Done():
	}

	r.health.Shutdown()
	// open Watch streams keep GracefulStop waiting, so bound it
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownGrace):
		srv.Stop()
		<-stopped
	}
	<-errCh
	logf("grpc health server stopped")
	return nil
}

// ListenAndServe listens on the TCP address and calls Serve.
func (r *Reporter) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return r.Serve(ctx, lis)
}
