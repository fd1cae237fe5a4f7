package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/connectmesh-bridge/internal/audit"
	"github.com/nerrad567/connectmesh-bridge/internal/auth"
	"github.com/nerrad567/connectmesh-bridge/internal/bridge"
	"github.com/nerrad567/connectmesh-bridge/internal/cloud"
	"github.com/nerrad567/connectmesh-bridge/internal/device"
	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/config"
	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/database"
	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/connectmesh-bridge/internal/store"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight
// requests before dropping them.
const gracefulShutdownTimeout = 10 * time.Second

// CloudAPI is the slice of the cloud client the API server consumes.
// Declared here so tests can substitute a fake without a cloud account.
type CloudAPI interface {
	HealthCheck(ctx context.Context) error
	Networks(ctx context.Context) ([]cloud.Network, error)
	DeviceStatus(ctx context.Context, deviceID string) (*cloud.DeviceStatus, error)
	SetPower(ctx context.Context, deviceID string, on bool, opts *cloud.CommandOptions) error
	SetLightness(ctx context.Context, deviceID string, lightness float64, opts *cloud.CommandOptions) error
	SetTemperature(ctx context.Context, deviceID string, temperature int, opts *cloud.CommandOptions) error
	SetHSL(ctx context.Context, deviceID string, hue, saturation, lightness float64, opts *cloud.CommandOptions) error
	Groups(ctx context.Context) ([]cloud.Group, error)
	GroupsForNetwork(ctx context.Context, networkID string) ([]cloud.Group, error)
	SetGroupPower(ctx context.Context, groupID string, on bool, opts *cloud.CommandOptions) error
	SetGroupLightness(ctx context.Context, groupID string, lightness float64, opts *cloud.CommandOptions) error
	Scenes(ctx context.Context) ([]cloud.Scene, error)
	RecallScene(ctx context.Context, sceneID, target string, opts *cloud.CommandOptions) error
	Gateways(ctx context.Context) ([]cloud.Gateway, error)
	PingGateway(ctx context.Context, gatewayID string) error
}

// BridgeMetrics exposes entity bridge counters for the metrics endpoint.
// An interface rather than *bridge.Bridge so the API has no startup-order
// dependency on the bridge.
type BridgeMetrics interface {
	GetMetrics() bridge.Metrics
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Logger      *logging.Logger
	Registry    *device.Registry
	Cloud       CloudAPI
	MQTT        *mqtt.Client     // optional: WebSocket relay + health
	DB          *database.DB     // optional: health + pool stats
	Networks    *store.NetworkRepository
	Exports     *store.ExportRepository
	Audit       audit.Repository // optional: audit trail disabled when nil
	Influx      *influxdb.Client // optional: history endpoint disabled when nil
	Bridge      BridgeMetrics    // optional: bridge counters in metrics
	ExternalHub *Hub             // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server for the mesh bridge.
//
// It manages the HTTP listener, routes, middleware, WebSocket hub and the
// operator's authentication state. The server is created with New() and
// started with Start().
type Server struct {
	cfg          config.APIConfig
	wsCfg        config.WebSocketConfig
	secCfg       config.SecurityConfig
	logger       *logging.Logger
	registry     *device.Registry
	cloud        CloudAPI
	mqtt         *mqtt.Client
	db           *database.DB
	networks     *store.NetworkRepository
	exports      *store.ExportRepository
	auditRepo    audit.Repository
	influx       *influxdb.Client
	bridge       BridgeMetrics
	version      string
	startTime    time.Time
	server       *http.Server
	hub          *Hub
	externalHub  bool               // true if hub was injected externally
	cancel       context.CancelFunc // cancels background goroutines on Close()
	sessions     *auth.SessionStore
	wsTickets    *ticketStore
	loginLimiter *rateLimiter
	auditCh      chan *audit.AuditLog
}

// New wires a Server from its dependencies. Logger, registry and cloud
// client are mandatory; every other dependency is optional, and leaving
// one nil switches the matching feature off rather than failing startup.
// Nothing listens until Start is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("logger is required")
	case deps.Registry == nil:
		return nil, errors.New("device registry is required")
	case deps.Cloud == nil:
		return nil, errors.New("cloud client is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		registry:  deps.Registry,
		cloud:     deps.Cloud,
		mqtt:      deps.MQTT,
		db:        deps.DB,
		networks:  deps.Networks,
		exports:   deps.Exports,
		auditRepo: deps.Audit,
		influx:    deps.Influx,
		bridge:    deps.Bridge,
		version:   deps.Version,
		startTime: time.Now(),
		sessions:  auth.NewSessionStore(),
		wsTickets: newTicketStore(),
	}

	if deps.Security.RateLimit.Enabled {
		s.loginLimiter = newRateLimiter(deps.Security.RateLimit.RequestsPerMinute)
	}
	if deps.Audit != nil {
		s.auditCh = make(chan *audit.AuditLog, auditChanSize)
	}

	// An injected hub means another component broadcasts through it too,
	// so its lifecycle belongs to whoever created it.
	if deps.ExternalHub != nil {
		s.externalHub = true
		s.hub = deps.ExternalHub
	}

	return s, nil
}

// Start brings the server up: WebSocket hub, housekeeping goroutines,
// the MQTT state relay, and finally the HTTP listener, which runs in the
// background until Close.
func (s *Server) Start(ctx context.Context) error {
	// Close must be able to stop the background goroutines without
	// cancelling the caller's context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	// Expired WS tickets and consumed refresh sessions need pruning.
	go s.cleanupLoop(srvCtx)

	if s.auditCh != nil {
		go s.runAuditWriter(srvCtx)
	}

	// Device state changes reach WebSocket clients through this relay.
	if err := s.subscribeStateUpdates(); err != nil {
		s.logger.Warn("state update subscription failed, WebSocket will not broadcast", "error", err)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	go s.serve()

	return nil
}

// serve runs the listener until Close unwinds it. ErrServerClosed is the
// normal shutdown signal, not an error worth logging.
func (s *Server) serve() {
	var err error
	if s.cfg.TLS.Enabled {
		s.logger.Info("API server listening with TLS", "address", s.server.Addr, "cert", s.cfg.TLS.CertFile)
		err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	} else {
		s.logger.Info("API server listening", "address", s.server.Addr)
		err = s.server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("API server error", "error", err)
	}
}

// Close stops the background goroutines and drains in-flight requests,
// waiting at most gracefulShutdownTimeout before giving up on them.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	s.logger.Info("API server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the listener has been started. The context
// lets an aggregate health sweep bail out early.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}

// cleanupLoop prunes expired WebSocket tickets and refresh sessions until
// the context is cancelled.
func (s *Server) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.wsTickets.cleanExpired()
			if n := s.sessions.PruneExpired(); n > 0 {
				s.logger.Debug("pruned expired refresh sessions", "count", n)
			}
		}
	}
}
