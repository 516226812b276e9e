// goslp daemon -- Service Location Protocol v2 agent (RFC 2608/2614).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/urbasus/goslp/internal/config"
	slpmetrics "github.com/urbasus/goslp/internal/metrics"
	"github.com/urbasus/goslp/internal/netio"
	"github.com/urbasus/goslp/internal/server"
	"github.com/urbasus/goslp/internal/slp"
	appversion "github.com/urbasus/goslp/internal/version"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// ageInterval is how often the registration database and Known-DA
// tracker liveness sweeps run.
const ageInterval = 10 * time.Second

// discoveryRetry is how often active DA discovery is retried when the
// Known-DA tracker is empty (spec.md §4.4 "Active DA discovery").
const discoveryRetry = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("goslp starting",
		slog.String("version", appversion.Version),
		slog.String("admin_addr", cfg.Admin.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.Bool("enable_da", cfg.Agent.EnableDA),
	)

	reg := prometheus.NewRegistry()
	collector := slpmetrics.NewCollector(reg)

	if err := runServers(cfg, collector, reg, logger, *configPath, logLevel); err != nil {
		logger.Error("goslp exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("goslp stopped")
	return 0
}

// runServers wires the agent, netio listeners, admin API, and metrics
// endpoint together and runs them under a signal-aware errgroup until
// shutdown.
func runServers(
	cfg *config.Config,
	collector *slpmetrics.Collector,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	agentCfg, err := buildAgentConfig(cfg.Agent)
	if err != nil {
		return fmt.Errorf("build agent config: %w", err)
	}

	unicastConn, err := netio.NewUnicastListener(gCtx, netip.IPv4Unspecified(), "")
	if err != nil {
		return fmt.Errorf("create unicast socket: %w", err)
	}
	defer closeConn(unicastConn, "unicast", logger)

	multicastGroup, err := netip.ParseAddr(slp.MulticastGroupV4)
	if err != nil {
		return fmt.Errorf("parse multicast group: %w", err)
	}
	multicastConn, err := netio.NewMulticastListener(gCtx, multicastGroup, "")
	if err != nil {
		return fmt.Errorf("join multicast group: %w", err)
	}
	defer closeConn(multicastConn, "multicast", logger)

	sender := netio.NewSender(unicastConn, logger)

	role := slp.RoleSA | slp.RoleUA
	if cfg.Agent.EnableDA {
		role |= slp.RoleDA
	}

	keys := slp.NewStaticKeyStore()
	agent := slp.NewAgent(role, agentCfg, logger, sender, keys, uint32(time.Now().Unix())) //nolint:gosec // wraps in 2106 like the wire format itself

	if err := loadStaticRegistrations(agent, cfg.Agent.StaticRegistrationFile, logger); err != nil {
		return fmt.Errorf("load static registrations: %w", err)
	}
	seedStaticDAs(agent, agentCfg.DAAddresses)

	unicastLn := netio.NewListenerFromConn(unicastConn)
	multicastLn := netio.NewListenerFromConn(multicastConn)
	receiver := netio.NewReceiver(agent, sender, logger)
	g.Go(func() error {
		return receiver.Run(gCtx, unicastLn, multicastLn)
	})

	_, adminHandler := server.New(agent, logger)
	metricsHandler := newMetricsHandler(cfg.Metrics, reg)

	adminHTTP := &http.Server{Addr: cfg.Admin.Addr, Handler: adminHandler, ReadHeaderTimeout: 10 * time.Second}
	metricsHTTP := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsHandler, ReadHeaderTimeout: 10 * time.Second}

	startHTTPServers(gCtx, g, cfg, adminHTTP, metricsHTTP, logger)
	startDaemonGoroutines(gCtx, g, configPath, logLevel, agent, logger)

	g.Go(func() error {
		runAgingLoop(gCtx, agent, sender, collector, logger)
		return nil
	})

	g.Go(func() error {
		runActiveDiscovery(gCtx, agent, sender, logger)
		return nil
	})

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, adminHTTP, metricsHTTP)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

func buildAgentConfig(cfg config.AgentConfig) (slp.Config, error) {
	daAddrs, err := cfg.DAAddrs()
	if err != nil {
		return slp.Config{}, err
	}
	return slp.Config{
		UseScopes:       cfg.UseScopes,
		DAAddresses:     daAddrs,
		IsBroadcastOnly: cfg.IsBroadcastOnly,
		MTU:             cfg.MTU,
		TraceMsg:        cfg.TraceMsg,
		TraceDrop:       cfg.TraceDrop,
		TraceReg:        cfg.TraceReg,
		TraceDATraffic:  cfg.TraceDATraffic,
		SecurityEnabled: cfg.SecurityEnabled,
		CheckSourceAddr: cfg.CheckSourceAddr,
		Heartbeat:       cfg.Heartbeat,
	}, nil
}

func closeConn(conn interface{ Close() error }, name string, logger *slog.Logger) {
	if err := conn.Close(); err != nil {
		logger.Warn("failed to close socket", slog.String("socket", name), slog.String("error", err.Error()))
	}
}

// -------------------------------------------------------------------------
// HTTP servers
// -------------------------------------------------------------------------

func startHTTPServers(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	adminSrv *http.Server,
	metricsSrv *http.Server,
	logger *slog.Logger,
) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("admin server listening", slog.String("addr", cfg.Admin.Addr))
		return listenAndServe(ctx, &lc, adminSrv, cfg.Admin.Addr)
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsHandler(cfg config.MetricsConfig, reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

// -------------------------------------------------------------------------
// Registration-database and Known-DA liveness sweeps
// -------------------------------------------------------------------------

// runAgingLoop periodically ages out expired registrations, sweeps
// Known-DA liveness, drains the re-register queue to any DA discovered or
// restarted since the last tick, and publishes the resulting counts to
// Prometheus (spec.md §5: the event loop's timer wheel).
func runAgingLoop(ctx context.Context, agent *slp.Agent, sender *netio.Sender, collector *slpmetrics.Collector, logger *slog.Logger) {
	ticker := time.NewTicker(ageInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			agent.Age(time.Now())
			if err := agent.Reregister(ctx, sendMessageFn(sender)); err != nil {
				logger.Warn("re-registration failed", slog.String("error", err.Error()))
			}
			publishRegistrationMetrics(agent, collector)
		}
	}
}

// sendMessageFn adapts a netio.Sender into the encode-and-unicast
// callback Agent.Reregister expects.
func sendMessageFn(sender *netio.Sender) func(ctx context.Context, addr netip.Addr, msg slp.Message) error {
	return func(ctx context.Context, addr netip.Addr, msg slp.Message) error {
		payload, err := slp.Encode(msg)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		return sender.SendUnicast(ctx, addr, payload)
	}
}

func publishRegistrationMetrics(agent *slp.Agent, collector *slpmetrics.Collector) {
	type key struct{ scope, source string }
	counts := make(map[key]int)
	for _, reg := range agent.DB.Snapshot() {
		counts[key{reg.Reg.ScopeList, sourceTagString(reg.Source)}]++
	}
	collector.Registrations.Reset()
	for k, n := range counts {
		collector.SetRegistrations(k.scope, k.source, n)
	}

	daScopes := make(map[string]int)
	for _, da := range agent.KnownDAs.Snapshot() {
		daScopes[da.ScopeList]++
	}
	collector.KnownDAs.Reset()
	for scope, n := range daScopes {
		collector.SetKnownDAs(scope, n)
	}
}

func sourceTagString(s slp.SourceTag) string {
	switch s {
	case slp.SourceRemote:
		return "remote"
	case slp.SourceLocal:
		return "local"
	case slp.SourceStatic:
		return "static"
	default:
		return "unknown"
	}
}

// -------------------------------------------------------------------------
// Active DA discovery (spec.md §4.4)
// -------------------------------------------------------------------------

// runActiveDiscovery issues a multicast SrvRqst for service:directory-agent
// whenever the Known-DA tracker is empty, retrying periodically until at
// least one DA is found. A DA answers with a unicast DAAdvert, which the
// receiver routes to Agent.HandleInbound -> handleDAAdvert like any other
// inbound message; this loop only drives the request side and has no reply
// correlation of its own.
func runActiveDiscovery(ctx context.Context, agent *slp.Agent, sender *netio.Sender, logger *slog.Logger) {
	ticker := time.NewTicker(discoveryRetry)
	defer ticker.Stop()

	discover := func() {
		if agent.KnownDAs.Len() > 0 {
			return
		}
		if err := sendDiscoveryRequest(ctx, agent, sender); err != nil {
			logger.Debug("active DA discovery failed", slog.String("error", err.Error()))
		}
	}

	discover()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			discover()
		}
	}
}

// seedStaticDAs injects the configured static DA addresses into the
// Known-DA tracker directly, bypassing active/passive discovery
// (spec.md §4.4 "static configuration"). Bootstamp 0 means any real
// DAAdvert the DA later sends, carrying its actual boot time, will
// update this entry through the normal Observe rule.
func seedStaticDAs(agent *slp.Agent, addrs []netip.Addr) {
	now := time.Now()
	for _, addr := range addrs {
		url := fmt.Sprintf("service:directory-agent://%s", addr)
		agent.KnownDAs.Observe(slp.ErrNone, addr, 0, agent.Config.UseScopes, url, "", now)
	}
}

func sendDiscoveryRequest(ctx context.Context, agent *slp.Agent, sender *netio.Sender) error {
	group := slp.SubstituteBroadcast(slp.MulticastGroup(netip.IPv4Unspecified()), agent.Config.IsBroadcastOnly)
	msg := slp.Message{
		Header: slp.Header{Version: slp.Version, Function: slp.FuncSrvRqst, Flags: slp.FlagMulticast, XID: newXID(), LanguageTag: "en"},
		SrvRqst: &slp.SrvRqstBody{
			ServiceType: "service:directory-agent",
			ScopeList:   agent.Config.UseScopes,
		},
	}
	payload, err := slp.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode discovery request: %w", err)
	}
	return sender.SendMulticast(ctx, group, payload)
}

var xidMu sync.Mutex
var xidCounter uint16

// newXID returns a process-unique transaction id for outbound requests.
// Wraps at 2^16; collisions across live in-flight requests are
// vanishingly unlikely given the dispatcher's sub-minute retry windows.
func newXID() uint16 {
	xidMu.Lock()
	defer xidMu.Unlock()
	xidCounter++
	return xidCounter
}

// -------------------------------------------------------------------------
// Systemd integration
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

func startDaemonGoroutines(
	ctx context.Context,
	g *errgroup.Group,
	configPath string,
	logLevel *slog.LevelVar,
	agent *slp.Agent,
	logger *slog.Logger,
) {
	g.Go(func() error {
		return runWatchdog(ctx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(ctx, sigHUP, configPath, logLevel, agent, logger)
		return nil
	})
}

// -------------------------------------------------------------------------
// SIGHUP reload -- log level + static registration file
// -------------------------------------------------------------------------

func handleSIGHUP(
	ctx context.Context,
	sigHUP <-chan os.Signal,
	configPath string,
	logLevel *slog.LevelVar,
	agent *slp.Agent,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, agent, logger)
		}
	}
}

func reloadConfig(configPath string, logLevel *slog.LevelVar, agent *slp.Agent, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings", slog.String("error", err.Error()))
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)

	if err := loadStaticRegistrations(agent, newCfg.Agent.StaticRegistrationFile, logger); err != nil {
		logger.Error("failed to reload static registration file", slog.String("error", err.Error()))
	}
}

// loadStaticRegistrations reads path (if set) and reconciles its entries
// into the agent's registration database as SourceStatic, removing any
// previously loaded static entry no longer present in the file
// (spec.md §6 "Persisted state").
func loadStaticRegistrations(agent *slp.Agent, path string, logger *slog.Logger) error {
	if path == "" {
		agent.DB.ReplaceSource(slp.SourceStatic, nil)
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	records, err := slp.ParseStaticRegistrations(f)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	now := time.Now()
	regs := make([]slp.Registration, 0, len(records))
	for _, rec := range records {
		regs = append(regs, slp.Registration{
			Reg:       rec.ToSrvReg(),
			Source:    slp.SourceStatic,
			Inserted:  now,
			ExpiresAt: now.Add(time.Duration(rec.Lifetime) * time.Second),
		})
	}

	agent.DB.ReplaceSource(slp.SourceStatic, regs)
	logger.Info("loaded static registrations", slog.String("path", path), slog.Int("count", len(regs)))
	return nil
}

// -------------------------------------------------------------------------
// Graceful shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(ctx context.Context, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// Config + logging setup
// -------------------------------------------------------------------------

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
