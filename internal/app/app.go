// Package app wires the hassws demo CLI runtime: configuration, logging,
// metrics, the hassclient session, the optional event sink, and the small
// HTTP surface (healthz + metrics).
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	appmetrics "hassws/internal/app/metrics"
	"hassws/internal/hassclient"
	"hassws/internal/security"
	"hassws/internal/sink"
	"hassws/internal/transport"
)

// App is the hassws demo runtime: it owns the session, the optional event
// sink, and the metrics HTTP server.
type App struct {
	cfg Config
	log Logger

	metrics *appmetrics.Registry
	session *hassclient.Session

	dbPool *pgxpool.Pool
	store  sink.Sink

	httpSrv *http.Server
}

// New constructs a fully wired App from cfg and log.
func New(cfg Config, log Logger) (*App, error) {
	if cfg.URL == "" || cfg.Token == "" {
		return nil, errors.New("app: HASSWS_URL and HASSWS_TOKEN are required")
	}
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	reg := appmetrics.NewRegistry()

	store, dbPool, err := newSink(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	sessCfg := hassclient.DefaultConfig()
	sessCfg.SocketTimeout = cfg.SocketTimeout
	sessCfg.ChannelCapacity = cfg.ChannelCapacity
	sessCfg.MaxCloseWait = cfg.MaxCloseWait
	sessCfg.GetStatesOnConnect = cfg.GetStatesOnConnect
	sessCfg.SubscribeEvents = cfg.SubscribeEvents
	sessCfg.SubscribeEventType = cfg.SubscribeEventType

	sess := hassclient.New(
		transport.WSDialer{},
		sessCfg,
		hassclient.WithLogger(log),
		hassclient.WithMetrics(reg),
	)

	mux := http.NewServeMux()
	registerHTTP(mux, reg)

	return &App{
		cfg:     cfg,
		log:     log,
		metrics: reg,
		session: sess,
		dbPool:  dbPool,
		store:   store,
		httpSrv: &http.Server{Addr: cfg.MetricsAddr, Handler: mux},
	}, nil
}

// Run connects, demonstrates the core operations, then archives events into
// the sink until ctx is cancelled (typically by an OS signal), and finally
// closes the session gracefully.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	a.log.Info("hassws.metrics_http.start", "addr", a.cfg.MetricsAddr)

	connectCtx, cancelConnect := context.WithTimeout(ctx, 30*time.Second)
	ok, err := a.session.Connect(connectCtx, a.cfg.URL, a.cfg.Token)
	cancelConnect()
	if err != nil {
		return fmt.Errorf("app: connect: %w", err)
	}
	if !ok {
		return errors.New("app: authentication rejected")
	}
	a.log.Info("hassws.connected", "fingerprint", security.Fingerprint(a.cfg.Token))

	a.demonstrateCoreOperations(ctx)

	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		a.archiveEventsUntilClosed(ctx)
	}()

	select {
	case <-ctx.Done():
		a.log.Info("hassws.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("hassws.metrics_http.fail", "err", err)
	}

	closeErr := a.session.Close()
	<-eventsDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("hassws.metrics_http.shutdown_fail", "err", err)
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}

	return closeErr
}

func (a *App) demonstrateCoreOperations(ctx context.Context) {
	if cfg, err := a.session.GetConfig(ctx); err != nil {
		a.log.Warn("hassws.demo.get_config.fail", "err", err)
	} else {
		a.log.Info("hassws.demo.get_config", "location_name", cfg.LocationName, "version", cfg.Version)
	}

	a.log.Info("hassws.demo.states_loaded", "count", len(a.session.States()))

	if ok := a.session.Ping(ctx, a.cfg.SocketTimeout); !ok {
		a.log.Warn("hassws.demo.ping.no_reply")
	}
}

func (a *App) archiveEventsUntilClosed(ctx context.Context) {
	for {
		rec, err := a.session.ReadEvent(ctx)
		if err != nil {
			if !errors.Is(err, hassclient.ErrClosed) {
				a.log.Debug("hassws.events.stop", "err", err)
			}
			return
		}
		if a.store == nil {
			continue
		}
		if err := a.store.Append(ctx, rec); err != nil {
			a.log.Warn("hassws.sink.append.fail", "err", err)
		}
	}
}

func newSink(ctx context.Context, cfg Config, log Logger) (sink.Sink, *pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		log.Info("hassws.sink.memory")
		return sink.NewMemory(0), nil, nil
	}

	pool, err := NewDBPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("app: connect sink database: %w", err)
	}

	st, err := sink.NewPostgres(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	log.Info("hassws.sink.postgres")
	return st, pool, nil
}
