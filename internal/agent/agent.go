// Package agent assembles the offline sync components from a Config and
// supervises them for the lifetime of the process.
package agent

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/actions"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/config"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/connectivity"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/db"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/logging"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/server"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/submit"
	syncengine "github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/sync"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/sync/queue"
)

// probeTimeout bounds a single reachability probe.
const probeTimeout = 5 * time.Second

// Agent owns every long-lived component.
type Agent struct {
	cfg config.Config

	DB       *db.DB
	Store    *queue.Store
	Probe    *connectivity.HTTPProbe
	Monitor  *connectivity.Monitor
	Engine   *syncengine.Engine
	Recorder *actions.Recorder
	Hub      *server.Hub
	Server   *server.Server

	cancelOnChange func()
}

// Tokens returns the credential source configured by cfg. A token file
// takes precedence over an inline token.
func Tokens(cfg config.Config) submit.TokenSource {
	if cfg.TokenFile != "" {
		return submit.FileToken(cfg.TokenFile)
	}
	return submit.StaticToken(cfg.Token)
}

// OpenStore opens the database and returns the queue store alone, for
// commands that only inspect or reset the queue.
func OpenStore(cfg config.Config) (*db.DB, *queue.Store, error) {
	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}
	return database, queue.NewStore(database.DB), nil
}

// New builds an Agent. The initial connectivity state comes from one probe
// of cfg.ProbeURL.
func New(ctx context.Context, cfg config.Config) (*Agent, error) {
	database, store, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		cfg:   cfg,
		DB:    database,
		Store: store,
		Probe: connectivity.NewHTTPProbe(cfg.ProbeURL, probeTimeout),
		Hub:   server.NewHub(),
	}
	a.Monitor = connectivity.NewMonitor(ctx, a.Probe)
	a.cancelOnChange = a.Monitor.OnChange(a.Hub.ConnectivityChanged)

	submitter := submit.NewHTTPSubmitter(cfg.APIURL, Tokens(cfg), cfg.SubmitTimeout)

	a.Engine = syncengine.NewEngine(store, submitter, a.Monitor, cfg.MaxAttempts)
	a.Engine.SetListener(a.Hub)

	a.Recorder = actions.NewRecorder(store, submitter, a.Monitor, actions.Options{
		RequireLocation: cfg.RequireLocation,
	})
	a.Recorder.SetListener(a.Hub)

	a.Server = server.New(server.Deps{
		Queue:        store,
		Engine:       a.Engine,
		Connectivity: a.Monitor,
		Recorder:     a.Recorder,
		Hub:          a.Hub,
	})

	logging.Info("Agent initialized", map[string]interface{}{
		"data_dir":     database.Path(),
		"api_url":      cfg.APIURL,
		"max_attempts": a.Engine.MaxAttempts(),
		"online":       a.Monitor.IsReachable(),
	})
	return a, nil
}

// Run starts auto sync, the connectivity probe loop unless the host pushes
// connectivity itself and, when a listen address is configured, the status
// server. It blocks until ctx is done or
// a component fails, then stops scheduling and waits for an in-flight drain.
func (a *Agent) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.ListenAddr != "" {
		g.Go(func() error {
			return a.Server.ListenAndServe(gctx, a.cfg.ListenAddr)
		})
	}

	// a host that pushes its own signal owns the state
	if !a.cfg.HostConnectivity {
		g.Go(func() error {
			return a.Monitor.Watch(gctx, a.Probe, a.cfg.ProbeInterval)
		})
	}

	g.Go(func() error {
		a.Engine.StartAutoSync(gctx, a.cfg.SyncInterval)
		<-gctx.Done()
		a.Engine.StopAutoSync()
		a.Engine.Wait()
		return nil
	})

	return g.Wait()
}

// Close releases every resource, combining the errors.
func (a *Agent) Close() error {
	if a.cancelOnChange != nil {
		a.cancelOnChange()
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
	return multierr.Combine(
		a.DB.Checkpoint(),
		a.DB.Close(),
	)
}
