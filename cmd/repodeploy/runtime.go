package main

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/example/repodeploy/internal/config"
	"github.com/example/repodeploy/internal/engine"
	"github.com/example/repodeploy/internal/notify"
	"github.com/example/repodeploy/internal/pipeline"
	"github.com/example/repodeploy/internal/probe"
	"github.com/example/repodeploy/internal/runstore"
	"github.com/example/repodeploy/internal/workspace"
)

// deployRuntime is the wired pipeline plus the resources that must be closed
// after use.
type deployRuntime struct {
	controller *pipeline.Controller
	store      *runstore.Store
}

func (r *deployRuntime) Close() {
	if r.store != nil {
		_ = r.store.Close()
	}
}

func newRuntime(opts *config.Options, log logr.Logger) (*deployRuntime, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	rt := &deployRuntime{}
	sinks := []notify.Sink{notify.LogSink(log.WithName("events"))}
	var recorder pipeline.Recorder
	if opts.StatePath != "" {
		store, err := runstore.Open(opts.StatePath)
		if err != nil {
			return nil, fmt.Errorf("open run ledger: %w", err)
		}
		rt.store = store
		recorder = store
		sinks = append(sinks, store.Sink(log.WithName("runstore")))
	}

	engineOpts := engine.Options{
		Command: opts.EngineCommand,
		Timeout: opts.BuildTimeout,
		Log:     log.WithName("engine"),
	}
	if opts.Preflight {
		engineOpts.Pinger = engine.DockerPinger{}
	}
	orchestrator, err := engine.New(engineOpts)
	if err != nil {
		rt.Close()
		return nil, err
	}

	controller, err := pipeline.New(pipeline.Config{
		Workspace:  workspace.New(opts.Workspace),
		Fetcher:    workspace.GitFetcher{},
		Deployer:   orchestrator,
		Prober:     probe.New(opts.ProbeAttempts, opts.ProbeInterval, opts.ProbeRequestTimeout, log.WithName("probe")),
		ProxyPort:  opts.ProxyPort,
		EventDelay: opts.EventDelay,
		Sinks:      sinks,
		Recorder:   recorder,
		Log:        log.WithName("pipeline"),
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.controller = controller
	return rt, nil
}
