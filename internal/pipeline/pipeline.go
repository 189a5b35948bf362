// Package pipeline drives one repository from URL to a reachable deployment:
// admission, fetch, structural validation, detection, synthesis, launch, and
// readiness probing, with cleanup on any terminal failure.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/example/repodeploy/internal/admission"
	"github.com/example/repodeploy/internal/detect"
	"github.com/example/repodeploy/internal/engine"
	"github.com/example/repodeploy/internal/layout"
	"github.com/example/repodeploy/internal/notify"
	"github.com/example/repodeploy/internal/runstore"
	"github.com/example/repodeploy/internal/synth"
	"github.com/example/repodeploy/internal/workspace"
)

// State is a pipeline state. Runs only move forward, ending in Ready or
// Failed.
type State string

const (
	Idle         State = "Idle"
	Validating   State = "Validating"
	Detecting    State = "Detecting"
	Synthesizing State = "Synthesizing"
	Deploying    State = "Deploying"
	Probing      State = "Probing"
	Ready        State = "Ready"
	Failed       State = "Failed"
)

var stateMessages = map[State]string{
	Validating:   "Validating repository structure",
	Detecting:    "Detecting stack technologies",
	Synthesizing: "Generating build and orchestration files",
	Deploying:    "Building and launching containers",
	Probing:      "Waiting for the application to respond",
}

// Deployer launches a synthesized descriptor.
type Deployer interface {
	Deploy(ctx context.Context, root, project string) (engine.Outcome, error)
}

// Waiter blocks until url is reachable or its retry budget runs out.
type Waiter interface {
	Wait(ctx context.Context, url string) (int, error)
}

// Recorder persists run rows. *runstore.Store satisfies it.
type Recorder interface {
	CreateRun(ctx context.Context, run runstore.Run) error
	UpdateRun(ctx context.Context, runID string, u runstore.Update) error
}

// Config wires the collaborators of a Controller.
type Config struct {
	Workspace *workspace.Workspace
	Fetcher   workspace.Fetcher
	Deployer  Deployer
	Prober    Waiter
	// ProxyPort is the host port the reverse proxy publishes and the prober
	// checks.
	ProxyPort int
	// EventDelay paces informative sub-events through the ordered queue.
	EventDelay time.Duration
	// Sinks receive the events of every run.
	Sinks    []notify.Sink
	Recorder Recorder
	// Remove deletes a failed run's directory. Defaults to workspace.Remove.
	Remove func(dir string) error
	Clock  clock.Clock
	Log    logr.Logger
}

// Controller runs pipelines. It holds no per-run state and may run several
// pipelines concurrently.
type Controller struct {
	cfg Config
}

// New validates cfg and returns a Controller.
func New(cfg Config) (*Controller, error) {
	switch {
	case cfg.Workspace == nil:
		return nil, errors.New("pipeline: workspace is required")
	case cfg.Fetcher == nil:
		return nil, errors.New("pipeline: fetcher is required")
	case cfg.Deployer == nil:
		return nil, errors.New("pipeline: deployer is required")
	case cfg.Prober == nil:
		return nil, errors.New("pipeline: prober is required")
	case cfg.ProxyPort < 1 || cfg.ProxyPort > 65535:
		return nil, fmt.Errorf("pipeline: proxy port %d out of range", cfg.ProxyPort)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Remove == nil {
		cfg.Remove = workspace.Remove
	}
	return &Controller{cfg: cfg}, nil
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Request starts one run.
type Request struct {
	RepoURL string
	// RunID is assigned when empty.
	RunID string
	// Sinks receive this run's events in addition to the configured ones.
	Sinks []notify.Sink
}

// Result is the terminal outcome of a run.
type Result struct {
	RunID   string
	RunDir  string
	State   State
	Kind    FailureKind
	URL     string
	Layout  layout.RepoLayout
	Profile detect.StackProfile
	Files   []string
	Err     error
}

type run struct {
	c       *Controller
	id      string
	log     logr.Logger
	stream  *notify.Stream
	state   State
	entered time.Time
	res     Result
}

// Run executes the pipeline for req and returns once it reaches Ready or
// Failed. All events have been delivered to the sinks when Run returns.
func (c *Controller) Run(ctx context.Context, req Request) Result {
	id := req.RunID
	if id == "" {
		id = NewRunID()
	}
	sinks := append(append([]notify.Sink{}, c.cfg.Sinks...), req.Sinks...)
	r := &run{
		c:       c,
		id:      id,
		log:     c.cfg.Log.WithValues("run", id),
		stream:  notify.NewStream(id, c.cfg.Clock, sinks...),
		state:   Idle,
		entered: c.cfg.Clock.Now(),
		res:     Result{RunID: id, State: Idle},
	}
	defer r.stream.Close()

	if c.cfg.Recorder != nil {
		if err := c.cfg.Recorder.CreateRun(ctx, runstore.Run{ID: id, RepoURL: req.RepoURL, State: string(Idle)}); err != nil {
			r.log.Error(err, "record run")
		}
	}
	if err := r.execute(ctx, req.RepoURL); err != nil {
		r.fail(err)
	}
	return r.res
}

func (r *run) execute(ctx context.Context, rawURL string) error {
	u, err := admission.Check(rawURL)
	if err != nil {
		return err
	}
	repo := admission.RepoName(u)
	r.log = r.log.WithValues("repo", repo)

	dir, err := r.c.cfg.Workspace.Create(repo)
	if err != nil {
		return err
	}
	r.res.RunDir = dir
	r.record(runstore.Update{RunDir: dir})
	r.info("Cloning " + u.String())
	if err := r.c.cfg.Fetcher.Fetch(ctx, u.String(), dir); err != nil {
		return err
	}
	r.info("Repository cloned")

	return r.deploy(ctx, dir)
}

// deploy runs the stages after the repository is on disk.
func (r *run) deploy(ctx context.Context, dir string) error {
	r.enter(Validating)
	l, err := layout.Resolve(dir)
	if err != nil {
		return err
	}
	r.res.Layout = l

	r.enter(Detecting)
	profile, err := detect.Detect(l)
	if err != nil {
		return err
	}
	r.res.Profile = profile
	if raw, err := json.Marshal(profile); err == nil {
		r.record(runstore.Update{ProfileJSON: string(raw)})
	}
	r.log.Info("stack detected", "presentation", profile.Presentation, "service", profile.Service,
		"entry", profile.EntryFile, "port", profile.Port, "data", profile.Data)
	if err := RequireComplete(profile); err != nil {
		return err
	}
	r.info(fmt.Sprintf("Detected %s frontend, %s backend on port %d, %s database",
		profile.Presentation, profile.Service, profile.Port, profile.Data))

	r.enter(Synthesizing)
	project := workspace.ProjectName(dir)
	set, err := synth.Synthesize(l, profile, synth.Options{ProjectName: project, ProxyPort: r.c.cfg.ProxyPort})
	if err != nil {
		return err
	}
	if err := synth.Write(dir, set); err != nil {
		return err
	}
	r.res.Files = set.Paths()
	r.info("Artifacts created")
	if order, err := synth.StartupOrder(set.Project); err == nil {
		r.log.V(1).Info("startup order", "services", order)
	}

	r.enter(Deploying)
	if _, err := r.c.cfg.Deployer.Deploy(ctx, dir, project); err != nil {
		return err
	}
	r.info("Containers started")

	r.enter(Probing)
	endpoint := "http://localhost:" + strconv.Itoa(r.c.cfg.ProxyPort)
	attempts, err := r.c.cfg.Prober.Wait(ctx, endpoint)
	probeAttempts.Observe(float64(attempts))
	if err != nil {
		return err
	}

	r.leave()
	r.state = Ready
	r.res.State = Ready
	r.res.URL = endpoint
	runsTotal.WithLabelValues("ready", "").Inc()
	r.log.Info("deployment ready", "url", endpoint, "attempt", attempts)
	r.stream.Emit(notify.Event{
		Type:    notify.EventReady,
		State:   string(Ready),
		Message: "Your application is ready at " + endpoint,
		URL:     endpoint,
	})
	return nil
}

func (r *run) enter(s State) {
	r.leave()
	r.state = s
	r.res.State = s
	r.entered = r.c.cfg.Clock.Now()
	r.log.V(1).Info("state transition", "state", s)
	r.stream.Emit(notify.Event{Type: notify.EventState, State: string(s), Message: stateMessages[s]})
}

func (r *run) leave() {
	if r.state == Idle {
		return
	}
	stageDuration.WithLabelValues(string(r.state)).Observe(r.c.cfg.Clock.Since(r.entered).Seconds())
}

func (r *run) info(msg string) {
	r.stream.EmitAfter(r.c.cfg.EventDelay, notify.Event{Type: notify.EventInfo, Message: msg})
}

// fail removes the run directory, then reports the failure. A cleanup error
// is logged and never replaces err.
func (r *run) fail(err error) {
	kind := Classify(err)
	if r.res.RunDir != "" {
		if rmErr := r.c.cfg.Remove(r.res.RunDir); rmErr != nil {
			r.log.Error(rmErr, "cleanup run directory", "dir", r.res.RunDir)
		}
	}
	r.leave()
	failedIn := r.state
	r.state = Failed
	r.res.State = Failed
	r.res.Kind = kind
	r.res.Err = err
	runsTotal.WithLabelValues("failed", string(kind)).Inc()
	r.log.Error(err, "run failed", "kind", kind, "state", failedIn)
	r.stream.Emit(notify.Event{
		Type:    notify.EventFailed,
		State:   string(Failed),
		Kind:    string(kind),
		Message: err.Error(),
	})
}

func (r *run) record(u runstore.Update) {
	if r.c.cfg.Recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.c.cfg.Recorder.UpdateRun(ctx, r.id, u); err != nil {
		r.log.Error(err, "update run record")
	}
}

// Inspect resolves and classifies an already unpacked repository without
// touching the container engine. A complete profile whose service and data
// pairing has no recipe is reported as an UnsupportedCombinationError.
func Inspect(root string) (layout.RepoLayout, detect.StackProfile, error) {
	l, err := layout.Resolve(root)
	if err != nil {
		return layout.RepoLayout{}, detect.StackProfile{}, err
	}
	profile, err := detect.Detect(l)
	if err != nil {
		return l, profile, err
	}
	if err := RequireComplete(profile); err != nil {
		return l, profile, err
	}
	if !synth.Supported(profile.Service, profile.Data) {
		return l, profile, &synth.UnsupportedCombinationError{Presentation: profile.Presentation, Service: profile.Service, Data: profile.Data}
	}
	return l, profile, nil
}
