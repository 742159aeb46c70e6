package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jenkinstrigger/internal/config"
	"jenkinstrigger/internal/engine"
	"jenkinstrigger/internal/logger"
	"jenkinstrigger/internal/output"
)

// Terminal errors of a trigger run, wrapped with detail at the call sites.
var (
	ErrStartTimeout = errors.New("timed out waiting for build to start")
	ErrBuildTimeout = errors.New("timed out waiting for build to finish")
	ErrBuildFailed  = errors.New("build failed")
)

// Queue-to-build phase: Queued -> Started | TimedOut
type queuePhase int

const (
	phaseQueued queuePhase = iota
	phaseStarted
	phaseStartTimedOut
)

// Completion phase: Running -> Succeeded | Failed | TimedOut
type buildPhase int

const (
	phaseRunning buildPhase = iota
	phaseSucceeded
	phaseFailed
	phaseBuildTimedOut
)

// Report carries the observable outcome of a run for callers that record it
type Report struct {
	BuildURL string
	Result   string
}

// Runner drives one trigger run: submit, wait for start, publish the build
// URL, and optionally wait for completion.
type Runner struct {
	cfg    *config.Config
	server engine.Server
	pub    *output.Publisher

	// Seams for tests; production values set by New.
	notify func() <-chan os.Signal
	exit   func(int)
	sleep  func(time.Duration)
	now    func() time.Time
}

// New creates a runner for the given configuration and CI server
func New(cfg *config.Config, server engine.Server, pub *output.Publisher) *Runner {
	return &Runner{
		cfg:    cfg,
		server: server,
		pub:    pub,
		notify: func() <-chan os.Signal {
			ch := make(chan os.Signal, 1)
			signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
			return ch
		},
		exit:  os.Exit,
		sleep: time.Sleep,
		now:   time.Now,
	}
}

// Run executes one trigger run and returns its report. The returned error is
// fatal for the run; nothing is retried.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	item, err := r.server.TriggerJob(ctx, r.cfg.Jenkins.JobName, r.cfg.Jenkins.Parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to request build: %w", err)
	}
	logger.Info("Requested to build job.", "job", r.cfg.Jenkins.JobName, "queue_id", item.ID())

	// While the request sits in the queue, an external interrupt cancels the
	// queue item. Once a build exists the action is swapped to stopping it.
	var canc *canceller
	if r.cfg.Poll.CancelOnInterrupt {
		canc = newCanceller(r.exit)
		canc.Set("queued build", item.Cancel)
		canc.listen(r.notify())
	}

	build, err := r.waitForStart(ctx, item)
	if err != nil {
		return nil, err
	}

	buildURL := build.URL()
	logger.Info("Build URL", "url", buildURL)
	if err := r.pub.PublishBuildURL(buildURL); err != nil {
		return nil, fmt.Errorf("failed to publish build url: %w", err)
	}

	if canc != nil {
		canc.Set("build", build.Stop)
	}

	report := &Report{BuildURL: buildURL}

	if !r.cfg.Poll.Wait {
		logger.Info("Not waiting for build to finish.")
		return report, nil
	}

	result, err := r.waitForCompletion(ctx, build)
	report.Result = result
	if err != nil {
		return report, err
	}
	return report, nil
}

// waitForStart polls the queue item at a fixed interval until the server
// schedules a build or the start timeout elapses. The first poll happens one
// interval after submission, and the timeout may overshoot by at most one
// interval.
func (r *Runner) waitForStart(ctx context.Context, item engine.QueueItem) (engine.Build, error) {
	interval := r.cfg.Poll.IntervalDuration()
	startTimeout := r.cfg.Poll.StartTimeoutDuration()

	began := r.now()
	r.sleep(interval)

	phase := phaseQueued
	var build engine.Build
	for phase == phaseQueued {
		if r.now().Sub(began) >= startTimeout {
			phase = phaseStartTimedOut
			continue
		}

		b, err := item.Build(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to check queue item: %w", err)
		}
		if b != nil {
			build = b
			phase = phaseStarted
			continue
		}

		logger.Info("Build not started yet.", "wait_seconds", r.cfg.Poll.Interval)
		r.sleep(interval)
	}

	if phase == phaseStartTimedOut {
		return nil, fmt.Errorf("%w: waited for %d seconds", ErrStartTimeout, r.cfg.Poll.StartTimeout)
	}
	return build, nil
}

// waitForCompletion polls the build at a fixed interval until it reports a
// terminal result or the completion timeout elapses
func (r *Runner) waitForCompletion(ctx context.Context, build engine.Build) (string, error) {
	interval := r.cfg.Poll.IntervalDuration()
	timeout := r.cfg.Poll.TimeoutDuration()

	began := r.now()
	r.sleep(interval)

	phase := phaseRunning
	var result string
	for phase == phaseRunning {
		if r.now().Sub(began) >= timeout {
			phase = phaseBuildTimedOut
			continue
		}

		res, err := build.Result(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to check build status: %w", err)
		}
		switch {
		case res == engine.ResultSuccess:
			result = res
			phase = phaseSucceeded
		case engine.IsTerminal(res):
			result = res
			phase = phaseFailed
		default:
			logger.Info("Build not finished yet.", "wait_seconds", r.cfg.Poll.Interval, "url", build.URL())
			r.sleep(interval)
		}
	}

	switch phase {
	case phaseSucceeded:
		logger.Info("Build successful")
		return result, nil
	case phaseFailed:
		return result, fmt.Errorf("%w: build status returned %q", ErrBuildFailed, result)
	default:
		return "", fmt.Errorf("%w: waited for %d seconds", ErrBuildTimeout, r.cfg.Poll.Timeout)
	}
}
