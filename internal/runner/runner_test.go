package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"jenkinstrigger/internal/config"
	"jenkinstrigger/internal/engine"
	"jenkinstrigger/internal/output"
)

const testBuildURL = "https://jenkins.example.com/job/deploy/42/"

type fakeServer struct {
	item     *fakeQueueItem
	triggers int
	job      string
	params   map[string]string
}

func (f *fakeServer) Version() string { return "2.462.3" }

func (f *fakeServer) TriggerJob(_ context.Context, jobName string, params map[string]string) (engine.QueueItem, error) {
	f.triggers++
	f.job = jobName
	f.params = params
	return f.item, nil
}

// fakeQueueItem yields its build on poll number readyOn; zero means never
type fakeQueueItem struct {
	readyOn int
	build   *fakeBuild
	polls   int
	cancels int32
}

func (f *fakeQueueItem) ID() int64 { return 7 }

func (f *fakeQueueItem) Build(context.Context) (engine.Build, error) {
	f.polls++
	if f.readyOn > 0 && f.polls >= f.readyOn {
		return f.build, nil
	}
	return nil, nil
}

func (f *fakeQueueItem) Cancel(context.Context) error {
	atomic.AddInt32(&f.cancels, 1)
	return nil
}

// fakeBuild reports results[i] on the i-th poll and repeats the last entry
type fakeBuild struct {
	results []string
	polls   int
	stops   int32
}

func (f *fakeBuild) URL() string { return testBuildURL }

func (f *fakeBuild) Result(context.Context) (string, error) {
	f.polls++
	if len(f.results) == 0 {
		return "", nil
	}
	if f.polls > len(f.results) {
		return f.results[len(f.results)-1], nil
	}
	return f.results[f.polls-1], nil
}

func (f *fakeBuild) Stop(context.Context) error {
	atomic.AddInt32(&f.stops, 1)
	return nil
}

// fakeClock folds wall-clock advancement into the runner's sleep seam
type fakeClock struct {
	t      time.Time
	sleeps int
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Sleep(d time.Duration) {
	c.t = c.t.Add(d)
	c.sleeps++
}

func testConfig(t *testing.T, poll config.PollConfig) *config.Config {
	t.Helper()

	dir := t.TempDir()
	return &config.Config{
		Jenkins: config.JenkinsConfig{
			URL:        "https://jenkins.example.com",
			JobName:    "deploy",
			Parameters: map[string]string{"branch": "main"},
		},
		Poll: poll,
		Outputs: config.OutputConfig{
			OutputPath:  filepath.Join(dir, "output"),
			SummaryPath: filepath.Join(dir, "summary"),
		},
	}
}

func newTestRunner(cfg *config.Config, server engine.Server) (*Runner, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	r := New(cfg, server, output.NewPublisher(cfg.Outputs).WithStdout(&bytes.Buffer{}))
	r.now = clock.Now
	r.sleep = clock.Sleep
	r.exit = func(int) {}
	r.notify = func() <-chan os.Signal { return make(chan os.Signal) }
	return r, clock
}

func TestRunStartsOnNthPoll(t *testing.T) {
	item := &fakeQueueItem{readyOn: 3, build: &fakeBuild{}}
	server := &fakeServer{item: item}
	cfg := testConfig(t, config.PollConfig{StartTimeout: 120, Interval: 2})
	r, clock := newTestRunner(cfg, server)

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if server.triggers != 1 || server.job != "deploy" {
		t.Errorf("Expected one trigger of deploy, got %d of %q", server.triggers, server.job)
	}
	if item.polls != 3 {
		t.Errorf("Expected 3 queue polls, got %d", item.polls)
	}
	// One interval slept up front, one after each unproductive poll
	if clock.sleeps != 3 {
		t.Errorf("Expected 3 sleeps before start, got %d", clock.sleeps)
	}
	if report.BuildURL != testBuildURL {
		t.Errorf("Expected build URL %q, got %q", testBuildURL, report.BuildURL)
	}
	// wait is disabled, so the build result is never polled
	if item.build.polls != 0 {
		t.Errorf("Expected zero completion polls, got %d", item.build.polls)
	}
}

func TestRunQueueTimeout(t *testing.T) {
	item := &fakeQueueItem{}
	server := &fakeServer{item: item}
	cfg := testConfig(t, config.PollConfig{StartTimeout: 5, Interval: 2})
	r, clock := newTestRunner(cfg, server)

	began := clock.t
	_, err := r.Run(context.Background())
	if !errors.Is(err, ErrStartTimeout) {
		t.Fatalf("Expected start timeout error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "5 seconds") {
		t.Errorf("Expected error to report the configured timeout, got: %v", err)
	}

	// Bounded overshoot: at least start_timeout, less than one extra interval
	elapsed := clock.t.Sub(began)
	if elapsed < 5*time.Second || elapsed >= 7*time.Second {
		t.Errorf("Expected elapsed in [5s, 7s), got %s", elapsed)
	}
	if item.polls != 2 {
		t.Errorf("Expected 2 queue polls, got %d", item.polls)
	}
}

func TestRunPublishesURLBeforeWaiting(t *testing.T) {
	build := &fakeBuild{results: []string{""}}
	item := &fakeQueueItem{readyOn: 1, build: build}
	cfg := testConfig(t, config.PollConfig{Wait: true, Timeout: 4, StartTimeout: 60, Interval: 2})
	r, _ := newTestRunner(cfg, &fakeServer{item: item})

	report, err := r.Run(context.Background())
	if !errors.Is(err, ErrBuildTimeout) {
		t.Fatalf("Expected completion timeout, got: %v", err)
	}

	// The URL was published before the completion phase failed
	if report == nil || report.BuildURL != testBuildURL {
		t.Fatalf("Expected report with build URL despite failure, got %+v", report)
	}
	data, readErr := os.ReadFile(cfg.Outputs.OutputPath)
	if readErr != nil {
		t.Fatalf("Failed to read output file: %v", readErr)
	}
	if string(data) != "build_url="+testBuildURL+"\n" {
		t.Errorf("Unexpected output file content: %q", string(data))
	}
}

func TestRunWaitSuccessOnThirdPoll(t *testing.T) {
	build := &fakeBuild{results: []string{"", "", engine.ResultSuccess}}
	item := &fakeQueueItem{readyOn: 1, build: build}
	cfg := testConfig(t, config.PollConfig{Wait: true, Timeout: 600, StartTimeout: 60, Interval: 2})
	r, _ := newTestRunner(cfg, &fakeServer{item: item})

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if build.polls != 3 {
		t.Errorf("Expected exactly 3 completion polls, got %d", build.polls)
	}
	if report.Result != engine.ResultSuccess {
		t.Errorf("Expected SUCCESS result, got %q", report.Result)
	}
}

func TestRunWaitFailureNamesResult(t *testing.T) {
	for _, result := range []string{engine.ResultFailure, engine.ResultAborted, engine.ResultUnstable} {
		t.Run(result, func(t *testing.T) {
			build := &fakeBuild{results: []string{result}}
			item := &fakeQueueItem{readyOn: 1, build: build}
			cfg := testConfig(t, config.PollConfig{Wait: true, Timeout: 600, StartTimeout: 60, Interval: 2})
			r, _ := newTestRunner(cfg, &fakeServer{item: item})

			report, err := r.Run(context.Background())
			if !errors.Is(err, ErrBuildFailed) {
				t.Fatalf("Expected build failure error, got: %v", err)
			}
			if !strings.Contains(err.Error(), result) {
				t.Errorf("Expected error to contain %q, got: %v", result, err)
			}
			if report.Result != result {
				t.Errorf("Expected report result %q, got %q", result, report.Result)
			}
		})
	}
}

func TestRunNoWaitSkipsCompletionPolling(t *testing.T) {
	build := &fakeBuild{results: []string{engine.ResultSuccess}}
	item := &fakeQueueItem{readyOn: 1, build: build}
	cfg := testConfig(t, config.PollConfig{Wait: false, StartTimeout: 60, Interval: 2})
	r, clock := newTestRunner(cfg, &fakeServer{item: item})

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if build.polls != 0 {
		t.Errorf("Expected zero completion polls, got %d", build.polls)
	}
	if clock.sleeps != 1 {
		t.Errorf("Expected only the initial queue-phase sleep, got %d", clock.sleeps)
	}
}

func TestCancellerInvokesCurrentActionOnce(t *testing.T) {
	exitCode := make(chan int, 1)
	c := newCanceller(func(code int) { exitCode <- code })

	item := &fakeQueueItem{}
	c.Set("queued build", item.Cancel)

	signals := make(chan os.Signal, 1)
	c.listen(signals)
	signals <- os.Interrupt

	select {
	case code := <-exitCode:
		if code != 0 {
			t.Errorf("Expected exit code 0 on interrupt, got %d", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Canceller never exited")
	}

	if got := atomic.LoadInt32(&item.cancels); got != 1 {
		t.Errorf("Expected cancel to run exactly once, got %d", got)
	}
}

func TestCancellerSwapsActionAsRunAdvances(t *testing.T) {
	exitCode := make(chan int, 1)
	c := newCanceller(func(code int) { exitCode <- code })

	item := &fakeQueueItem{}
	build := &fakeBuild{}
	c.Set("queued build", item.Cancel)
	c.Set("build", build.Stop)

	signals := make(chan os.Signal, 1)
	c.listen(signals)
	signals <- os.Interrupt

	select {
	case <-exitCode:
	case <-time.After(2 * time.Second):
		t.Fatal("Canceller never exited")
	}

	if got := atomic.LoadInt32(&item.cancels); got != 0 {
		t.Errorf("Expected queue cancel to be replaced, but it ran %d times", got)
	}
	if got := atomic.LoadInt32(&build.stops); got != 1 {
		t.Errorf("Expected build stop to run exactly once, got %d", got)
	}
}
