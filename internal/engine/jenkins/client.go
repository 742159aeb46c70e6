package jenkins

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/bndr/gojenkins"

	"jenkinstrigger/internal/config"
	"jenkinstrigger/internal/engine"
	"jenkinstrigger/internal/logger"
)

// Client implements engine.Server on top of the Jenkins REST API
type Client struct {
	url     string
	jenkins *gojenkins.Jenkins
}

var _ engine.Server = (*Client)(nil)

// NewClient creates a new Jenkins client instance
func NewClient(cfg config.JenkinsConfig) (*Client, error) {
	// Normalize URL: remove trailing slash to avoid double slashes in paths
	base := strings.TrimSuffix(cfg.URL, "/")

	httpClient := &http.Client{
		Timeout: 30 * time.Second,
	}

	// Extra cookies ride along on every request via the client's cookie jar
	if len(cfg.Cookies) > 0 {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid jenkins url: %w", err)
		}
		cookies := make([]*http.Cookie, 0, len(cfg.Cookies))
		for name, value := range cfg.Cookies {
			cookies = append(cookies, &http.Cookie{Name: name, Value: value})
		}
		jar.SetCookies(u, cookies)
		httpClient.Jar = jar
	}

	var j *gojenkins.Jenkins
	if cfg.Username != "" && cfg.Token != "" {
		j = gojenkins.CreateJenkins(httpClient, base, cfg.Username, cfg.Token)
	} else {
		logger.Info("Username or token not provided. Connecting without authentication.")
		j = gojenkins.CreateJenkins(httpClient, base)
	}

	return &Client{
		url:     base,
		jenkins: j,
	}, nil
}

// Connect verifies connectivity by fetching the server state. Any failure,
// network, auth, or server-side, surfaces as a single connection error.
func (c *Client) Connect(ctx context.Context) error {
	if _, err := c.jenkins.Init(ctx); err != nil {
		return fmt.Errorf("could not connect to Jenkins: %w", err)
	}
	return nil
}

// Version returns the Jenkins version learned during Connect
func (c *Client) Version() string {
	return c.jenkins.Version
}

// TriggerJob submits a build request and returns the queue item handle.
// Job names may contain "/" for folder nesting.
func (c *Client) TriggerJob(ctx context.Context, jobName string, params map[string]string) (engine.QueueItem, error) {
	queueID, err := c.jenkins.BuildJob(ctx, expandJobPath(jobName), params)
	if err != nil {
		return nil, fmt.Errorf("failed to trigger job %q: %w", jobName, err)
	}
	return &queueItem{client: c, id: queueID}, nil
}

// expandJobPath converts a path-style job name into the server's nested
// job form: "folder/demo" lives at /job/folder/job/demo, not /job/folder/demo
func expandJobPath(jobName string) string {
	parts := strings.Split(strings.Trim(jobName, "/"), "/")
	return strings.Join(parts, "/job/")
}

type queueItem struct {
	client *Client
	id     int64
}

func (q *queueItem) ID() int64 {
	return q.id
}

// queueItemStatus is the slice of the queue item API this client reads.
// The library does not model the cancelled flag, so the item is fetched
// directly instead of through its queue type.
type queueItemStatus struct {
	Cancelled  bool `json:"cancelled"`
	Executable struct {
		Number int64  `json:"number"`
		URL    string `json:"url"`
	} `json:"executable"`
}

// Build fetches the queue item and returns the build once the server has
// scheduled it. A nil build with nil error means the item is still queued.
func (q *queueItem) Build(ctx context.Context) (engine.Build, error) {
	status := new(queueItemStatus)
	resp, err := q.client.jenkins.Requester.GetJSON(ctx, fmt.Sprintf("/queue/item/%d", q.id), status, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch queue item %d: %w", q.id, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch queue item %d: status %d", q.id, resp.StatusCode)
	}

	if status.Cancelled {
		// Waiting out the start timeout on a cancelled item helps nobody
		return nil, fmt.Errorf("queue item %d was cancelled on the server", q.id)
	}

	if status.Executable.Number == 0 {
		return nil, nil
	}

	return q.client.buildFromExecutable(ctx, status.Executable.URL)
}

func (q *queueItem) Cancel(ctx context.Context) error {
	task, err := q.client.jenkins.GetQueueItem(ctx, q.id)
	if err != nil {
		return fmt.Errorf("failed to fetch queue item %d: %w", q.id, err)
	}
	ok, err := task.Cancel(ctx)
	if err != nil {
		return fmt.Errorf("failed to cancel queue item %d: %w", q.id, err)
	}
	if !ok {
		return fmt.Errorf("server refused to cancel queue item %d", q.id)
	}
	return nil
}

// buildFromExecutable constructs a build handle from the queue item's
// executable URL, which already accounts for folder nesting.
func (c *Client) buildFromExecutable(ctx context.Context, buildURL string) (engine.Build, error) {
	base := buildBase(buildURL, c.jenkins.Server)

	jobBase := base
	if i := strings.LastIndex(jobBase, "/"); i > 0 {
		jobBase = jobBase[:i]
	}
	job := &gojenkins.Job{
		Jenkins: c.jenkins,
		Raw:     new(gojenkins.JobResponse),
		Base:    jobBase,
	}

	gb := &gojenkins.Build{
		Jenkins: c.jenkins,
		Job:     job,
		Raw:     new(gojenkins.BuildResponse),
		Base:    base,
		Depth:   1,
	}
	if _, err := gb.Poll(ctx); err != nil {
		return nil, fmt.Errorf("failed to fetch build: %w", err)
	}

	pageURL := gb.Raw.URL
	if pageURL == "" {
		pageURL = buildURL
	}

	return &build{gb: gb, url: pageURL}, nil
}

type build struct {
	gb  *gojenkins.Build
	url string
}

func (b *build) URL() string {
	return b.url
}

// Result re-polls the build and returns its result, empty while running
func (b *build) Result(ctx context.Context) (string, error) {
	if _, err := b.gb.Poll(ctx); err != nil {
		return "", fmt.Errorf("failed to fetch build status: %w", err)
	}
	if b.gb.Raw.Building {
		return "", nil
	}
	return b.gb.Raw.Result, nil
}

func (b *build) Stop(ctx context.Context) error {
	ok, err := b.gb.Stop(ctx)
	if err != nil {
		return fmt.Errorf("failed to stop build: %w", err)
	}
	if !ok {
		return fmt.Errorf("server refused to stop build")
	}
	return nil
}

// buildBase converts the absolute build URL reported by the server into a
// request path relative to the server root
func buildBase(buildURL, server string) string {
	base := strings.TrimPrefix(buildURL, strings.TrimSuffix(server, "/"))
	if strings.Contains(base, "://") {
		// Server reported itself under a different name; fall back to the path
		if u, err := url.Parse(base); err == nil {
			base = u.Path
		}
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return strings.TrimSuffix(base, "/")
}
