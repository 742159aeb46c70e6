package engine

import "context"

// Terminal build results reported by the CI server.
const (
	ResultSuccess  = "SUCCESS"
	ResultFailure  = "FAILURE"
	ResultAborted  = "ABORTED"
	ResultUnstable = "UNSTABLE"
)

// IsTerminal reports whether a build result is final
func IsTerminal(result string) bool {
	switch result {
	case ResultSuccess, ResultFailure, ResultAborted, ResultUnstable:
		return true
	}
	return false
}

// Server is the capability surface of a CI server that can run jobs
type Server interface {
	// Version returns the server version learned during connection
	Version() string

	// TriggerJob submits a build request for the given job with the provided
	// parameters and returns a handle on the resulting queue item
	TriggerJob(ctx context.Context, jobName string, params map[string]string) (QueueItem, error)
}

// QueueItem is a build request that has not yet been assigned an executor
type QueueItem interface {
	// ID returns the server-side identifier of the queue item
	ID() int64

	// Build returns the build once the server has scheduled it, or nil
	// while the item is still queued
	Build(ctx context.Context) (Build, error)

	// Cancel removes the item from the queue
	Cancel(ctx context.Context) error
}

// Build is a running or finished execution of a job
type Build interface {
	// URL returns the build page URL, stable once the build exists
	URL() string

	// Result returns the current build result, or the empty string while
	// the build is still running
	Result(ctx context.Context) (string, error)

	// Stop aborts the running build
	Stop(ctx context.Context) error
}
