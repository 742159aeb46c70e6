package output

import (
	"fmt"
	"io"
	"os"

	"jenkinstrigger/internal/config"
)

// Publisher reports the build URL back to the CI caller: a key=value line in
// the output file, a clickable markdown line in the step summary, and a
// workflow notice on stdout.
type Publisher struct {
	outputPath  string
	summaryPath string
	stdout      io.Writer
}

// NewPublisher creates a publisher for the runner-provided output files
func NewPublisher(cfg config.OutputConfig) *Publisher {
	return &Publisher{
		outputPath:  cfg.OutputPath,
		summaryPath: cfg.SummaryPath,
		stdout:      os.Stdout,
	}
}

// WithStdout overrides the notice destination
func (p *Publisher) WithStdout(w io.Writer) *Publisher {
	p.stdout = w
	return p
}

// PublishBuildURL records the build URL in all three places, verbatim
func (p *Publisher) PublishBuildURL(buildURL string) error {
	if err := appendLine(p.outputPath, "build_url="+buildURL); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	// Markdown so the step summary link is clickable
	summary := fmt.Sprintf("The build URL is: [%s](%s)", buildURL, buildURL)
	if err := appendLine(p.summaryPath, summary); err != nil {
		return fmt.Errorf("failed to write step summary: %w", err)
	}

	if _, err := fmt.Fprintf(p.stdout, "::notice title=build_url::%s\n", buildURL); err != nil {
		return fmt.Errorf("failed to write notice: %w", err)
	}
	return nil
}

// appendLine appends a single line to the file, creating it if needed. The
// CI runner may have written to the same file earlier in the job, so the
// file is never truncated.
func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // Runner-provided path
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(f, line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
