// Package deploy runs bot deployments as a pipeline of named steps with
// typed results. Steps mutate a shared State bag; the pipeline stops at the
// first failure and records everything that did or did not happen.
package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/botdock/botdock/pkg/logger"
)

// Status classifies one step's outcome.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarn    Status = "warn"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// skipError marks a step as intentionally not run.
type skipError struct {
	reason string
}

func (e *skipError) Error() string { return e.reason }

func skipStep(reason string) error {
	return &skipError{reason: reason}
}

// warnError records a step problem without failing the deployment.
type warnError struct {
	err error
}

func (e *warnError) Error() string { return e.err.Error() }
func (e *warnError) Unwrap() error { return e.err }

func warnStep(err error) error {
	return &warnError{err: err}
}

// Step is one named unit of deployment work.
type Step interface {
	Name() string
	Run(ctx context.Context, st *State) error
	// Plan describes what Run would do, for dry runs.
	Plan(st *State) string
}

// State is the mutable bag threaded through the steps of one deployment.
type State struct {
	Bot      string
	Image    string
	BuildDir string
	EnvFile  string
	Domain   string
	Token    string
	Secret   string

	// Env holds KEY=VALUE pairs from the bot's env file.
	Env []string

	ImageID       string
	PrevImage     string
	PrevContainer string
	NewContainer  string
	// Replaced flips once the previous container is gone, which is the
	// point of no return for rollback purposes.
	Replaced bool

	FirstDeploy  bool
	SkipRegister bool
}

// Result is one step's recorded outcome.
type Result struct {
	Step    string
	Status  Status
	Detail  string
	Err     error
	Elapsed time.Duration
}

// Reporter receives pipeline progress. The CLI installs a spinner reporter
// on a terminal; LogReporter is the fallback.
type Reporter interface {
	StepStarted(name string)
	StepFinished(res Result)
}

// LogReporter reports step progress through the structured logger.
type LogReporter struct{}

func (LogReporter) StepStarted(name string) {
	logger.Info("Step started", "step", name)
}

func (LogReporter) StepFinished(res Result) {
	switch res.Status {
	case StatusWarn:
		logger.Warn("Step finished with warning", "step", res.Step, "detail", res.Detail)
	case StatusSkipped:
		logger.Info("Step skipped", "step", res.Step, "detail", res.Detail)
	case StatusFailed:
		logger.Error("Step failed", "step", res.Step, "error", res.Err)
	default:
		logger.Info("Step finished",
			"step", res.Step,
			"elapsed", res.Elapsed.Round(time.Millisecond).String())
	}
}

// Pipeline executes steps in order.
type Pipeline struct {
	steps    []Step
	reporter Reporter
	dryRun   bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithReporter(r Reporter) Option {
	return func(p *Pipeline) { p.reporter = r }
}

func WithDryRun(dryRun bool) Option {
	return func(p *Pipeline) { p.dryRun = dryRun }
}

func NewPipeline(steps []Step, opts ...Option) *Pipeline {
	p := &Pipeline{steps: steps, reporter: LogReporter{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the pipeline. Every configured step yields exactly one
// Result: steps after a failure are recorded as skipped, never dropped. The
// returned error is the first step failure, nil when the run succeeded.
//
// In dry-run mode nothing executes; each Result carries the step's Plan
// line as its Detail.
func (p *Pipeline) Run(ctx context.Context, st *State) ([]Result, error) {
	results := make([]Result, 0, len(p.steps))

	if p.dryRun {
		for _, step := range p.steps {
			results = append(results, Result{
				Step:   step.Name(),
				Status: StatusSkipped,
				Detail: step.Plan(st),
			})
		}
		return results, nil
	}

	var runErr error
	skipReason := "previous step failed"
	for _, step := range p.steps {
		if runErr == nil && ctx.Err() != nil {
			runErr = ctx.Err()
			skipReason = "run canceled"
		}
		if runErr != nil {
			res := Result{Step: step.Name(), Status: StatusSkipped, Detail: skipReason}
			if p.reporter != nil {
				p.reporter.StepFinished(res)
			}
			results = append(results, res)
			continue
		}

		if p.reporter != nil {
			p.reporter.StepStarted(step.Name())
		}

		start := time.Now()
		err := step.Run(ctx, st)
		res := Result{Step: step.Name(), Elapsed: time.Since(start)}

		var skip *skipError
		var warn *warnError
		switch {
		case err == nil:
			res.Status = StatusOK
		case errors.As(err, &skip):
			res.Status = StatusSkipped
			res.Detail = skip.reason
		case errors.As(err, &warn):
			res.Status = StatusWarn
			res.Detail = warn.err.Error()
			res.Err = warn.err
		default:
			res.Status = StatusFailed
			res.Detail = err.Error()
			res.Err = err
			runErr = fmt.Errorf("step %s failed: %w", step.Name(), err)
		}

		if p.reporter != nil {
			p.reporter.StepFinished(res)
		}
		results = append(results, res)
	}

	return results, runErr
}

// resultRecord is the JSON shape persisted with each deployment row.
type resultRecord struct {
	Step      string `json:"step"`
	Status    Status `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// marshalResults renders step results for the deployment table.
func marshalResults(results []Result) string {
	records := make([]resultRecord, 0, len(results))
	for _, res := range results {
		rec := resultRecord{
			Step:      res.Step,
			Status:    res.Status,
			Detail:    res.Detail,
			ElapsedMS: res.Elapsed.Milliseconds(),
		}
		if res.Err != nil {
			rec.Error = res.Err.Error()
		}
		records = append(records, rec)
	}

	data, err := json.Marshal(records)
	if err != nil {
		logger.Error("Failed to marshal step results", "error", err)
		return "[]"
	}
	return string(data)
}
