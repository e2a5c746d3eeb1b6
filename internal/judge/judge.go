package judge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/mockmate-judge/pkg/executor"
	"github.com/noah-isme/mockmate-judge/pkg/language"
	"github.com/noah-isme/mockmate-judge/pkg/workspace"
)

// NoTestCasesFeedback is reported for questions without test cases.
const NoTestCasesFeedback = "No test cases available"

// ErrSystem marks failures of the judging infrastructure rather than of the submitted code.
var ErrSystem = errors.New("judge system error")

// Submission is the code under evaluation.
type Submission struct {
	Code     string
	Language language.Language
}

// TestCase is one graded input/expected-output pair.
type TestCase struct {
	Input    string
	Expected string
	Hidden   bool
}

// Result is the graded outcome of a submission.
type Result struct {
	Score        float64
	Passed       int
	Total        int
	Feedback     string
	CompileError string
	Duration     time.Duration
}

// RunOutput is the outcome of an ad-hoc run.
type RunOutput struct {
	Success bool
	Output  string
	Error   string
}

// Config groups judge configuration values.
type Config struct {
	Timeout        time.Duration
	CompileEnabled bool
	// FailFast stops the test loop at the first failed case; the rest are reported as skipped.
	FailFast       bool
	Logger         zerolog.Logger
}

// Hooks observe phase changes while a submission is evaluated.
type Hooks struct {
	// OnRunning fires once the source is materialised and the test loop is about to start.
	OnRunning func(ctx context.Context) error
}

// Judge runs submissions against test cases inside disposable workspaces.
type Judge struct {
	registry   *language.Registry
	runner     executor.Runner
	workspaces *workspace.Manager
	cfg        Config
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// New constructs a judge.
func New(registry *language.Registry, runner executor.Runner, workspaces *workspace.Manager, cfg Config) *Judge {
	if cfg.Timeout <= 0 {
		cfg.Timeout = executor.DefaultTimeout
	}
	return &Judge{
		registry:   registry,
		runner:     runner,
		workspaces: workspaces,
		cfg:        cfg,
		logger:     cfg.Logger.With().Str("component", "judge").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/mockmate-judge/internal/judge"),
	}
}

// Evaluate runs submission against every test case in order and scores it.
// Errors are always wrapped in ErrSystem; failures of the submitted code are reported
// through the Result instead.
func (j *Judge) Evaluate(ctx context.Context, submission Submission, testCases []TestCase, hooks Hooks) (Result, error) {
	if len(testCases) == 0 {
		return Result{Feedback: NoTestCasesFeedback}, nil
	}

	adapter, err := j.registry.Lookup(submission.Language)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrSystem, err)
	}
	runArgs, err := adapter.RunCommand()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrSystem, err)
	}

	ctx, span := j.tracer.Start(ctx, "judge.evaluate", trace.WithAttributes(
		attribute.String("judge.language", string(submission.Language)),
		attribute.Int("judge.test_cases", len(testCases)),
	))
	defer span.End()

	ws, err := j.prepare(adapter, submission.Code)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	defer j.release(ws)

	result := Result{Total: len(testCases)}

	if compileErr, err := j.compile(ctx, adapter, ws); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	} else if compileErr != "" {
		result.CompileError = compileErr
		result.Feedback = compileFailureFeedback(compileErr, len(testCases))
		return result, nil
	}

	if hooks.OnRunning != nil {
		if err := hooks.OnRunning(ctx); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrSystem, err)
		}
	}

	var feedback strings.Builder
	for i, tc := range testCases {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("%w: evaluation interrupted: %w", ErrSystem, err)
		}

		run := j.runner.Run(ctx, executor.Command{
			Args:    runArgs,
			Dir:     ws.Dir(),
			Stdin:   tc.Input,
			Timeout: j.cfg.Timeout,
			Image:   adapter.Image,
		})
		result.Duration += run.Duration

		// a run cut short by the evaluation deadline says nothing about the code
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("%w: evaluation interrupted: %w", ErrSystem, err)
		}
		if run.Truncated {
			run.Success = false
			run.Error = executor.OutputLimitMessage
		}

		expected := strings.TrimSpace(tc.Expected)
		got := strings.TrimSpace(run.Stdout)
		if run.Success && got == expected {
			result.Passed++
			writePass(&feedback, i+1)
			continue
		}
		writeFailure(&feedback, i+1, tc.Hidden, run, expected, got)
		if j.cfg.FailFast {
			for n := i + 2; n <= len(testCases); n++ {
				writeSkipped(&feedback, n)
			}
			break
		}
	}

	result.Score = float64(result.Passed) / float64(result.Total) * 100
	result.Feedback = feedback.String()
	span.SetAttributes(attribute.Int("judge.passed", result.Passed))

	j.logger.Debug().
		Str("language", string(submission.Language)).
		Int("passed", result.Passed).
		Int("total", result.Total).
		Msg("submission evaluated")

	return result, nil
}

// Run executes code once with input and no comparison.
func (j *Judge) Run(ctx context.Context, submission Submission, input string) (RunOutput, error) {
	adapter, err := j.registry.Lookup(submission.Language)
	if err != nil {
		return RunOutput{}, err
	}
	runArgs, err := adapter.RunCommand()
	if err != nil {
		return RunOutput{}, fmt.Errorf("%w: %v", ErrSystem, err)
	}

	ws, err := j.prepare(adapter, submission.Code)
	if err != nil {
		return RunOutput{}, err
	}
	defer j.release(ws)

	if compileErr, err := j.compile(ctx, adapter, ws); err != nil {
		return RunOutput{}, err
	} else if compileErr != "" {
		return RunOutput{Error: compileErr}, nil
	}

	run := j.runner.Run(ctx, executor.Command{
		Args:    runArgs,
		Dir:     ws.Dir(),
		Stdin:   input,
		Timeout: j.cfg.Timeout,
		Image:   adapter.Image,
	})

	output := RunOutput{Success: run.Success, Output: strings.TrimSpace(run.Stdout)}
	if run.Truncated {
		output.Success = false
		output.Error = executor.OutputLimitMessage
		return output, nil
	}
	if run.Success {
		output.Error = strings.TrimSpace(run.Stderr)
	} else {
		output.Error = run.Error
	}
	return output, nil
}

func (j *Judge) prepare(adapter language.Adapter, code string) (*workspace.Workspace, error) {
	ws, err := j.workspaces.Acquire()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSystem, err)
	}
	if _, err := ws.WriteFile(adapter.FileName, code); err != nil {
		j.release(ws)
		return nil, fmt.Errorf("%w: %v", ErrSystem, err)
	}
	return ws, nil
}

func (j *Judge) release(ws *workspace.Workspace) {
	for _, err := range j.workspaces.Release(ws) {
		j.logger.Warn().Err(err).Str("workspace", ws.Dir()).Msg("failed to remove workspace entry")
	}
}

// compile runs the adapter's compile step when compilation is enabled. The returned
// string carries compiler diagnostics for a failed compile.
func (j *Judge) compile(ctx context.Context, adapter language.Adapter, ws *workspace.Workspace) (string, error) {
	if !j.cfg.CompileEnabled || !adapter.Compiled() {
		return "", nil
	}

	args, err := adapter.CompileCommand()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSystem, err)
	}

	run := j.runner.Run(ctx, executor.Command{
		Args:    args,
		Dir:     ws.Dir(),
		Timeout: j.cfg.Timeout,
		Image:   adapter.Image,
	})
	if run.Success {
		return "", nil
	}

	diagnostics := strings.TrimSpace(run.Stderr)
	if diagnostics == "" {
		diagnostics = run.Error
	}
	return diagnostics, nil
}
