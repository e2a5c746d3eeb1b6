package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTimeout is the wall-clock budget of a single run.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxOutputBytes caps each captured stream.
	DefaultMaxOutputBytes = 1 << 20
	// DefaultKillGrace bounds how long pipes stay open after the process is killed.
	DefaultKillGrace = 500 * time.Millisecond

	// TimeoutMessage is reported when a run exceeds its deadline.
	TimeoutMessage = "Execution timeout"
	// OutputLimitMessage is reported by graders for runs whose output was cut at the cap.
	OutputLimitMessage = "Output limit exceeded"
)

var (
	execDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "judge",
		Subsystem: "executor",
		Name:      "execution_duration_seconds",
		Help:      "Wall-clock duration of child process executions",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"program"})

	execTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "judge",
		Subsystem: "executor",
		Name:      "execution_timeouts_total",
		Help:      "Number of executions killed after hitting the timeout",
	}, []string{"program"})

	execFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "judge",
		Subsystem: "executor",
		Name:      "execution_failures_total",
		Help:      "Number of executions that exited nonzero or failed to start",
	}, []string{"program", "reason"})
)

// Runner runs one command to completion. Implementations never return an error:
// every failure mode is encoded in the Result.
type Runner interface {
	Run(ctx context.Context, cmd Command) Result
}

// Command describes a single process invocation.
type Command struct {
	Args    []string
	Dir     string
	Stdin   string
	Env     []string
	Timeout time.Duration
	// Image is only consulted by container backed runners.
	Image string
}

// Result is the transient outcome of a run.
type Result struct {
	Success   bool
	Stdout    string
	Stderr    string
	Error     string
	ExitCode  int
	TimedOut  bool
	// Truncated is set when stdout or stderr went past the output cap.
	Truncated bool
	Duration  time.Duration
}

// Config groups executor configuration values.
type Config struct {
	Timeout        time.Duration
	MaxOutputBytes int
	KillGrace      time.Duration
	Logger         zerolog.Logger
}

// ProcessRunner executes commands as local child processes.
type ProcessRunner struct {
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewProcessRunner constructs a runner backed by os/exec.
func NewProcessRunner(cfg Config) *ProcessRunner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = DefaultKillGrace
	}

	return &ProcessRunner{
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/mockmate-judge/pkg/executor"),
		logger: cfg.Logger.With().Str("component", "process_runner").Logger(),
	}
}

// Run executes cmd with a hard wall-clock deadline. On expiry the whole process group
// is killed and the run is reported as timed out.
func (r *ProcessRunner) Run(parent context.Context, cmd Command) Result {
	if len(cmd.Args) == 0 || strings.TrimSpace(cmd.Args[0]) == "" {
		return Result{ExitCode: -1, Error: "command is empty"}
	}
	if parent == nil {
		parent = context.Background()
	}

	program := filepath.Base(cmd.Args[0])
	ctx, span := r.tracer.Start(parent, "executor.run", trace.WithAttributes(
		attribute.String("executor.program", program),
		attribute.Int("executor.stdin_bytes", len(cmd.Stdin)),
	))
	defer span.End()

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	proc := exec.CommandContext(ctx, cmd.Args[0], cmd.Args[1:]...)
	proc.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		proc.Env = append(os.Environ(), cmd.Env...)
	}
	if cmd.Stdin != "" {
		proc.Stdin = strings.NewReader(cmd.Stdin)
	}

	// exec copies both pipes on their own goroutines while the process runs
	stdout := NewCappedBuffer(r.cfg.MaxOutputBytes)
	stderr := NewCappedBuffer(r.cfg.MaxOutputBytes)
	proc.Stdout = stdout
	proc.Stderr = stderr
	proc.WaitDelay = r.cfg.KillGrace
	configureProcessGroup(proc)

	start := time.Now()
	runErr := proc.Run()
	duration := time.Since(start)
	execDuration.WithLabelValues(program).Observe(duration.Seconds())

	result := Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  duration,
		Truncated: stdout.Truncated() || stderr.Truncated(),
	}
	if proc.ProcessState != nil {
		result.ExitCode = proc.ProcessState.ExitCode()
	} else {
		result.ExitCode = -1
	}

	log := r.logger.With().Str("program", program).Dur("duration", duration).Logger()

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		result.Success = true
		log.Debug().Msg("execution finished")
	case errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil:
		result.TimedOut = true
		result.Error = TimeoutMessage
		execTimeouts.WithLabelValues(program).Inc()
		span.SetStatus(codes.Error, "execution timed out")
		log.Warn().Dur("timeout", timeout).Msg("execution killed after timeout")
	case parent.Err() != nil:
		result.Error = fmt.Sprintf("execution cancelled: %v", parent.Err())
		execFailures.WithLabelValues(program, "cancelled").Inc()
		span.SetStatus(codes.Error, result.Error)
	case errors.Is(runErr, exec.ErrWaitDelay) && result.ExitCode == 0:
		// a leftover descendant held the pipes open after a clean exit
		result.Success = true
		log.Debug().Msg("execution finished with detached output")
	case errors.As(runErr, &exitErr):
		result.Error = strings.TrimSpace(result.Stderr)
		if result.Error == "" {
			result.Error = fmt.Sprintf("process exited with code %d", result.ExitCode)
		}
		execFailures.WithLabelValues(program, "exit").Inc()
		span.SetStatus(codes.Error, "nonzero exit")
		log.Debug().Int("exit_code", result.ExitCode).Msg("execution exited nonzero")
	default:
		result.Error = runErr.Error()
		execFailures.WithLabelValues(program, "spawn").Inc()
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		log.Warn().Err(runErr).Msg("failed to start process")
	}

	span.SetAttributes(
		attribute.Int("executor.exit_code", result.ExitCode),
		attribute.Bool("executor.timed_out", result.TimedOut),
	)

	return result
}
