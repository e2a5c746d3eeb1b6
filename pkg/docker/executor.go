package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/mockmate-judge/pkg/executor"
)

// StdinFileName is the workspace file that carries a run's standard input.
const StdinFileName = ".stdin"

var (
	execDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "judge",
		Subsystem: "container_executor",
		Name:      "execution_duration_seconds",
		Help:      "Duration of container executions",
		Buckets:   prometheus.DefBuckets,
	}, []string{"image"})

	execTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "judge",
		Subsystem: "container_executor",
		Name:      "execution_timeouts_total",
		Help:      "Number of container executions that hit the timeout",
	}, []string{"image"})

	execFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "judge",
		Subsystem: "container_executor",
		Name:      "execution_failures_total",
		Help:      "Number of container executions that resulted in an error",
	}, []string{"image"})
)

// Config groups executor configuration values.
type Config struct {
	Host           string
	Timeout        time.Duration
	MemoryLimitMB  int64
	CPUShares      int64
	// MaxOutputBytes caps each captured stream, as for the process backend.
	MaxOutputBytes int
	WorkingDir     string
	Logger         zerolog.Logger
}

// Executor runs commands inside throwaway Docker containers with the workspace
// bind-mounted at WorkingDir. It satisfies executor.Runner.
type Executor struct {
	client *client.Client
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

var _ executor.Runner = (*Executor)(nil)

// NewExecutor constructs a Docker backed executor.
func NewExecutor(cfg Config) (*Executor, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if cfg.WorkingDir == "" {
		cfg.WorkingDir = "/workspace"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = executor.DefaultTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = executor.DefaultMaxOutputBytes
	}

	return &Executor{
		client: cli,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/mockmate-judge/pkg/docker"),
		logger: cfg.Logger.With().Str("component", "docker_executor").Logger(),
	}, nil
}

// Run executes cmd inside a container built from cmd.Image.
func (e *Executor) Run(parent context.Context, cmd executor.Command) executor.Result {
	if parent == nil {
		parent = context.Background()
	}
	image := cmd.Image
	if image == "" {
		return executor.Result{ExitCode: -1, Error: "image is required"}
	}
	if len(cmd.Args) == 0 {
		return executor.Result{ExitCode: -1, Error: "command is empty"}
	}

	ctx, span := e.tracer.Start(parent, "docker.executor.run", trace.WithAttributes(
		attribute.String("docker.image", image),
	))
	defer span.End()

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args, err := e.prepareStdin(cmd)
	if err != nil {
		execFailures.WithLabelValues(image).Inc()
		return e.fail(span, image, err)
	}

	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:    e.cfg.MemoryLimitMB * 1024 * 1024,
			CPUShares: e.cfg.CPUShares,
		},
	}
	if cmd.Dir != "" {
		hostCfg.Mounts = append(hostCfg.Mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: cmd.Dir,
			Target: e.cfg.WorkingDir,
		})
	}

	config := &container.Config{
		Image:        image,
		Cmd:          args,
		Env:          cmd.Env,
		WorkingDir:   e.cfg.WorkingDir,
		AttachStdout: true,
		AttachStderr: true,
	}

	start := time.Now()
	result := executor.Result{ExitCode: -1}

	resp, err := e.client.ContainerCreate(ctx, config, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		execFailures.WithLabelValues(image).Inc()
		return e.fail(span, image, fmt.Errorf("container create: %w", err))
	}

	containerID := resp.ID
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to remove container")
		}
	}()

	if err := e.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		execFailures.WithLabelValues(image).Inc()
		return e.fail(span, image, fmt.Errorf("container start: %w", err))
	}

	statusCh, errCh := e.client.ContainerWait(ctx, containerID, container.WaitConditionNextExit)

	var waitErr error
	select {
	case err := <-errCh:
		waitErr = err
	case status := <-statusCh:
		result.ExitCode = int(status.StatusCode)
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	result.Duration = time.Since(start)
	execDuration.WithLabelValues(image).Observe(result.Duration.Seconds())

	if waitErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
			result.TimedOut = true
			result.Error = executor.TimeoutMessage
			execTimeouts.WithLabelValues(image).Inc()
			killCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := e.client.ContainerKill(killCtx, containerID, "KILL"); err != nil {
				e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to kill timed out container")
			}
			span.SetStatus(codes.Error, "execution timed out")
		} else {
			execFailures.WithLabelValues(image).Inc()
			return e.fail(span, image, fmt.Errorf("container wait: %w", waitErr))
		}
	}

	logCtx, cancelLogs := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelLogs()
	logReader, err := e.client.ContainerLogs(logCtx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err == nil {
		defer logReader.Close()
		logs, err := splitDockerLogs(logReader, e.cfg.MaxOutputBytes)
		if err != nil {
			e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to read container logs")
		} else {
			result.Stdout = logs.stdout.String()
			result.Stderr = logs.stderr.String()
			result.Truncated = logs.stdout.Truncated() || logs.stderr.Truncated()
		}
	} else {
		e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to fetch container logs")
	}

	switch {
	case result.TimedOut:
	case result.ExitCode != 0:
		result.Error = strings.TrimSpace(result.Stderr)
		if result.Error == "" {
			result.Error = fmt.Sprintf("process exited with code %d", result.ExitCode)
		}
		execFailures.WithLabelValues(image).Inc()
	default:
		result.Success = true
	}

	return result
}

// prepareStdin writes non-empty input into the workspace and wraps the command so
// the container reads it from there.
func (e *Executor) prepareStdin(cmd executor.Command) ([]string, error) {
	if cmd.Stdin == "" {
		return cmd.Args, nil
	}
	if cmd.Dir == "" {
		return nil, errors.New("stdin requires a workspace directory")
	}
	if err := os.WriteFile(filepath.Join(cmd.Dir, StdinFileName), []byte(cmd.Stdin), 0o600); err != nil {
		return nil, fmt.Errorf("write stdin: %w", err)
	}
	return WrapWithStdin(cmd.Args), nil
}

// WrapWithStdin returns a shell invocation that redirects StdinFileName into args.
func WrapWithStdin(args []string) []string {
	wrapped := []string{"sh", "-c", `exec "$@" < ` + StdinFileName, "sh"}
	return append(wrapped, args...)
}

func (e *Executor) fail(span trace.Span, image string, err error) executor.Result {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.logger.Error().Err(err).Str("image", image).Msg("container execution failed")
	return executor.Result{ExitCode: -1, Error: err.Error()}
}

type containerLogs struct {
	stdout *executor.CappedBuffer
	stderr *executor.CappedBuffer
}

// splitDockerLogs demultiplexes a container log stream, keeping at most limit bytes per stream.
func splitDockerLogs(reader io.Reader, limit int) (containerLogs, error) {
	logs := containerLogs{stdout: executor.NewCappedBuffer(limit), stderr: executor.NewCappedBuffer(limit)}
	if _, err := stdcopy.StdCopy(logs.stdout, logs.stderr, reader); err != nil {
		return containerLogs{}, err
	}
	return logs, nil
}

// Close shuts down the executor's underlying client.
func (e *Executor) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}
