package judge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mockmate-judge/pkg/executor"
	"github.com/noah-isme/mockmate-judge/pkg/language"
	"github.com/noah-isme/mockmate-judge/pkg/workspace"
)

type fakeRunner struct {
	mu       sync.Mutex
	commands []executor.Command
	results  []executor.Result
	dirs     []string
	sources  []string
}

func (f *fakeRunner) Run(_ context.Context, cmd executor.Command) executor.Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.commands = append(f.commands, cmd)
	f.dirs = append(f.dirs, cmd.Dir)
	if entries, err := os.ReadDir(cmd.Dir); err == nil {
		for _, entry := range entries {
			f.sources = append(f.sources, entry.Name())
		}
	}

	if len(f.results) == 0 {
		return executor.Result{Success: true}
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

func newTestJudge(t *testing.T, runner executor.Runner, cfg Config, opts ...language.Option) (*Judge, string) {
	t.Helper()
	root := t.TempDir()
	cfg.Logger = zerolog.Nop()
	return New(language.NewRegistry(opts...), runner, workspace.NewManager(root, "judge-test-"), cfg), root
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestEvaluateWithoutTestCasesSkipsWorkspace(t *testing.T) {
	runner := &fakeRunner{}
	j, root := newTestJudge(t, runner, Config{})

	result, err := j.Evaluate(context.Background(), Submission{Code: "print(1)", Language: language.Python}, nil, Hooks{})
	require.NoError(t, err)
	require.Equal(t, 0.0, result.Score)
	require.Equal(t, 0, result.Total)
	require.Equal(t, NoTestCasesFeedback, result.Feedback)
	require.Empty(t, runner.commands)
	requireEmptyDir(t, root)
}

func TestEvaluateComparesTrimmedOutput(t *testing.T) {
	runner := &fakeRunner{results: []executor.Result{
		{Success: true, Stdout: "0 1\n"},
		{Success: true, Stdout: "  1 2  \n\n"},
		{Success: true, Stdout: "0 1"},
	}}
	j, root := newTestJudge(t, runner, Config{})

	cases := []TestCase{
		{Input: "2 7 11 15\n9", Expected: "0 1"},
		{Input: "3 2 4\n6", Expected: "1 2\n"},
		{Input: "3 3\n6", Expected: "0\n1"},
	}

	var running int
	result, err := j.Evaluate(context.Background(), Submission{Code: "solve()", Language: language.Python}, cases, Hooks{
		OnRunning: func(context.Context) error {
			running++
			return nil
		},
	})
	require.NoError(t, err)
	require.Equal(t, 1, running)
	require.Equal(t, 2, result.Passed)
	require.Equal(t, 3, result.Total)
	require.InDelta(t, 66.67, result.Score, 0.01)
	require.Equal(t,
		"✓ Test case 1 passed\n"+
			"✓ Test case 2 passed\n"+
			"✗ Test case 3 failed\nExpected: 0\n1\nGot: 0 1\n",
		result.Feedback)

	require.Len(t, runner.commands, 3)
	for i, cmd := range runner.commands {
		require.Equal(t, []string{"python3", "solution.py"}, cmd.Args)
		require.Equal(t, cases[i].Input, cmd.Stdin)
		require.Equal(t, executor.DefaultTimeout, cmd.Timeout)
	}
	require.Contains(t, runner.sources, "solution.py")
	requireEmptyDir(t, root)
}

func TestEvaluateReportsRuntimeErrorsAndHiddenCases(t *testing.T) {
	runner := &fakeRunner{results: []executor.Result{
		{Success: false, Error: "Traceback: ZeroDivisionError"},
		{Success: true, Stdout: "wrong"},
		{Success: false, TimedOut: true, Error: executor.TimeoutMessage},
	}}
	j, _ := newTestJudge(t, runner, Config{})

	cases := []TestCase{
		{Input: "1", Expected: "1"},
		{Input: "2", Expected: "secret", Hidden: true},
		{Input: "3", Expected: "3"},
	}

	result, err := j.Evaluate(context.Background(), Submission{Code: "x", Language: language.Python}, cases, Hooks{})
	require.NoError(t, err)
	require.Equal(t, 0, result.Passed)
	require.Equal(t, 0.0, result.Score)
	require.Contains(t, result.Feedback, "✗ Test case 1 failed\nError: Traceback: ZeroDivisionError\n")
	require.Contains(t, result.Feedback, "✗ Test case 2 failed\nOutput did not match (hidden test case)\n")
	require.NotContains(t, result.Feedback, "secret")
	require.Contains(t, result.Feedback, "✗ Test case 3 failed\nError: Execution timeout\n")
}

func TestEvaluateUsesLanguageConventions(t *testing.T) {
	tests := []struct {
		lang   language.Language
		file   string
		args   []string
		images string
	}{
		{language.Java, "Solution.java", []string{"java", "Solution"}, "eclipse-temurin:21-jdk-alpine"},
		{language.Python, "solution.py", []string{"python3", "solution.py"}, "python:3.11-alpine"},
		{language.Cpp, "solution.cpp", []string{"./solution"}, "gcc:13"},
		{language.JavaScript, "solution.js", []string{"node", "solution.js"}, "node:20-alpine"},
	}

	for _, tt := range tests {
		t.Run(string(tt.lang), func(t *testing.T) {
			runner := &fakeRunner{}
			j, _ := newTestJudge(t, runner, Config{})

			_, err := j.Evaluate(context.Background(), Submission{Code: "code", Language: tt.lang}, []TestCase{{Input: "", Expected: ""}}, Hooks{})
			require.NoError(t, err)
			require.Len(t, runner.commands, 1)
			require.Equal(t, tt.args, runner.commands[0].Args)
			require.Equal(t, tt.images, runner.commands[0].Image)
			require.Contains(t, runner.sources, tt.file)
		})
	}
}

func TestEvaluateSkipsCompileWhenDisabled(t *testing.T) {
	runner := &fakeRunner{}
	j, _ := newTestJudge(t, runner, Config{})

	_, err := j.Evaluate(context.Background(), Submission{Code: "int main(){}", Language: language.Cpp}, []TestCase{{Expected: ""}}, Hooks{})
	require.NoError(t, err)
	require.Len(t, runner.commands, 1)
	require.Equal(t, []string{"./solution"}, runner.commands[0].Args)
}

func TestEvaluateReportsCompilationFailure(t *testing.T) {
	runner := &fakeRunner{results: []executor.Result{
		{Success: false, Stderr: "solution.cpp:1: error: expected ';'\n", Error: "solution.cpp:1: error: expected ';'"},
	}}
	j, _ := newTestJudge(t, runner, Config{CompileEnabled: true})

	var running bool
	result, err := j.Evaluate(context.Background(), Submission{Code: "int main(){", Language: language.Cpp}, []TestCase{{Expected: "1"}, {Expected: "2"}}, Hooks{
		OnRunning: func(context.Context) error {
			running = true
			return nil
		},
	})
	require.NoError(t, err)
	require.False(t, running)
	require.Equal(t, "solution.cpp:1: error: expected ';'", result.CompileError)
	require.Equal(t, 0, result.Passed)
	require.Equal(t, 2, result.Total)
	require.Equal(t, 0.0, result.Score)
	require.Equal(t, "✗ Compilation failed\nsolution.cpp:1: error: expected ';'\n✗ Test case 1 failed\n✗ Test case 2 failed\n", result.Feedback)
	require.Len(t, runner.commands, 1)
	require.Equal(t, []string{"g++", "-O2", "-std=c++17", "-o", "solution", "solution.cpp"}, runner.commands[0].Args)
}

func TestEvaluateCompilesBeforeRunning(t *testing.T) {
	runner := &fakeRunner{results: []executor.Result{
		{Success: true},
		{Success: true, Stdout: "ok"},
	}}
	j, _ := newTestJudge(t, runner, Config{CompileEnabled: true})

	result, err := j.Evaluate(context.Background(), Submission{Code: "class Solution {}", Language: language.Java}, []TestCase{{Expected: "ok"}}, Hooks{})
	require.NoError(t, err)
	require.Equal(t, 1, result.Passed)
	require.Len(t, runner.commands, 2)
	require.Equal(t, []string{"javac", "Solution.java"}, runner.commands[0].Args)
	require.Equal(t, runner.commands[0].Dir, runner.commands[1].Dir)
}

func TestEvaluateWrapsWorkspaceFailures(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("file"), 0o600))
	j := New(language.NewRegistry(), &fakeRunner{}, workspace.NewManager(filepath.Join(blocker, "nested"), "judge-"), Config{Logger: zerolog.Nop()})

	_, err := j.Evaluate(context.Background(), Submission{Code: "x", Language: language.Python}, []TestCase{{Expected: "1"}}, Hooks{})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrSystem))
}

func TestEvaluateStopsWhenRunningHookFails(t *testing.T) {
	runner := &fakeRunner{}
	j, root := newTestJudge(t, runner, Config{})

	_, err := j.Evaluate(context.Background(), Submission{Code: "x", Language: language.Python}, []TestCase{{Expected: "1"}}, Hooks{
		OnRunning: func(context.Context) error { return errors.New("db down") },
	})
	require.True(t, errors.Is(err, ErrSystem))
	require.Empty(t, runner.commands)
	requireEmptyDir(t, root)
}

func TestRunReturnsTrimmedOutput(t *testing.T) {
	runner := &fakeRunner{results: []executor.Result{{Success: true, Stdout: "hello\n"}}}
	j, root := newTestJudge(t, runner, Config{})

	output, err := j.Run(context.Background(), Submission{Code: "print('hello')", Language: language.Python}, "")
	require.NoError(t, err)
	require.True(t, output.Success)
	require.Equal(t, "hello", output.Output)
	requireEmptyDir(t, root)
}

func TestRunReportsFailure(t *testing.T) {
	runner := &fakeRunner{results: []executor.Result{{Success: false, Error: "NameError: name 'x' is not defined"}}}
	j, _ := newTestJudge(t, runner, Config{})

	output, err := j.Run(context.Background(), Submission{Code: "x", Language: language.Python}, "")
	require.NoError(t, err)
	require.False(t, output.Success)
	require.Equal(t, "NameError: name 'x' is not defined", output.Error)
}

func TestEvaluateWithProcessRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	runner := executor.NewProcessRunner(executor.Config{Timeout: time.Second, Logger: zerolog.Nop()})
	j, root := newTestJudge(t, runner, Config{Timeout: 300 * time.Millisecond}, language.WithRunTemplate(language.Python, "sh {src}"))

	code := strings.Join([]string{
		`read a b`,
		`if [ "$a" = "loop" ]; then while :; do :; done; fi`,
		`if [ "$a" = "boom" ]; then echo "bad input" >&2; exit 3; fi`,
		`echo $((a + b))`,
	}, "\n")

	cases := []TestCase{
		{Input: "2 3\n", Expected: "5\n"},
		{Input: "boom 1\n", Expected: "1"},
		{Input: "loop 0\n", Expected: "0"},
		{Input: "10 -4\n", Expected: "6"},
	}

	result, err := j.Evaluate(context.Background(), Submission{Code: code, Language: language.Python}, cases, Hooks{})
	require.NoError(t, err)
	require.Equal(t, 2, result.Passed)
	require.Equal(t, 4, result.Total)
	require.InDelta(t, 50.0, result.Score, 1e-9)
	require.Contains(t, result.Feedback, "✓ Test case 1 passed\n")
	require.Contains(t, result.Feedback, "✗ Test case 2 failed\nError: bad input\n")
	require.Contains(t, result.Feedback, "✗ Test case 3 failed\nError: Execution timeout\n")
	require.Contains(t, result.Feedback, "✓ Test case 4 passed\n")
	requireEmptyDir(t, root)
}

func TestEvaluateFailFastSkipsRemainingCases(t *testing.T) {
	runner := &fakeRunner{results: []executor.Result{
		{Success: true, Stdout: "1"},
		{Success: true, Stdout: "nope"},
	}}
	j, _ := newTestJudge(t, runner, Config{FailFast: true})

	cases := []TestCase{{Expected: "1"}, {Expected: "2"}, {Expected: "3"}, {Expected: "4"}}
	result, err := j.Evaluate(context.Background(), Submission{Code: "x", Language: language.Python}, cases, Hooks{})
	require.NoError(t, err)
	require.Len(t, runner.commands, 2)
	require.Equal(t, 1, result.Passed)
	require.Equal(t, 4, result.Total)
	require.InDelta(t, 25.0, result.Score, 1e-9)
	require.True(t, strings.HasSuffix(result.Feedback, "✗ Test case 3 skipped\n✗ Test case 4 skipped\n"))
}

func TestEvaluateFailsOutputPastTheCap(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	runner := executor.NewProcessRunner(executor.Config{Timeout: time.Second, MaxOutputBytes: 4, Logger: zerolog.Nop()})
	j, _ := newTestJudge(t, runner, Config{}, language.WithRunTemplate(language.Python, "sh {src}"))

	result, err := j.Evaluate(context.Background(), Submission{Code: "echo 1234WRONG", Language: language.Python}, []TestCase{{Expected: "1234"}}, Hooks{})
	require.NoError(t, err)
	require.Equal(t, 0, result.Passed)
	require.Equal(t, "✗ Test case 1 failed\nError: Output limit exceeded\n", result.Feedback)
}

func TestRunReportsTruncatedOutput(t *testing.T) {
	runner := &fakeRunner{results: []executor.Result{{Success: true, Stdout: "yyyy", Truncated: true}}}
	j, _ := newTestJudge(t, runner, Config{})

	output, err := j.Run(context.Background(), Submission{Code: "yes", Language: language.Python}, "")
	require.NoError(t, err)
	require.Equal(t, RunOutput{Success: false, Output: "yyyy", Error: executor.OutputLimitMessage}, output)
}

func TestEvaluateReturnsDeadlineInsteadOfFailingTheCase(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	runner := executor.NewProcessRunner(executor.Config{Timeout: 5 * time.Second, Logger: zerolog.Nop()})
	j, root := newTestJudge(t, runner, Config{Timeout: 5 * time.Second}, language.WithRunTemplate(language.Python, "sh {src}"))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	started := time.Now()
	_, err := j.Evaluate(ctx, Submission{Code: "sleep 3; echo 1", Language: language.Python}, []TestCase{{Expected: "1"}}, Hooks{})
	require.ErrorIs(t, err, ErrSystem)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(started), 3*time.Second)
	requireEmptyDir(t, root)
}
