package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/intent-iterative/intentctl/internal/config"
	"github.com/intent-iterative/intentctl/internal/env"
	"github.com/intent-iterative/intentctl/internal/ir"
	"github.com/intent-iterative/intentctl/internal/logging"
)

type call struct {
	name string
	args []string
}

// fakeRunner records docker invocations and replies per subcommand.
type fakeRunner struct {
	calls     []call
	buildErr  error
	buildOut  string
	runErr    error
	runStdout string
	runStderr string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, string, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	if len(args) == 0 {
		return "", "", nil
	}
	switch args[0] {
	case "build":
		return "", f.buildOut, f.buildErr
	case "run":
		return f.runStdout, f.runStderr, f.runErr
	default:
		return "", "", nil
	}
}

func testConfig() config.Config {
	return config.Config{
		ContainerPort:   8000,
		ContainerPrefix: "intent",
		BuildTimeout:    time.Minute,
		RunTimeout:      time.Minute,
		StopTimeout:     time.Second,
	}
}

func testExecutor(t *testing.T, cfg config.Config) (*Executor, *fakeRunner) {
	t.Helper()
	logger := logging.NewLogger(io.Discard, slog.LevelError)
	e, err := New(cfg, logger, t.TempDir())
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}
	runner := &fakeRunner{runStdout: "abcdef1234567890deadbeef\n"}
	e.runner = runner
	e.spawn = func(string, []string, []string, string) (int, error) {
		t.Fatal("spawn must not be called")
		return 0, nil
	}
	return e, runner
}

func approvedIR() *ir.IntentIR {
	x := ir.New(ir.Intent{Name: "my-api", Goal: "serve"})
	x.Implementation.Actions = []ir.Action{
		{Type: ir.ActionAPIExpose, Method: "GET", Target: "/ping"},
	}
	x.GeneratedCode = "print('hi')"
	x.Dockerfile = "FROM python:3.12-slim"
	x.Approve()
	return x
}

func TestExecute_BlockedWithoutApproval(t *testing.T) {
	e, runner := testExecutor(t, testConfig())
	x := ir.New(ir.Intent{Name: "my-api", Goal: "serve"})
	x.GeneratedCode = "print('hi')"
	x.Dockerfile = "FROM python:3.12-slim"

	result := e.Execute(context.Background(), x, nil)

	if result.Success {
		t.Fatal("unapproved intent must be blocked")
	}
	if !strings.Contains(result.Error, "not approved") {
		t.Errorf("unexpected error: %q", result.Error)
	}
	if len(runner.calls) != 0 {
		t.Errorf("no process must run, got %d calls", len(runner.calls))
	}

	entries, err := os.ReadDir(e.Workspace())
	if err != nil {
		t.Fatalf("read workspace: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("blocked execution must not write files, found %d", len(entries))
	}
}

func TestExecute_BypassAutoApproves(t *testing.T) {
	cfg := testConfig()
	cfg.SkipAmenConfirmation = true
	e, _ := testExecutor(t, cfg)

	x := ir.New(ir.Intent{Name: "my-api", Goal: "serve"})
	x.GeneratedCode = "print('hi')"
	x.Dockerfile = "FROM python:3.12-slim"

	result := e.Execute(context.Background(), x, nil)

	if !x.AmenApproved || x.ExecutionMode != ir.ModeTransactional {
		t.Error("bypass must promote the IR through the approval gate")
	}
	joined := strings.Join(result.Logs, "\n")
	if !strings.Contains(joined, "Auto-approved") {
		t.Error("auto-approval must be logged")
	}
}

func TestExecute_DockerFlow(t *testing.T) {
	e, runner := testExecutor(t, testConfig())
	x := approvedIR()
	x.Environment.EnvVars = map[string]string{"MODE": "prod", "DEBUG": "0"}

	result := e.Execute(context.Background(), x, env.Vars{"EXTRA": "1"})

	if !result.Success {
		t.Fatalf("execution failed: %s", result.Error)
	}
	if result.ContainerID != "abcdef123456" {
		t.Errorf("container id not truncated to 12: %q", result.ContainerID)
	}

	if len(runner.calls) != 3 {
		t.Fatalf("expected build, rm, run, got %d calls", len(runner.calls))
	}
	if runner.calls[0].args[0] != "build" {
		t.Errorf("first call must be build: %v", runner.calls[0].args)
	}
	if !strings.Contains(strings.Join(runner.calls[0].args, " "), "intent-my-api:latest") {
		t.Errorf("build must tag the image: %v", runner.calls[0].args)
	}
	if runner.calls[1].args[0] != "rm" {
		t.Errorf("second call must remove stale container: %v", runner.calls[1].args)
	}
	runArgs := strings.Join(runner.calls[2].args, " ")
	if !strings.Contains(runArgs, "--name intent-my-api-"+x.ID) {
		t.Errorf("run must name the container: %v", runArgs)
	}
	// Env vars appear sorted, merged with extras.
	for _, kv := range []string{"DEBUG=0", "EXTRA=1", "MODE=prod"} {
		if !strings.Contains(runArgs, "-e "+kv) {
			t.Errorf("run missing env var %s: %v", kv, runArgs)
		}
	}

	if len(result.Endpoints) != 2 {
		t.Fatalf("expected base URL plus one action endpoint, got %v", result.Endpoints)
	}
	if !strings.HasPrefix(result.Endpoints[0], "http://localhost:") {
		t.Errorf("unexpected base endpoint: %q", result.Endpoints[0])
	}
	if !strings.HasSuffix(result.Endpoints[1], "/ping") {
		t.Errorf("unexpected action endpoint: %q", result.Endpoints[1])
	}

	for _, name := range []string{"app.py", "Dockerfile"} {
		if _, err := os.Stat(filepath.Join(e.Workspace(), name)); err != nil {
			t.Errorf("artifact %s not written: %v", name, err)
		}
	}
	if result.ExecutionTime < 0 {
		t.Error("execution time must be non-negative")
	}
}

func TestExecute_DockerBuildFailure(t *testing.T) {
	e, runner := testExecutor(t, testConfig())
	runner.buildErr = errors.New("exit status 1")
	runner.buildOut = strings.Repeat("x", 600)

	result := e.Execute(context.Background(), approvedIR(), nil)

	if result.Success {
		t.Fatal("build failure must fail the execution")
	}
	if !strings.Contains(result.Error, "docker build failed") {
		t.Errorf("unexpected error: %q", result.Error)
	}
	if len(runner.calls) != 1 {
		t.Errorf("no further docker calls after failed build, got %d", len(runner.calls))
	}
	// Diagnostic text in the log is truncated.
	last := result.Logs[len(result.Logs)-1]
	if len(last) > 600 {
		t.Errorf("build error log not truncated: %d chars", len(last))
	}
}

func TestExecute_DockerRunFailure(t *testing.T) {
	e, runner := testExecutor(t, testConfig())
	runner.runErr = errors.New("exit status 125")
	runner.runStderr = "port is already allocated"

	result := e.Execute(context.Background(), approvedIR(), nil)

	if result.Success {
		t.Fatal("run failure must fail the execution")
	}
	if !strings.Contains(result.Error, "docker run failed") {
		t.Errorf("unexpected error: %q", result.Error)
	}
	if result.ContainerID != "" {
		t.Errorf("no container id on failed run, got %q", result.ContainerID)
	}
}

func TestExecute_PortSubstitutionLogged(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = l.Close() }()
	occupied := l.Addr().(*net.TCPAddr).Port

	e, _ := testExecutor(t, testConfig())
	x := approvedIR()
	x.Environment.Ports = []int{occupied}

	result := e.Execute(context.Background(), x, nil)
	if !result.Success {
		t.Fatalf("execution failed: %s", result.Error)
	}
	joined := strings.Join(result.Logs, "\n")
	if !strings.Contains(joined, fmt.Sprintf("Port %d in use", occupied)) {
		t.Errorf("port substitution not logged:\n%s", joined)
	}
}

func TestExecute_LocalSpawn(t *testing.T) {
	e, _ := testExecutor(t, testConfig())
	var spawned call
	e.spawn = func(name string, args, extraEnv []string, logPath string) (int, error) {
		spawned = call{name: name, args: args}
		return 4242, nil
	}

	x := approvedIR()
	x.Environment.Runtime = ir.RuntimeLocal

	result := e.Execute(context.Background(), x, nil)
	if !result.Success {
		t.Fatalf("execution failed: %s", result.Error)
	}
	if result.PID != 4242 {
		t.Errorf("expected recorded pid 4242, got %d", result.PID)
	}
	if spawned.name != "python3" {
		t.Errorf("expected python3 interpreter, got %q", spawned.name)
	}
	if len(result.Endpoints) != 1 || !strings.HasPrefix(result.Endpoints[0], "http://localhost:") {
		t.Errorf("unexpected endpoints: %v", result.Endpoints)
	}
}

func TestExecute_LocalUnsupportedLanguage(t *testing.T) {
	e, _ := testExecutor(t, testConfig())
	x := approvedIR()
	x.Environment.Runtime = ir.RuntimeLocal
	x.Implementation.Language = "cobol"

	result := e.Execute(context.Background(), x, nil)
	if result.Success {
		t.Fatal("unsupported language must fail")
	}
	if !strings.Contains(result.Error, "cobol") {
		t.Errorf("error should name the language: %q", result.Error)
	}
}

func TestExecute_KubernetesUnsupported(t *testing.T) {
	e, _ := testExecutor(t, testConfig())
	x := approvedIR()
	x.Environment.Runtime = ir.RuntimeKubernetes

	result := e.Execute(context.Background(), x, nil)
	if result.Success {
		t.Fatal("kubernetes runtime must be reported unsupported")
	}
	if !strings.Contains(result.Error, "unsupported runtime: kubernetes") {
		t.Errorf("unexpected error: %q", result.Error)
	}
}

func TestWriteArtifacts_NodeManifest(t *testing.T) {
	e, _ := testExecutor(t, testConfig())
	x := approvedIR()
	x.Implementation.Language = "node"
	x.Implementation.Framework = "express"

	result := &Result{Artifacts: make(map[string]string)}
	if err := e.writeArtifacts(x, result); err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(e.Workspace(), "package.json"))
	if err != nil {
		t.Fatalf("read package.json: %v", err)
	}
	manifest := string(data)
	if !strings.Contains(manifest, `"express": "^4.18.0"`) {
		t.Errorf("manifest missing express dependency:\n%s", manifest)
	}
	if !strings.Contains(manifest, `"main": "app.js"`) {
		t.Errorf("manifest missing entry point:\n%s", manifest)
	}
	if _, ok := result.Artifacts["app"]; !ok {
		t.Error("app artifact not recorded")
	}
}

func TestFreePort_SkipsOccupied(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = l.Close() }()
	occupied := l.Addr().(*net.TCPAddr).Port

	got := freePort(occupied)
	if got == occupied {
		t.Errorf("freePort returned the occupied port %d", occupied)
	}
	if got < occupied || got > occupied+portProbeAttempts {
		t.Errorf("freePort %d outside probe window from %d", got, occupied)
	}
}

func TestCleanup_RemovesWorkspace(t *testing.T) {
	e, _ := testExecutor(t, testConfig())
	path := filepath.Join(e.Workspace(), "leftover.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := e.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := os.Stat(e.Workspace()); !os.IsNotExist(err) {
		t.Errorf("workspace still present: %v", err)
	}
}
