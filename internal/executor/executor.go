// Package executor performs the committed execution of an approved intent:
// it materializes the artifacts produced by the planner into a workspace
// directory and builds/runs the service for real. All runtime faults are
// reported on the Result, never as returned errors, so callers can inspect
// partial outcomes such as a successful build followed by a failed run.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/intent-iterative/intentctl/internal/config"
	"github.com/intent-iterative/intentctl/internal/env"
	"github.com/intent-iterative/intentctl/internal/ir"
)

const (
	portProbeAttempts = 100
	stderrLogLimit    = 500
)

// Result is the outcome of an execution attempt. Success is false whenever
// Error is non-empty, including approval-gate violations.
type Result struct {
	Success       bool
	Logs          []string
	Artifacts     map[string]string
	ContainerID   string
	PID           int
	Endpoints     []string
	Error         string
	ExecutionTime time.Duration
}

// commandRunner abstracts external process invocation so container
// operations can be exercised without a docker daemon.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// spawnFunc launches a detached background process and returns its PID.
type spawnFunc func(name string, args, extraEnv []string, logPath string) (int, error)

// Executor materializes and runs approved intents in a workspace directory.
type Executor struct {
	cfg       config.Config
	logger    *slog.Logger
	workspace string

	runner commandRunner
	spawn  spawnFunc
	clock  func() time.Time
}

// New creates an Executor rooted at workspace. An empty workspace falls back
// to the configured directory, and failing that to a fresh temporary
// directory. The directory is created if needed.
func New(cfg config.Config, logger *slog.Logger, workspace string) (*Executor, error) {
	if workspace == "" {
		workspace = cfg.WorkspaceDir
	}
	if workspace == "" {
		dir, err := os.MkdirTemp("", "intent-")
		if err != nil {
			return nil, fmt.Errorf("create temporary workspace: %w", err)
		}
		workspace = dir
	} else if err := os.MkdirAll(workspace, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace %q: %w", workspace, err)
	}

	return &Executor{
		cfg:       cfg,
		logger:    logger,
		workspace: workspace,
		runner:    execRunner{},
		spawn:     detachedSpawn,
		clock:     time.Now,
	}, nil
}

// Workspace returns the directory artifacts are written into.
func (e *Executor) Workspace() string {
	return e.workspace
}

// Execute runs an intent. With SkipAmenConfirmation unset, an unapproved IR
// yields a blocked Result without any filesystem writes; with it set, the IR
// is auto-approved first and the promotion is logged. extra vars are merged
// over the IR's own env_vars when launching the service.
func (e *Executor) Execute(ctx context.Context, x *ir.IntentIR, extra env.Vars) *Result {
	result := &Result{Artifacts: make(map[string]string)}
	start := e.clock()
	defer func() {
		result.ExecutionTime = e.clock().Sub(start)
	}()

	if !e.cfg.SkipAmenConfirmation {
		if !x.AmenApproved {
			result.Error = "intent not approved, call Approve first"
			e.addLog(result, "ERROR: Execution blocked - AMEN boundary not passed")
			return result
		}
		if x.ExecutionMode != ir.ModeTransactional {
			result.Error = "intent is in dry-run mode, change to transactional mode"
			e.addLog(result, "ERROR: Execution blocked - still in dry-run mode")
			return result
		}
	} else if !x.AmenApproved {
		x.Approve()
		e.addLog(result, "Auto-approved intent (SKIP_AMEN_CONFIRMATION=true)")
		e.logger.Warn("approval gate bypassed", "intent", x.Intent.Name, "id", x.ID)
	}

	e.addLog(result, fmt.Sprintf("Starting execution for: %s", x.Intent.Name))
	e.addLog(result, fmt.Sprintf("Workspace: %s", e.workspace))

	if err := e.writeArtifacts(x, result); err != nil {
		result.Error = err.Error()
		e.addLog(result, fmt.Sprintf("ERROR: %v", err))
		return result
	}

	vars := env.Merge(env.Vars(x.Environment.EnvVars), extra)

	switch x.Environment.Runtime {
	case ir.RuntimeDocker:
		e.executeDocker(ctx, x, vars, result)
	case ir.RuntimeLocal:
		e.executeLocal(x, vars, result)
	default:
		e.addLog(result, fmt.Sprintf("Runtime %s not yet supported", x.Environment.Runtime))
		result.Error = fmt.Sprintf("unsupported runtime: %s", x.Environment.Runtime)
	}

	if result.Error == "" {
		result.Success = true
		e.addLog(result, "Execution completed successfully")
	}
	return result
}

// Cleanup removes the workspace directory and everything under it.
func (e *Executor) Cleanup() error {
	if err := os.RemoveAll(e.workspace); err != nil {
		return fmt.Errorf("remove workspace %q: %w", e.workspace, err)
	}
	return nil
}

func (e *Executor) addLog(result *Result, message string) {
	result.Logs = append(result.Logs,
		fmt.Sprintf("[%s] %s", e.clock().Format("15:04:05"), message))
}

// appFileName maps a language to the filename the Dockerfile expects.
func appFileName(language string) string {
	switch language {
	case "python":
		return "app.py"
	case "node":
		return "app.js"
	default:
		return "app.txt"
	}
}

func (e *Executor) writeArtifacts(x *ir.IntentIR, result *Result) error {
	if x.GeneratedCode != "" {
		name := appFileName(x.Implementation.Language)
		path := filepath.Join(e.workspace, name)
		if err := os.WriteFile(path, []byte(x.GeneratedCode), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		result.Artifacts["app"] = path
		e.addLog(result, fmt.Sprintf("Written: %s", name))
	}

	if x.Dockerfile != "" {
		path := filepath.Join(e.workspace, "Dockerfile")
		if err := os.WriteFile(path, []byte(x.Dockerfile), 0o644); err != nil {
			return fmt.Errorf("write Dockerfile: %w", err)
		}
		result.Artifacts["Dockerfile"] = path
		e.addLog(result, "Written: Dockerfile")
	}

	if x.Implementation.Language == "node" {
		deps := map[string]string{}
		if x.Implementation.Framework == "express" {
			deps["express"] = "^4.18.0"
		}
		manifest := struct {
			Name         string            `json:"name"`
			Version      string            `json:"version"`
			Main         string            `json:"main"`
			Dependencies map[string]string `json:"dependencies"`
		}{
			Name:         x.Intent.Name,
			Version:      "1.0.0",
			Main:         "app.js",
			Dependencies: deps,
		}
		data, err := json.MarshalIndent(manifest, "", "  ")
		if err != nil {
			return fmt.Errorf("encode package.json: %w", err)
		}
		path := filepath.Join(e.workspace, "package.json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write package.json: %w", err)
		}
		result.Artifacts["package.json"] = path
		e.addLog(result, "Written: package.json")
	}

	return nil
}

// freePort probes TCP bind availability starting at start, incrementing on
// conflict. After the attempt budget is exhausted it falls back to
// start+attempts instead of failing.
func freePort(start int) int {
	port := start
	for i := 0; i < portProbeAttempts; i++ {
		l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			_ = l.Close()
			return port
		}
		port++
	}
	return start + portProbeAttempts
}

func (e *Executor) executeDocker(ctx context.Context, x *ir.IntentIR, vars env.Vars, result *Result) {
	prefix := e.cfg.ContainerPrefix
	imageName := fmt.Sprintf("%s-%s:latest", prefix, x.Intent.Name)
	containerName := fmt.Sprintf("%s-%s-%s", prefix, x.Intent.Name, x.ID)

	requestedPort := e.cfg.ContainerPort
	if len(x.Environment.Ports) > 0 {
		requestedPort = x.Environment.Ports[0]
	}
	hostPort := freePort(requestedPort)
	if hostPort != requestedPort {
		e.addLog(result, fmt.Sprintf("Port %d in use, using %d", requestedPort, hostPort))
	}

	e.addLog(result, fmt.Sprintf("Building Docker image: %s", imageName))
	e.logger.Info("building image", "image", imageName, "workspace", e.workspace)

	buildCtx, cancel := context.WithTimeout(ctx, e.cfg.BuildTimeout)
	defer cancel()
	_, stderr, err := e.runner.Run(buildCtx, "docker", "build", "-t", imageName, e.workspace)
	if err != nil {
		result.Error = fmt.Sprintf("docker build failed: %s", stderr)
		e.addLog(result, fmt.Sprintf("Build error: %s", truncate(stderr, stderrLogLimit)))
		return
	}
	e.addLog(result, "Docker image built successfully")

	// Best effort: a previous run may have left a container behind.
	stopCtx, cancelStop := context.WithTimeout(ctx, e.cfg.StopTimeout)
	defer cancelStop()
	_, _, _ = e.runner.Run(stopCtx, "docker", "rm", "-f", containerName)

	containerPort := e.cfg.ContainerPort
	runArgs := []string{
		"run", "-d",
		"--name", containerName,
		"-p", fmt.Sprintf("%d:%d", hostPort, containerPort),
	}
	for _, key := range vars.SortedKeys() {
		runArgs = append(runArgs, "-e", fmt.Sprintf("%s=%s", key, vars[key]))
	}
	for _, port := range x.Environment.Ports {
		if port == containerPort {
			continue
		}
		extraHostPort := freePort(port)
		runArgs = append(runArgs, "-p", fmt.Sprintf("%d:%d", extraHostPort, port))
	}
	runArgs = append(runArgs, imageName)

	e.addLog(result, fmt.Sprintf("Starting container: %s", containerName))
	e.logger.Info("starting container", "container", containerName, "host_port", hostPort)

	runCtx, cancelRun := context.WithTimeout(ctx, e.cfg.RunTimeout)
	defer cancelRun()
	stdout, stderr, err := e.runner.Run(runCtx, "docker", runArgs...)
	if err != nil {
		result.Error = fmt.Sprintf("docker run failed: %s", stderr)
		e.addLog(result, fmt.Sprintf("Run error: %s", truncate(stderr, stderrLogLimit)))
		return
	}

	result.ContainerID = truncate(strings.TrimSpace(stdout), 12)
	e.addLog(result, fmt.Sprintf("Container started: %s", result.ContainerID))

	result.Endpoints = append(result.Endpoints, fmt.Sprintf("http://localhost:%d", hostPort))
	for _, action := range x.Implementation.Actions {
		if action.Type == ir.ActionAPIExpose {
			result.Endpoints = append(result.Endpoints,
				fmt.Sprintf("http://localhost:%d%s", hostPort, action.Target))
		}
	}
}

// executeLocal launches the generated application as a detached background
// process, its output captured in a workspace log file.
func (e *Executor) executeLocal(x *ir.IntentIR, vars env.Vars, result *Result) {
	appFile, ok := result.Artifacts["app"]
	if !ok {
		result.Error = "no application file generated"
		return
	}

	var command string
	switch x.Implementation.Language {
	case "python":
		command = "python3"
	case "node":
		command = "node"
	default:
		result.Error = fmt.Sprintf("unsupported language for local execution: %s", x.Implementation.Language)
		return
	}

	port := freePort(e.cfg.ContainerPort)
	spawnVars := env.Merge(vars, env.Vars{"PORT": fmt.Sprintf("%d", port)})

	logPath := filepath.Join(e.workspace, "app.log")
	e.addLog(result, fmt.Sprintf("Starting local execution: %s", appFile))
	e.addLog(result, fmt.Sprintf("Command: %s %s", command, appFile))

	pid, err := e.spawn(command, []string{appFile}, spawnVars.Environ(), logPath)
	if err != nil {
		result.Error = fmt.Sprintf("start local process: %v", err)
		e.addLog(result, fmt.Sprintf("ERROR: %v", err))
		return
	}

	result.PID = pid
	e.addLog(result, fmt.Sprintf("Process started: pid %d, logs at %s", pid, logPath))
	e.logger.Info("local process started", "pid", pid, "log", logPath)

	result.Endpoints = append(result.Endpoints, fmt.Sprintf("http://localhost:%d", port))
}

// detachedSpawn starts name with args as a background process that outlives
// this call, redirecting combined output to logPath.
func detachedSpawn(name string, args, extraEnv []string, logPath string) (int, error) {
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open process log %q: %w", logPath, err)
	}

	cmd := exec.Command(name, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(), extraEnv...)

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return 0, err
	}
	pid := cmd.Process.Pid
	// The parent keeps no handle: the process is reaped out-of-band.
	_ = cmd.Process.Release()
	_ = logFile.Close()
	return pid, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
