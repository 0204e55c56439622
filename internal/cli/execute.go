package cli

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/intent-iterative/intentctl/internal/config"
	"github.com/intent-iterative/intentctl/internal/env"
	"github.com/intent-iterative/intentctl/internal/executor"
	"github.com/intent-iterative/intentctl/internal/ir"
	"github.com/intent-iterative/intentctl/internal/planner"
)

// newExecuteCommand creates "execute" that runs the full pipeline: parse,
// dry-run, approval gate, committed execution. The input is a DSL document,
// or a previously saved IR JSON file with --ir.
func newExecuteCommand(_ *Options) *cobra.Command {
	var (
		irInput       bool
		yes           bool
		workspace     string
		keepWorkspace bool
		inlineVars    string
		varFiles      []string
	)

	cmd := &cobra.Command{
		Use:   "execute <file>",
		Short: "Execute an intent after the AMEN approval boundary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := LoggerFromContext(cmd.Context())

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			x, err := loadIntent(args[0], irInput, logger)
			if err != nil {
				return err
			}

			// Execution always uses artifacts from a fresh simulation.
			planner.New().DryRun(x)

			skip := yes || cfg.SkipAmenConfirmation
			if !skip && !x.AmenApproved {
				approved, err := confirmAmen(x)
				if err != nil {
					return err
				}
				if !approved {
					return fmt.Errorf("execution not approved")
				}
				x.Approve()
				logger.Info("intent approved", "id", x.ID, "intent", x.Intent.Name)
			}
			cfg.SkipAmenConfirmation = skip

			extra, err := collectVars(inlineVars, varFiles)
			if err != nil {
				return err
			}

			ex, err := executor.New(cfg, logger, workspace)
			if err != nil {
				return err
			}
			if !keepWorkspace {
				defer func() {
					if err := ex.Cleanup(); err != nil {
						logger.Warn("workspace cleanup failed", "error", err)
					}
				}()
			}

			result := ex.Execute(cmd.Context(), x, extra)
			for _, line := range result.Logs {
				fmt.Println(line)
			}
			if result.ContainerID != "" {
				fmt.Printf("container: %s\n", result.ContainerID)
			}
			if result.PID != 0 {
				fmt.Printf("pid: %d\n", result.PID)
			}
			for _, endpoint := range result.Endpoints {
				fmt.Printf("endpoint: %s\n", endpoint)
			}
			fmt.Printf("execution time: %s\n", result.ExecutionTime.Round(time.Millisecond))

			if !result.Success {
				return fmt.Errorf("execution failed: %s", result.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&irInput, "ir", false, "Treat the input file as saved IR JSON instead of DSL")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the interactive AMEN confirmation")
	cmd.Flags().StringVar(&workspace, "workspace", "", "Workspace directory for generated artifacts")
	cmd.Flags().BoolVar(&keepWorkspace, "keep-workspace", false, "Keep the workspace directory after execution")
	cmd.Flags().StringVar(&inlineVars, "vars", "", "Extra env vars for the service as comma-separated key=value pairs")
	cmd.Flags().StringArrayVar(&varFiles, "var-file", nil, "Extra .env-style files with env vars for the service (repeatable)")

	return cmd
}

// loadIntent reads the input either as a DSL document or as saved IR JSON.
func loadIntent(path string, irInput bool, logger *slog.Logger) (*ir.IntentIR, error) {
	if irInput {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read IR file %q: %w", path, err)
		}
		return ir.Decode(data)
	}
	result, err := parseDocument(path)
	if err != nil {
		return nil, err
	}
	for _, warning := range result.Warnings {
		logger.Warn(warning)
	}
	return result.IR, nil
}

// confirmAmen asks the operator to type AMEN before committed execution.
func confirmAmen(x *ir.IntentIR) (bool, error) {
	fmt.Printf("About to execute intent %q (%s): %s\n", x.Intent.Name, x.ID, x.Intent.Goal)
	fmt.Print("Type AMEN to approve: ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	return strings.TrimSpace(line) == "AMEN", nil
}

// collectVars merges var-files (in order) with inline vars, inline winning.
func collectVars(inline string, files []string) (env.Vars, error) {
	fileVars, err := env.LoadFiles(files)
	if err != nil {
		return nil, err
	}
	inlineVars, err := env.ParseInline(inline)
	if err != nil {
		return nil, err
	}
	return env.Merge(fileVars, inlineVars), nil
}
