package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/intent-iterative/intentctl/internal/parser"
	"github.com/intent-iterative/intentctl/internal/planner"
)

// newPlanCommand creates "plan" that parses a DSL document and performs a
// dry-run simulation: generated code, Dockerfile, simulation log and
// resource estimates, with zero side effects.
func newPlanCommand(_ *Options) *cobra.Command {
	var (
		actions  []string
		output   string
		jsonOut  bool
		showCode bool
	)

	cmd := &cobra.Command{
		Use:   "plan <file>",
		Short: "Simulate an intent without side effects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := LoggerFromContext(cmd.Context())

			parsed, err := parseDocument(args[0])
			if err != nil {
				return err
			}
			x := parsed.IR
			for _, warning := range parsed.Warnings {
				logger.Warn(warning)
			}

			if len(actions) > 0 {
				changes := make(map[string]string, len(actions))
				for i, line := range actions {
					action, err := parser.ParseActionLine(line)
					if err != nil {
						return fmt.Errorf("invalid --action %q: %w", line, err)
					}
					x.Implementation.Actions = append(x.Implementation.Actions, action)
					changes[fmt.Sprintf("action_%d", i+1)] = action.String()
				}
				x.RecordIteration(changes, "cli")
				logger.Info("actions appended", "count", len(actions), "iteration", x.IterationCount)
			}

			result := planner.New().DryRun(x)

			if jsonOut {
				payload, err := json.MarshalIndent(struct {
					Success            bool              `json:"success"`
					Logs               []string          `json:"logs"`
					GeneratedCode      string            `json:"generated_code"`
					Dockerfile         string            `json:"dockerfile"`
					Warnings           []string          `json:"warnings"`
					EstimatedResources map[string]string `json:"estimated_resources"`
				}{
					Success:            result.Success,
					Logs:               result.Logs,
					GeneratedCode:      result.GeneratedCode,
					Dockerfile:         result.Dockerfile,
					Warnings:           result.Warnings,
					EstimatedResources: result.EstimatedResources,
				}, "", "  ")
				if err != nil {
					return fmt.Errorf("encode plan result: %w", err)
				}
				fmt.Println(string(payload))
			} else {
				for _, line := range result.Logs {
					fmt.Println(line)
				}
				for _, warning := range result.Warnings {
					logger.Warn(warning)
				}
				if showCode {
					fmt.Println("\n--- generated code ---")
					fmt.Println(result.GeneratedCode)
					if result.Dockerfile != "" {
						fmt.Println("--- Dockerfile ---")
						fmt.Println(result.Dockerfile)
					}
				}
			}

			if output != "" {
				data, err := x.Encode()
				if err != nil {
					return fmt.Errorf("encode IR: %w", err)
				}
				if err := os.WriteFile(output, data, 0o644); err != nil {
					return fmt.Errorf("write IR %q: %w", output, err)
				}
				logger.Info("planned IR written", "path", output, "id", x.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&actions, "action", nil, "Append an action line before planning (repeatable)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the planned IR JSON to a file")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the full plan result as JSON")
	cmd.Flags().BoolVar(&showCode, "show-code", false, "Print generated code and Dockerfile")

	return cmd
}
