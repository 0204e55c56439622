package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/intent-iterative/intentctl/internal/ir"
)

// newShowCommand creates "show" that renders a saved IR JSON file as a
// human-readable summary.
func newShowCommand(_ *Options) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <ir.json>",
		Short: "Show a summary of a saved intent IR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read IR file %q: %w", args[0], err)
			}
			x, err := ir.Decode(data)
			if err != nil {
				return err
			}

			if jsonOut {
				out, err := x.Encode()
				if err != nil {
					return fmt.Errorf("encode IR: %w", err)
				}
				fmt.Println(string(out))
				return nil
			}

			fmt.Printf("id:          %s\n", x.ID)
			fmt.Printf("intent:      %s\n", x.Intent.Name)
			fmt.Printf("goal:        %s\n", x.Intent.Goal)
			fmt.Printf("runtime:     %s\n", x.Environment.Runtime)
			fmt.Printf("language:    %s", x.Implementation.Language)
			if x.Implementation.Framework != "" {
				fmt.Printf(" (%s)", x.Implementation.Framework)
			}
			fmt.Println()
			fmt.Printf("mode:        %s\n", x.ExecutionMode)
			fmt.Printf("approved:    %t\n", x.AmenApproved)
			fmt.Printf("iterations:  %d\n", x.IterationCount)
			fmt.Printf("updated at:  %s\n", x.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
			fmt.Printf("actions (%d):\n", len(x.Implementation.Actions))
			for _, action := range x.Implementation.Actions {
				fmt.Printf("  - %s\n", action.String())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the raw IR JSON")

	return cmd
}
