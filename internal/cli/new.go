package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const dslTemplate = `INTENT:
  name: %s
  goal: Describe what this service should do

ENVIRONMENT:
  runtime: docker
  base_image: python:3.12-slim
  ports:
    - 8000

IMPLEMENTATION:
  language: python
  framework: fastapi
  actions:
    - api.expose GET /ping

EXECUTION:
  mode: dry-run
`

// newNewCommand creates "new" that emits a starter DSL document.
func newNewCommand(_ *Options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Generate a starter intent DSL document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := LoggerFromContext(cmd.Context())
			doc := fmt.Sprintf(dslTemplate, args[0])

			if output == "" {
				fmt.Print(doc)
				return nil
			}
			if err := os.WriteFile(output, []byte(doc), 0o644); err != nil {
				return fmt.Errorf("write DSL template %q: %w", output, err)
			}
			logger.Info("DSL template written", "path", output, "intent", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the template to a file instead of stdout")

	return cmd
}
