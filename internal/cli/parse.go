package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/intent-iterative/intentctl/internal/parser"
)

// newParseCommand creates "parse" that validates a DSL document and prints
// the resulting IR as JSON. A file argument of "-" reads from stdin.
func newParseCommand(_ *Options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse and validate a DSL document into its IR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := LoggerFromContext(cmd.Context())

			result, err := parseDocument(args[0])
			if err != nil {
				return err
			}
			for _, warning := range result.Warnings {
				logger.Warn(warning)
			}

			data, err := result.IR.Encode()
			if err != nil {
				return fmt.Errorf("encode IR: %w", err)
			}

			if output == "" {
				fmt.Println(string(data))
				return nil
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write IR %q: %w", output, err)
			}
			logger.Info("IR written", "path", output, "id", result.IR.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the IR JSON to a file instead of stdout")

	return cmd
}

// parseDocument reads a DSL document from a path or stdin ("-") and parses it.
func parseDocument(path string) (*parser.Result, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return parser.Parse(data)
	}
	return parser.ParseFile(path)
}
