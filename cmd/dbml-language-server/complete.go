package main

import (
	"cmp"
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/saskenuba/dbml-language-server/internal/completion"
	"github.com/saskenuba/dbml-language-server/internal/index"
	"github.com/saskenuba/dbml-language-server/internal/parser"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/spf13/cobra"
)

func newCompleteCmd() *cobra.Command {
	var trigger string
	cmd := &cobra.Command{
		Use:   "complete <file> <row> <column>",
		Short: "Print the completion candidates at a zero-based point of a file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid row %q: %w", args[1], err)
			}
			column, err := strconv.ParseUint(args[2], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid column %q: %w", args[2], err)
			}
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			candidates, err := runComplete(source, sitter.Point{Row: uint32(row), Column: uint32(column)}, trigger)
			if err != nil {
				return err
			}
			for _, c := range candidates {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", c.Label, c.Detail)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&trigger, "trigger", "", "trigger character of the request")
	return cmd
}

// runComplete returns the candidates at point sorted by label.
func runComplete(source []byte, point sitter.Point, trigger string) ([]completion.Candidate, error) {
	svc := parser.NewService()
	defer svc.Close()
	builder, err := index.NewBuilder(svc)
	if err != nil {
		return nil, err
	}
	defer builder.Close()

	tree := svc.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("failed to parse")
	}
	root := tree.RootNode()
	candidates := completion.Complete(source, root, builder.Build(source, root), point, trigger)
	slices.SortFunc(candidates, func(a, b completion.Candidate) int {
		return cmp.Compare(a.Label, b.Label)
	})
	return candidates, nil
}
