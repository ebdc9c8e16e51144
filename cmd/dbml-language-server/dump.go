package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/saskenuba/dbml-language-server/internal/index"
	"github.com/saskenuba/dbml-language-server/internal/parser"

	"github.com/spf13/cobra"
)

type dumpField struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Line   uint32 `json:"line"`
	Column uint32 `json:"column"`
}

type dumpError struct {
	Line    uint32 `json:"line"`
	Column  uint32 `json:"column"`
	Missing string `json:"missing,omitempty"`
}

type dump struct {
	Tables        map[string][]dumpField `json:"tables"`
	Enums         []string               `json:"enums"`
	Relationships []index.Relationship   `json:"relationships"`
	SyntaxErrors  []dumpError            `json:"syntax_errors"`
}

func newDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <file>",
		Short: "Print the identifier index, relationships and syntax errors of a file as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			out, err := runDump(source)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func runDump(source []byte) (dump, error) {
	svc := parser.NewService()
	defer svc.Close()
	builder, err := index.NewBuilder(svc)
	if err != nil {
		return dump{}, err
	}
	defer builder.Close()

	tree := svc.Parse(source, nil)
	if tree == nil {
		return dump{}, fmt.Errorf("failed to parse")
	}
	root := tree.RootNode()
	idx := builder.Build(source, root)

	out := dump{
		Tables:        make(map[string][]dumpField, len(idx.Tables)),
		Enums:         idx.EnumNames(),
		Relationships: builder.Relationships(source, root),
		SyntaxErrors:  []dumpError{},
	}
	if out.Enums == nil {
		out.Enums = []string{}
	}
	if out.Relationships == nil {
		out.Relationships = []index.Relationship{}
	}
	for table, fields := range idx.Tables {
		dumped := make([]dumpField, 0, len(fields))
		for _, f := range fields {
			dumped = append(dumped, dumpField{
				Name:   f.Name,
				Type:   f.Type,
				Line:   f.Range.StartPoint.Row,
				Column: f.Range.StartPoint.Column,
			})
		}
		out.Tables[table] = dumped
	}
	for _, e := range parser.SyntaxErrors(root) {
		d := dumpError{Line: e.Range.StartPoint.Row, Column: e.Range.StartPoint.Column}
		if e.Missing {
			d.Missing = e.Kind
		}
		out.SyntaxErrors = append(out.SyntaxErrors, d)
	}
	return out, nil
}
