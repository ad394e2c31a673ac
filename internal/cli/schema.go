package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/meshroom/internal/ir"
	"github.com/roach88/meshroom/internal/schema"
)

// NewSchemaCommand creates the schema command group.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect and validate data-model DSL files",
	}

	cmd.AddCommand(newSchemaLintCommand(rootOpts))
	cmd.AddCommand(newSchemaDumpCommand(rootOpts))

	return cmd
}

func newSchemaLintCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint <model-file>",
		Short: "Check a data-model DSL file for declaration errors",
		Long: `Lint applies a data-model DSL file to a fresh schema registry and
reports any declaration errors (duplicate entities, unknown index
fields, dangling references, and similar) without opening a store.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaLint(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runSchemaLint(opts *RootOptions, modelFile string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	src, err := os.ReadFile(modelFile)
	if err != nil {
		_ = formatter.Error(ErrCodeRead, fmt.Sprintf("cannot read %s", modelFile), err.Error())
		return NewExitError(ExitCommandError, fmt.Sprintf("read %s: %v", modelFile, err))
	}

	formatter.VerboseLog("Applying %s to an empty registry", modelFile)

	reg := schema.New()
	if err := reg.Apply(string(src)); err != nil {
		if schemaErr, ok := err.(*schema.Error); ok {
			_ = formatter.Error(ErrorCode(schemaErr.Code), schemaErr.Error(), map[string]string{
				"entity": schemaErr.Entity,
				"field":  schemaErr.Field,
			})
			return NewExitError(ExitFailure, fmt.Sprintf("%s: %s", schemaErr.Code, schemaErr.Error()))
		}
		_ = formatter.Error(ErrCodeParse, err.Error(), nil)
		return NewExitError(ExitFailure, err.Error())
	}

	entities := reg.Entities()
	if opts.Format == "json" {
		return formatter.Success(map[string]any{
			"valid":         true,
			"entity_count":  len(entities),
			"schema_version": reg.Version(),
		})
	}
	fmt.Fprintf(formatter.Writer, "valid: %d entit(y/ies) at schema version %d\n", len(entities), reg.Version())
	return nil
}

func newSchemaDumpCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump <model-file>",
		Short: "Print the entities a data-model DSL file declares",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaDump(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

// entityDump is the JSON/text-friendly projection of an ir.EntitySpec
// this command prints, since EntitySpec.Fields carries a ScalarType
// int that is only meaningful alongside its String() form.
type entityDump struct {
	Name    string      `json:"name"`
	Fields  []fieldDump `json:"fields"`
	Indices [][]string  `json:"indices,omitempty"`
}

type fieldDump struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	Deprecated bool   `json:"deprecated,omitempty"`
}

func runSchemaDump(opts *RootOptions, modelFile string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	src, err := os.ReadFile(modelFile)
	if err != nil {
		_ = formatter.Error(ErrCodeRead, fmt.Sprintf("cannot read %s", modelFile), err.Error())
		return NewExitError(ExitCommandError, fmt.Sprintf("read %s: %v", modelFile, err))
	}

	reg := schema.New()
	if err := reg.Apply(string(src)); err != nil {
		_ = formatter.Error(ErrCodeParse, err.Error(), nil)
		return NewExitError(ExitFailure, err.Error())
	}

	dumps := make([]entityDump, 0, len(reg.Entities()))
	for _, ent := range reg.Entities() {
		dumps = append(dumps, dumpEntity(ent))
	}
	sort.Slice(dumps, func(i, j int) bool { return dumps[i].Name < dumps[j].Name })

	if opts.Format == "json" {
		return formatter.Success(dumps)
	}

	for _, e := range dumps {
		fmt.Fprintf(formatter.Writer, "%s\n", e.Name)
		for _, f := range e.Fields {
			nullable := ""
			if f.Nullable {
				nullable = " nullable"
			}
			fmt.Fprintf(formatter.Writer, "  %s : %s%s\n", f.Name, f.Type, nullable)
		}
		for _, idx := range e.Indices {
			fmt.Fprintf(formatter.Writer, "  index(%s)\n", fmt.Sprint(idx))
		}
	}
	return nil
}

func dumpEntity(ent *ir.EntitySpec) entityDump {
	d := entityDump{Name: ent.Name}
	for _, f := range ent.Fields {
		d.Fields = append(d.Fields, fieldDump{
			Name:       f.Name,
			Type:       fieldTypeString(f),
			Nullable:   f.Nullable,
			Deprecated: f.Deprecated,
		})
	}
	for _, idx := range ent.Indices {
		d.Indices = append(d.Indices, idx.Fields)
	}
	return d
}

func fieldTypeString(f ir.FieldSpec) string {
	switch f.Kind {
	case ir.KindRef:
		return "ref(" + f.RefEntity + ")"
	case ir.KindRefArray:
		return "ref[](" + f.RefEntity + ")"
	default:
		return f.Scalar.String()
	}
}
