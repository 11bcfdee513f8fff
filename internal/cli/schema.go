package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"romekv/pkg/domain"
)

type fieldView struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Ref     string `json:"ref,omitempty"`
	Default any    `json:"default,omitempty"`
}

type relationshipView struct {
	Name        string `json:"name"`
	LocalKey    string `json:"local_key"`
	RemoteType  string `json:"remote_type"`
	RemoteKey   string `json:"remote_key"`
	Cardinality string `json:"cardinality"`
	Direction   string `json:"direction"`
}

type schemaView struct {
	Name          string             `json:"name"`
	Table         string             `json:"table"`
	Fields        []fieldView        `json:"fields"`
	Relationships []relationshipView `json:"relationships,omitempty"`
}

func viewOfSchema(s *domain.Schema) schemaView {
	v := schemaView{Name: s.Name, Table: s.Table}
	for _, f := range s.Fields {
		v.Fields = append(v.Fields, fieldView{Name: f.Name, Kind: string(f.Kind), Ref: f.RefType, Default: f.Default})
	}
	for _, r := range s.Relationships {
		v.Relationships = append(v.Relationships, relationshipView{
			Name:        r.Name,
			LocalKey:    r.LocalKey,
			RemoteType:  r.RemoteType,
			RemoteKey:   r.RemoteKey,
			Cardinality: string(r.Cardinality),
			Direction:   string(r.EffectiveDirection()),
		})
	}
	return v
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema [TYPE]",
		Short: "Describe the loaded models",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(cmd, rootOpts, args)
		},
	}
}

func runSchema(cmd *cobra.Command, opts *RootOptions, args []string) error {
	reg, err := loadRegistry(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load models", err)
	}
	schemas := reg.Schemas()
	if len(args) == 1 {
		s, err := reg.Resolve(args[0])
		if err != nil {
			return WrapExitError(ExitCommandError, "unknown type", err)
		}
		schemas = []*domain.Schema{s}
	}
	views := make([]schemaView, 0, len(schemas))
	for _, s := range schemas {
		views = append(views, viewOfSchema(s))
	}
	data := map[string]any{"version": reg.Version(), "models": views}
	return opts.formatter(cmd).Success(data, func(w io.Writer) {
		for _, v := range views {
			fmt.Fprintf(w, "%s (%s)\n", v.Name, v.Table)
			for _, f := range v.Fields {
				line := "  " + f.Name + " " + f.Kind
				if f.Ref != "" {
					line += " -> " + f.Ref
				}
				if f.Default != nil {
					line += fmt.Sprintf(" default %v", f.Default)
				}
				fmt.Fprintln(w, line)
			}
			for _, r := range v.Relationships {
				fmt.Fprintf(w, "  %s: %s -> %s.%s (%s)\n", r.Name, r.LocalKey, r.RemoteType, r.RemoteKey, r.Cardinality)
			}
		}
	})
}
