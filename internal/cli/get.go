package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"romekv/internal/core"
	"romekv/pkg/domain"
)

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	var related []string
	cmd := &cobra.Command{
		Use:   "get TYPE ID",
		Short: "Load one record",
		Long: `Load one record by type and id.

TYPE is a table name or model name. --related resolves relationship
fields and prints the records they point at.

Examples:
  romekv get networks 1
  romekv get Network 1 --related fixed_ips --format json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, rootOpts, args[0], args[1], related)
		},
	}
	cmd.Flags().StringSliceVar(&related, "related", nil, "relationship fields to resolve")
	return cmd
}

func runGet(cmd *cobra.Command, opts *RootOptions, typ, rawID string, related []string) error {
	ctx := cmd.Context()
	id, err := parseID(rawID)
	if err != nil {
		return err
	}
	s, err := openSession(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer s.close()
	schema, err := s.resolve(typ)
	if err != nil {
		return err
	}
	e, err := s.svc.Get(ctx, s.scope, schema.Table, id)
	if errors.Is(err, domain.ErrNotFound) {
		return WrapExitError(ExitFailure, "record not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load record", err)
	}
	view, err := viewOf(e)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to render record", err)
	}
	relatedViews := make(map[string][]entityView, len(related))
	relatedEntities := make(map[string][]*core.Entity, len(related))
	for _, name := range related {
		entities, err := e.Related(ctx, name)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to resolve "+name, err)
		}
		views, err := viewsOf(entities)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to render "+name, err)
		}
		relatedViews[name] = views
		relatedEntities[name] = entities
	}
	data := map[string]any{"entity": view}
	if len(related) > 0 {
		data["related"] = relatedViews
	}
	return opts.formatter(cmd).Success(data, func(w io.Writer) {
		writeEntity(w, e)
		for _, name := range related {
			fmt.Fprintf(w, "%s: %d\n", name, len(relatedEntities[name]))
			for _, r := range relatedEntities[name] {
				writeEntity(w, r)
			}
		}
	})
}
