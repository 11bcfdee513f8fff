package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"romekv/internal/core"
)

// FindOptions holds flags for the find command.
type FindOptions struct {
	*RootOptions
	Where []string
	Match string
	Count bool
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FindOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "find TYPE",
		Short: "Query records of a type",
		Long: `Query the indexed records of a type.

--where takes field=value and may repeat; all conditions must hold.
--match takes a boolean expression over the record fields.

Examples:
  romekv find fixed_ips --where network_id=1
  romekv find fixed_ips --match 'allocated && !leased' --count`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFind(cmd, opts, args[0])
		},
	}
	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "equality condition field=value")
	cmd.Flags().StringVar(&opts.Match, "match", "", "boolean expression over record fields")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "print only the number of matches")
	return cmd
}

func runFind(cmd *cobra.Command, opts *FindOptions, typ string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.close()
	schema, err := s.resolve(typ)
	if err != nil {
		return err
	}
	q := s.svc.Query(s.scope, schema.Table)
	for _, raw := range opts.Where {
		field, value, err := parseAssignment(schema, raw)
		if err != nil {
			return err
		}
		q = q.Where(field, value)
	}
	if opts.Match != "" {
		if _, err := core.CompileMatch(opts.Match); err != nil {
			return WrapExitError(ExitCommandError, "invalid match expression", err)
		}
		q = q.Match(opts.Match)
	}
	out := opts.formatter(cmd)
	if opts.Count {
		n, err := q.Count(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "query failed", err)
		}
		return out.Success(map[string]any{"count": n}, func(w io.Writer) { fmt.Fprintln(w, n) })
	}
	entities, err := q.All(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "query failed", err)
	}
	views, err := viewsOf(entities)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to render results", err)
	}
	return out.Success(views, func(w io.Writer) {
		for _, e := range entities {
			writeEntity(w, e)
		}
	})
}
