package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"romekv/pkg/domain"
)

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete TYPE ID",
		Short: "Soft-delete a record",
		Long: `Remove a record from its type's key index. The record itself stays
readable by id but no longer appears in keys or find.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd, rootOpts, args[0], args[1])
		},
	}
}

func runDelete(cmd *cobra.Command, opts *RootOptions, typ, rawID string) error {
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
	if err := s.svc.SoftDelete(ctx, e); err != nil {
		return WrapExitError(ExitFailure, "delete failed", err)
	}
	key := e.Key().String()
	return opts.formatter(cmd).Success(map[string]any{"deleted": key}, func(w io.Writer) {
		fmt.Fprintf(w, "deleted %s\n", key)
	})
}
