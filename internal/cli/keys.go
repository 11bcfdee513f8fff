package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewKeysCommand creates the keys command.
func NewKeysCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keys TYPE",
		Short: "List the indexed ids of a type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeys(cmd, rootOpts, args[0])
		},
	}
}

func runKeys(cmd *cobra.Command, opts *RootOptions, typ string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer s.close()
	schema, err := s.resolve(typ)
	if err != nil {
		return err
	}
	ids, err := s.svc.Driver().Keys(ctx, schema.Table)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list keys", err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return opts.formatter(cmd).Success(map[string]any{"type": schema.Table, "ids": ids}, func(w io.Writer) {
		for _, id := range ids {
			fmt.Fprintln(w, id)
		}
	})
}
