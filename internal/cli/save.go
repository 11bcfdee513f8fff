package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"romekv/pkg/domain"
)

// SaveOptions holds flags for the save command.
type SaveOptions struct {
	*RootOptions
	ID  int64
	Set []string
}

type recordOutcome struct {
	Key        string `json:"key"`
	Resolution string `json:"resolution"`
	State      string `json:"state"`
	Error      string `json:"error,omitempty"`
}

// NewSaveCommand creates the save command.
func NewSaveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SaveOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "save TYPE",
		Short: "Write a record",
		Long: `Write a record built from --set assignments.

Without --id a fresh id is booked. With --id the assignments are merged
over the stored record: fields not named keep their stored values.

Examples:
  romekv save networks --set label=public --set cidr=10.0.0.0/24
  romekv save fixed_ips --id 4 --set leased=true`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSave(cmd, opts, args[0])
		},
	}
	cmd.Flags().Int64Var(&opts.ID, "id", 0, "id of the record to write")
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "field assignment field=value")
	return cmd
}

func runSave(cmd *cobra.Command, opts *SaveOptions, typ string) error {
	ctx := cmd.Context()
	if opts.ID < 0 {
		return WrapExitError(ExitCommandError, "invalid id", fmt.Errorf("%d is negative", opts.ID))
	}
	s, err := openSession(ctx, cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.close()
	schema, err := s.resolve(typ)
	if err != nil {
		return err
	}
	e, err := s.svc.New(s.scope, schema.Table)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build record", err)
	}
	if opts.ID > 0 {
		if err := e.Set(domain.FieldID, opts.ID); err != nil {
			return WrapExitError(ExitCommandError, "invalid id", err)
		}
	}
	for _, raw := range opts.Set {
		field, value, err := parseAssignment(schema, raw)
		if err != nil {
			return err
		}
		if err := e.Set(field, value); err != nil {
			return WrapExitError(ExitCommandError, "invalid assignment", err)
		}
	}
	report, saveErr := s.svc.Save(ctx, s.scope, e)
	outcomes := make([]recordOutcome, 0, len(report.Records))
	for _, r := range report.Records {
		o := recordOutcome{Key: r.Key.String(), Resolution: string(r.Resolution), State: string(r.State)}
		if r.Err != nil {
			o.Error = r.Err.Error()
		}
		outcomes = append(outcomes, o)
	}
	if err := opts.formatter(cmd).Success(outcomes, func(w io.Writer) {
		for _, o := range outcomes {
			fmt.Fprintf(w, "%s %s %s\n", o.Key, o.Resolution, o.State)
		}
	}); err != nil {
		return err
	}
	if saveErr != nil {
		return WrapExitError(ExitFailure, "save failed", saveErr)
	}
	return nil
}
