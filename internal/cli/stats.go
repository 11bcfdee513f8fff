package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"romekv/pkg/domain"
)

type typeStats struct {
	Type    string `json:"type"`
	Records int64  `json:"records"`
	Bytes   uint64 `json:"bytes"`
	Missing int64  `json:"missing,omitempty"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize indexed records per type",
		Long: `Count the indexed records of every model and the size of their
encoded form. Indexed ids without a stored record are reported as missing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, rootOpts)
		},
	}
}

func runStats(cmd *cobra.Command, opts *RootOptions) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer s.close()
	driver := s.svc.Driver()
	var stats []typeStats
	for _, schema := range s.reg.Schemas() {
		ids, err := driver.Keys(ctx, schema.Table)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list keys", err)
		}
		st := typeStats{Type: schema.Table}
		for _, id := range ids {
			rec, err := driver.Get(ctx, schema.Table, id)
			if errors.Is(err, domain.ErrNotFound) {
				st.Missing++
				continue
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read record", err)
			}
			b, err := domain.EncodeRecord(rec)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to encode record", err)
			}
			st.Records++
			st.Bytes += uint64(len(b))
		}
		stats = append(stats, st)
	}
	return opts.formatter(cmd).Success(stats, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TYPE\tRECORDS\tSIZE\tMISSING")
		for _, st := range stats {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st.Type, humanize.Comma(st.Records), humanize.Bytes(st.Bytes), humanize.Comma(st.Missing))
		}
		_ = tw.Flush()
	})
}
