// Package cli implements the romekv command line: ad-hoc reads, queries
// and saves against any configured driver using a YAML model document.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"romekv/internal/core"
	"romekv/pkg/domain"
)

// DriverOpener opens the key-value driver a command works against.
type DriverOpener func(ctx context.Context) (domain.Driver, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Schema  string // model document; empty selects ROMEKV_SCHEMA or the embedded models

	openDriver DriverOpener
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command using the environment-selected
// driver.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithDriver(core.OpenDriver)
}

// NewRootCommandWithDriver creates the root command with a custom driver
// opener.
func NewRootCommandWithDriver(open DriverOpener) *cobra.Command {
	opts := &RootOptions{openDriver: open}

	cmd := &cobra.Command{
		Use:   "romekv",
		Short: "romekv - lazy object graphs over key-value stores",
		Long: `Inspect and edit records held by a romekv driver.

The driver is selected with ROMEKV_STORAGE_DRIVER (memory, sqlite,
postgres, leveldb or blob). Models come from --schema, ROMEKV_SCHEMA
or the embedded reference document.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return WrapExitError(ExitCommandError, "invalid flags",
					fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.Schema == "" {
				opts.Schema = os.Getenv("ROMEKV_SCHEMA")
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Schema, "schema", "", "path to a YAML model document")

	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewKeysCommand(opts))
	cmd.AddCommand(NewFindCommand(opts))
	cmd.AddCommand(NewSaveCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))

	return cmd
}

func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}
