package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ghostchat/internal/legacy"
	"github.com/roach88/ghostchat/internal/matcher"
	"github.com/roach88/ghostchat/internal/store"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Database string
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <dir>",
		Short: "Import the JSON files of the first bot version",
		Long: `Import user.json, lobby.json, matches.json, referrals.json,
memberships.json and root.json from a directory into the database.

Everything is written in one transaction. Half pairs in matches.json and
records referring to unknown users are skipped and listed.

Example:
  ghostchat import --db ghostchat.db "./Json Files"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runImport(opts *ImportOptions, dir string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		_ = out.Error(CodeInput, "import directory not found", dir)
		return NewExitError(ExitCommandError, fmt.Sprintf("import directory not found: %s", dir))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = out.Error(CodeDatabase, "failed to open database", err.Error())
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := legacy.Import(ctx, st, dir, matcher.UUIDv7Generator{}, time.Now().UTC())
	if err != nil {
		_ = out.Error(CodeInput, "import failed", err.Error())
		return WrapExitError(ExitCommandError, "import failed", err)
	}
	return out.Success(res, importText(res))
}

func importText(r legacy.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Imported %d users, %d lobby entries, %d matches, %d referrers, %d memberships\n",
		r.Users, r.LobbyEntries, r.Matches, r.Referrals, r.Memberships)
	if len(r.Skipped) > 0 {
		fmt.Fprintf(&sb, "Skipped %d:\n", len(r.Skipped))
		for _, s := range r.Skipped {
			fmt.Fprintf(&sb, "  - %s\n", s)
		}
	}
	return sb.String()
}
