package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cyl19970726/haigo-sub001/internal/control"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored cursor of every stream",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	cursors, closeFn, err := control.OpenCursors(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to open cursor store", "error", err)
		os.Exit(1)
	}
	defer closeFn()

	list, err := cursors.List(ctx)
	if err != nil {
		slog.Error("Failed to list cursors", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "STREAM\tVERSION\tINDEX\tUPDATED")
	for _, c := range list {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\n",
			c.Stream, c.Position.Version, c.Position.Index, c.UpdatedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}
