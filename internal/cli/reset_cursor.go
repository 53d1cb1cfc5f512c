package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cyl19970726/haigo-sub001/internal/control"
	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
)

var resetCursorCmd = &cobra.Command{
	Use:   "reset-cursor [stream] [version] [index]",
	Short: "Overwrite the cursor of a stream",
	Long: `Overwrite the cursor of a stream. The next poll fetches events strictly after
(version, index); index defaults to -1 so the whole version is replayed.`,
	Args: cobra.RangeArgs(2, 3),
	Run:  runResetCursor,
}

func init() {
	rootCmd.AddCommand(resetCursorCmd)
}

// parseResetArgs validates the stream name and target position.
func parseResetArgs(args []string) (string, domain.Position, error) {
	stream := args[0]
	if !slices.Contains(domain.Streams, stream) {
		return "", domain.Position{}, fmt.Errorf("unknown stream %q, expected one of %v", stream, domain.Streams)
	}

	version, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || version < -1 {
		return "", domain.Position{}, fmt.Errorf("invalid version %q", args[1])
	}

	index := int64(-1)
	if len(args) == 3 {
		index, err = strconv.ParseInt(args[2], 10, 64)
		if err != nil || index < -1 {
			return "", domain.Position{}, fmt.Errorf("invalid index %q", args[2])
		}
	}
	if version == -1 {
		index = -1
	}
	return stream, domain.Position{Version: version, Index: index}, nil
}

func runResetCursor(cmd *cobra.Command, args []string) {
	stream, pos, err := parseResetArgs(args)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	cfg := loadConfig()

	ctx := context.Background()
	cursors, closeFn, err := control.OpenCursors(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to open cursor store", "error", err)
		os.Exit(1)
	}
	defer closeFn()

	if err := cursors.Reset(ctx, stream, pos); err != nil {
		slog.Error("Failed to reset cursor", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully reset cursor for %s to %s\n", stream, pos)
}
