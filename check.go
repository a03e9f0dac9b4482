package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/seleria/xivpatch/internal"
)

func runCheck(cmd *CheckCmd) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coordinator := internal.NewUpdateCoordinator(nil, filepath.Join(cmd.Root, "patches"))

	plan, err := coordinator.CheckForUpdates(ctx, cmd.Root)
	if err != nil {
		fmt.Printf("Version check failed: %v\n", err)
		return 1
	}
	if plan.IsEmpty() {
		fmt.Println("The installation is up to date.")
		return 0
	}

	fmt.Printf("%d patch(es) required, %s total:\n", len(plan.Patches), humanize.Bytes(uint64(plan.TotalDownloadSize())))
	for _, descriptor := range plan.Patches {
		fmt.Printf("  %-6s %s  %10s  %s\n",
			descriptor.Repository, descriptor.Version, descriptor.HumanSize(), descriptor.FileName())
	}
	return 0
}
