package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/seleria/xivpatch/internal"
)

func runUpdate(cmd *UpdateCmd) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	patchDir := cmd.PatchDir
	if patchDir == "" {
		patchDir = filepath.Join(cmd.Root, "patches")
	}

	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 16,
			MaxConnsPerHost:     16,
		},
	}

	coordinator := internal.NewUpdateCoordinator(client, patchDir)
	if cmd.SpeedLimit > 0 {
		burst := int(cmd.SpeedLimit)
		if burst < 64<<10 {
			burst = 64 << 10
		}
		coordinator.Downloader.Limiter = rate.NewLimiter(rate.Limit(cmd.SpeedLimit), burst)
	}
	coordinator.ProgressDelegate = printProgress

	plan, err := coordinator.CheckForUpdates(ctx, cmd.Root)
	if err != nil {
		fmt.Printf("Version check failed: %v\n", err)
		return 1
	}
	if plan.IsEmpty() {
		fmt.Println("The installation is up to date.")
		return 0
	}

	fmt.Printf("%d patch(es) required, %s total download.\n",
		len(plan.Patches), humanize.Bytes(uint64(plan.TotalDownloadSize())))
	if !cmd.Yes && !confirm("Apply the update now? [y/N] ") {
		fmt.Println("Update declined.")
		return 0
	}

	err = coordinator.ApplyUpdate(ctx, cmd.Root, plan)
	fmt.Println()

	switch {
	case err == nil:
		fmt.Println("Update completed!")
		return 0
	case errors.Is(err, context.Canceled):
		fmt.Println("Update cancelled.")
		return 130
	default:
		fmt.Printf("Update failed: %s\n", coordinator.ErrorMessage())
		return 1
	}
}

// printProgress rewrites one status line per report tick.
func printProgress(report internal.ProgressReport) {
	eta := "--"
	if report.ETA > 0 {
		eta = report.ETA.Round(time.Second).String()
	}
	fmt.Printf("\r[%s] %d/%d %s | %5.1f%% | %s/%s (%s/s) ETA %s    ",
		report.State,
		report.PatchIndex+1, report.PatchCount, report.CurrentPatch,
		report.Percent,
		humanize.Bytes(uint64(report.DownloadedBytes)),
		humanize.Bytes(uint64(report.TotalBytes)),
		humanize.Bytes(uint64(report.BytesPerSecond)),
		eta,
	)
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
