package internal

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// UpdateState is the coordinator's state machine position.
type UpdateState int

const (
	StateIdle UpdateState = iota
	StateCheckingVersion
	StateDownloading
	StateInstalling
	StateCompleted
	StateCancelled
	StateFailed
)

func (s UpdateState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateCheckingVersion:
		return "CheckingVersion"
	case StateDownloading:
		return "Downloading"
	case StateInstalling:
		return "Installing"
	case StateCompleted:
		return "Completed"
	case StateCancelled:
		return "Cancelled"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("UpdateState(%d)", int(s))
	}
}

// isActive reports whether the state belongs to a run in progress.
func (s UpdateState) isActive() bool {
	return s == StateCheckingVersion || s == StateDownloading || s == StateInstalling
}

// ProgressReport is one progress sample, emitted on a fixed wall-clock
// cadence rather than per chunk of bytes.
type ProgressReport struct {
	RunID           string
	State           UpdateState
	PatchIndex      int
	PatchCount      int
	CurrentPatch    string
	DownloadedBytes int64
	InstalledBytes  int64
	TotalBytes      int64
	BytesPerSecond  float64
	Percent         float64

	// ETA estimates the remaining download time from the current
	// throughput. Zero when the throughput is still unknown or nothing
	// remains.
	ETA time.Duration
}

// DefaultProgressInterval is the progress reporting cadence.
const DefaultProgressInterval = 500 * time.Millisecond

// UpdateCoordinator drives the check, download and install phases of one
// update run. Only one run may be active at a time per coordinator; the
// state machine refuses to re-enter an active state.
type UpdateCoordinator struct {
	VersionClient    *VersionCheckClient
	Downloader       *PatchDownloader
	ProgressInterval time.Duration

	StateChangedDelegate  DelegateStateChanged
	ProgressDelegate      DelegateProgress
	PatchCompleteDelegate DelegatePatchComplete

	mu           sync.Mutex
	state        UpdateState
	errorMessage string

	runID        uuid.UUID
	downloaded   atomic.Int64
	installed    atomic.Int64
	totalBytes   int64
	patchIndex   atomic.Int32
	patchCount   int
	currentPatch atomic.Value
}

// NewUpdateCoordinator wires a coordinator around one HTTP client and a
// local patch store directory.
func NewUpdateCoordinator(client *http.Client, patchDir string) *UpdateCoordinator {
	c := &UpdateCoordinator{
		VersionClient:    NewVersionCheckClient(client),
		Downloader:       NewPatchDownloader(client, patchDir),
		ProgressInterval: DefaultProgressInterval,
	}
	c.Downloader.DownloadDelegate = func(n int64) {
		c.downloaded.Add(n)
	}
	return c
}

// State returns the current state machine position.
func (c *UpdateCoordinator) State() UpdateState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ErrorMessage returns the human-readable message of the failure that
// stopped the last run, or the empty string.
func (c *UpdateCoordinator) ErrorMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errorMessage
}

// CheckForUpdates reads the local version vector, negotiates with the
// patch server and computes the update plan. A nil plan with a nil error
// means no update is required.
func (c *UpdateCoordinator) CheckForUpdates(ctx context.Context, root string) (*UpdatePlan, error) {
	if err := c.enterState(StateCheckingVersion); err != nil {
		return nil, err
	}

	localVersions, err := ReadVersionVector(root)
	if err != nil {
		c.fail(err)
		return nil, err
	}

	descriptors, err := c.VersionClient.CheckVersion(ctx, localVersions)
	if err != nil {
		c.fail(err)
		return nil, err
	}

	plan := BuildUpdatePlan(descriptors, localVersions)
	c.setState(StateIdle)
	if plan.IsEmpty() {
		PushLogInfo(c, "No update required, installation is up to date")
		return nil, nil
	}

	PushLogInfo(c, fmt.Sprintf("Update required: %d patch(es)", len(plan.Patches)))
	return plan, nil
}

// ApplyUpdate downloads and installs every patch in the plan, in plan
// order. Cancellation via ctx is cooperative and yields the distinct
// Cancelled outcome; any other failure stops the state machine in Failed
// with ErrorMessage set.
func (c *UpdateCoordinator) ApplyUpdate(ctx context.Context, root string, plan *UpdatePlan) error {
	if plan.IsEmpty() {
		return fmt.Errorf("empty update plan")
	}
	if err := c.enterState(StateDownloading); err != nil {
		return err
	}

	c.runID = uuid.New()
	c.downloaded.Store(0)
	c.installed.Store(0)
	c.totalBytes = plan.TotalDownloadSize()
	c.patchIndex.Store(0)
	c.patchCount = len(plan.Patches)
	c.currentPatch.Store("")

	stopProgress := make(chan struct{})
	go c.reportProgress(stopProgress)
	defer close(stopProgress)

	localPaths := make([]string, len(plan.Patches))
	for i, descriptor := range plan.Patches {
		if ctx.Err() != nil {
			return c.cancel(ctx)
		}
		c.patchIndex.Store(int32(i))
		c.currentPatch.Store(descriptor.FileName())

		path, err := c.Downloader.Download(ctx, descriptor)
		if err != nil {
			if ctx.Err() != nil {
				return c.cancel(ctx)
			}
			c.fail(err)
			return err
		}
		localPaths[i] = path
	}

	c.setState(StateInstalling)

	installer := NewPatchInstaller(root)
	defer installer.Close()
	installer.Session().DiskWriteDelegate = func(n int64) {
		c.installed.Add(n)
	}

	for i, descriptor := range plan.Patches {
		if ctx.Err() != nil {
			return c.cancel(ctx)
		}
		c.patchIndex.Store(int32(i))
		c.currentPatch.Store(descriptor.FileName())

		if err := installer.InstallPatch(ctx, localPaths[i], descriptor); err != nil {
			if ctx.Err() != nil {
				return c.cancel(ctx)
			}
			c.fail(err)
			return err
		}
		if c.PatchCompleteDelegate != nil {
			c.PatchCompleteDelegate(descriptor)
		}
	}

	c.setState(StateCompleted)
	if c.ProgressDelegate != nil {
		c.ProgressDelegate(c.buildReport(0))
	}
	return nil
}

// reportProgress recomputes throughput on a fixed cadence so callers get a
// stable speed figure instead of per-buffer noise.
func (c *UpdateCoordinator) reportProgress(stop <-chan struct{}) {
	if c.ProgressDelegate == nil {
		return
	}

	interval := c.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastBytes int64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			current := c.downloaded.Load()
			speed := float64(current-lastBytes) / interval.Seconds()
			lastBytes = current

			c.ProgressDelegate(c.buildReport(speed))
		}
	}
}

// buildReport samples the run counters into one progress report.
func (c *UpdateCoordinator) buildReport(speed float64) ProgressReport {
	current := c.downloaded.Load()

	percent := float64(0)
	if c.totalBytes > 0 {
		percent = float64(current) / float64(c.totalBytes) * 100
	}

	var eta time.Duration
	if remaining := c.totalBytes - current; remaining > 0 && speed > 0 {
		eta = time.Duration(float64(remaining) / speed * float64(time.Second))
	}

	currentPatch, _ := c.currentPatch.Load().(string)
	return ProgressReport{
		RunID:           c.runID.String(),
		State:           c.State(),
		PatchIndex:      int(c.patchIndex.Load()),
		PatchCount:      c.patchCount,
		CurrentPatch:    currentPatch,
		DownloadedBytes: current,
		InstalledBytes:  c.installed.Load(),
		TotalBytes:      c.totalBytes,
		BytesPerSecond:  speed,
		Percent:         percent,
		ETA:             eta,
	}
}

// enterState begins a new phase, refusing to start while a run is active.
func (c *UpdateCoordinator) enterState(state UpdateState) error {
	c.mu.Lock()
	if c.state.isActive() {
		current := c.state
		c.mu.Unlock()
		return fmt.Errorf("update run already active in state %s", current)
	}
	c.state = state
	c.errorMessage = ""
	c.mu.Unlock()

	c.notifyState(state)
	return nil
}

func (c *UpdateCoordinator) setState(state UpdateState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	c.notifyState(state)
}

func (c *UpdateCoordinator) fail(err error) {
	c.mu.Lock()
	c.state = StateFailed
	c.errorMessage = err.Error()
	c.mu.Unlock()

	PushLogError(c, err.Error())
	c.notifyState(StateFailed)
}

func (c *UpdateCoordinator) cancel(ctx context.Context) error {
	c.setState(StateCancelled)
	PushLogInfo(c, "Update run cancelled")
	return ctx.Err()
}

func (c *UpdateCoordinator) notifyState(state UpdateState) {
	if c.StateChangedDelegate != nil {
		c.StateChangedDelegate(state)
	}
}
