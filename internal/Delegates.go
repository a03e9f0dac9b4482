package internal

// DelegateDownloadBytes is a callback function type to report the number of
// bytes transferred from the network per cycle. Negative values roll back
// progress after a failed attempt is restarted.
type DelegateDownloadBytes func(readBytes int64)

// DelegateDiskWriteBytes is a callback function type to report the number of
// bytes written to disk by chunk executors per cycle.
type DelegateDiskWriteBytes func(writeBytes int64)

// DelegatePatchComplete is a callback function type to report when one patch
// file has been fully downloaded or fully applied.
type DelegatePatchComplete func(descriptor *PatchDescriptor)

// DelegateStateChanged is a callback function type to report update state
// machine transitions.
type DelegateStateChanged func(state UpdateState)

// DelegateProgress is a callback function type to report overall update
// progress on a fixed wall-clock cadence.
type DelegateProgress func(report ProgressReport)
