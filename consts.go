package pushbuf

import "time"

const (
	// DefaultReserveMargin is the number of words every Reserve keeps free
	// so a fence release can always be appended before a kick.
	DefaultReserveMargin = 8

	// DefaultLockTimeout bounds how long Acquire waits for the submission
	// lock before treating contention as a bug.
	DefaultLockTimeout = 10 * time.Second

	// DefaultWorkThreshold is the number of pending deferred work items a
	// fence may hold before it is kicked.
	DefaultWorkThreshold = 64

	// DefaultSpinBudget is the number of polls Wait performs before giving
	// up on a fence.
	DefaultSpinBudget uint64 = 1 << 31

	// DefaultYieldInterval is how many polls Wait performs between yields.
	DefaultYieldInterval = 8

	// DefaultInitialSequence is the first sequence number handed out.
	DefaultInitialSequence uint32 = 1
)

// FenceState is the lifecycle state of a Fence.
type FenceState uint8

const (
	// FenceAvailable fences collect work and have not been written to the
	// push buffer.
	FenceAvailable FenceState = iota
	// FenceEmitting fences are being written to the push buffer.
	FenceEmitting
	// FenceEmitted fences have a sequence and are queued on the sequencer.
	FenceEmitted
	// FenceFlushed fences have been handed to the kernel.
	FenceFlushed
	// FenceSignalled fences have been acknowledged by the GPU.
	FenceSignalled
)

// String implements fmt.Stringer.
func (s FenceState) String() string {
	switch s {
	case FenceAvailable:
		return "available"
	case FenceEmitting:
		return "emitting"
	case FenceEmitted:
		return "emitted"
	case FenceFlushed:
		return "flushed"
	case FenceSignalled:
		return "signalled"
	}
	return "unknown"
}
