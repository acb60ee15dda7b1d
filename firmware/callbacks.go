package firmware

import "time"

// Update phases.
const (
	PhaseRebooting  = "rebooting"
	PhaseWaiting    = "waiting for bootloader"
	PhaseFlashing   = "flashing"
	PhaseVerifying  = "verifying"
	PhaseProgrammed = "programmed"
	PhaseComplete   = "complete"
)

// Progress contains information about the update progress.
// Passed to ProgressCallback during updates.
type Progress struct {
	// Phase describes the current operation phase:
	//   "rebooting"              - Rebooting the device
	//   "waiting for bootloader" - Waiting for the DFU bootloader
	//   "flashing"               - Programming (STM32 image or FPGA bitstream)
	//   "verifying"              - Reading back the STM32 image
	//   "programmed"             - FPGA bitstream fully written
	//   "complete"               - Update completed successfully
	Phase string

	// Finished is set on the last report of a phase
	Finished bool

	// Percentage is the completion of the phase (0.0 to 100.0)
	Percentage float64

	// BytesWritten is the number of FPGA bytes written so far
	BytesWritten int

	// TotalBytes is the size of the image being written
	TotalBytes int

	// ElapsedTime is the time elapsed since the update started
	ElapsedTime time.Duration
}

// ProgressCallback is called during updates to report progress. Without a
// Poster it runs on the updating goroutine and should return quickly; with
// one it runs wherever the Poster delivers, in report order.
//
// Example:
//
//	u := firmware.New(locator,
//	    firmware.WithProgressCallback(func(p firmware.Progress) {
//	        fmt.Printf("[%s] %.1f%%\n", p.Phase, p.Percentage)
//	    }),
//	)
type ProgressCallback func(Progress)

// Poster queues a callback for delivery on the consumer's goroutine.
// watcher.Dispatcher implements it.
type Poster interface {
	Post(f func()) bool
}

// Suspender is a background task that must not touch the device during an
// update. The watchers implement it.
type Suspender interface {
	Pause()
	Resume()
}
