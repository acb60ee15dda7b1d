// Package watcher runs the background polling loops of a device session.
//
// The hardware has no push notification for attach or detach, so presence
// is polled:
//
//   - ConnectionWatcher finds the device in operating mode and then checks it
//     until it goes away.
//   - BootloaderWatcher does the same for the DFU bootloader identity.
//   - LogWatcher drains the device-resident log of the bound client and
//     delivers complete lines.
//   - SerialLogWatcher reads log lines from a CDC serial port.
//
// Each watcher owns one goroutine between Start and Stop. Stop waits for the
// goroutine to exit, so a handle released by a watcher can be reopened as
// soon as Stop returns. Pause and Resume suspend polling while a firmware
// update owns the device; Pause returns once any poll in flight has
// finished.
//
// Callbacks are delivered through a Dispatcher, which runs them one at a time
// on its own goroutine in the order they were produced. Nothing is delivered
// for an event observed after Stop was requested.
//
// Example:
//
//	d := watcher.NewDispatcher(log)
//	defer d.Close()
//
//	logs := watcher.NewLogWatcher(func(line string) {
//	    watcher.LogLine(log, line, "  ")
//	}, watcher.WithDispatcher(d))
//
//	conn := watcher.NewConnectionWatcher(finder, func(c *device.Client) {
//	    logs.Bind(c)
//	}, watcher.WithDispatcher(d))
//
//	_ = conn.Start(ctx)
//	_ = logs.Start(ctx)
package watcher
