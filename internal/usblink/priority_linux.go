//go:build linux

package usblink

import "golang.org/x/sys/unix"

// SetRealtimePriority assigns the calling process SCHED_FIFO scheduling at
// the given priority level (§4.7, §5: supervisor sets FIFO priority 4
// before spawning any worker).
func SetRealtimePriority(level int) error {
	return unix.SchedSetscheduler(0, unix.SCHED_FIFO, &unix.SchedParam{Priority: int32(level)})
}
