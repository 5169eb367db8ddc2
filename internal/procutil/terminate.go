// Package procutil provides process-group termination shared by every
// provider that owns a real child process: signal the group with SIGTERM,
// give it a bounded window to exit on its own, then escalate to SIGKILL.
package procutil

import (
	"context"

	"golang.org/x/sys/unix"
)

// TerminateGroup signals pid's process group with SIGTERM, then waits for
// either exited to close or ctx to expire, escalating to SIGKILL on the
// group if the child is still alive once the window closes. If ctx is
// already expired on entry (a force stop, which collapses the grace
// window to zero), the TERM courtesy is skipped and the group is SIGKILLed
// directly. pid must be a process-group leader (pgid == pid), as every
// child this supervisor starts is.
//
// This generalizes the teacher's own child-process cleanup
// (internal/tool/bash.go's killProcess: SIGTERM the process group, sleep a
// fixed duration, SIGKILL if still running) by replacing the fixed sleep
// with a caller-supplied context deadline, so a session's stop grace
// window actually bounds how long the child is given to exit on its own.
// Never returns an error: a process that's already gone is not a failure.
func TerminateGroup(ctx context.Context, pid int, exited <-chan struct{}) {
	if pid <= 0 {
		return
	}

	if ctx.Err() == nil {
		if err := unix.Kill(-pid, unix.SIGTERM); err != nil {
			return
		}

		select {
		case <-exited:
			return
		case <-ctx.Done():
		}
	}

	_ = unix.Kill(-pid, unix.SIGKILL)
}
