package supervisor

import (
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"
)

func syscallSignal0() syscall.Signal {
	return syscall.Signal(0)
}

// terminateOrphan sends SIGTERM then, after a 2s grace period, SIGKILL to a
// process left over from a previous run (spec §6.3). Best effort: failures
// are logged, never fatal to startup.
func terminateOrphan(pid int, log *zap.SugaredLogger, workerName string) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		log.Warnf("supervisor: SIGTERM orphan pid %d (%s): %v", pid, workerName, err)
		return
	}
	time.Sleep(2 * time.Second)
	if processAlive(pid) {
		if err := proc.Signal(syscall.SIGKILL); err != nil {
			log.Warnf("supervisor: SIGKILL orphan pid %d (%s): %v", pid, workerName, err)
		}
	}
}
