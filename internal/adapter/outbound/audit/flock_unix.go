//go:build !windows

package audit

import "golang.org/x/sys/unix"

// flockLock acquires an exclusive, cross-process file lock so that two
// processes sharing the same audit directory (e.g. during a rolling
// deploy) never interleave partial JSON lines in the same file.
func flockLock(fd uintptr) error {
	return unix.Flock(int(fd), unix.LOCK_EX)
}

// flockUnlock releases the lock acquired by flockLock.
func flockUnlock(fd uintptr) error {
	return unix.Flock(int(fd), unix.LOCK_UN)
}
