//go:build unix

package util

import "golang.org/x/sys/unix"

// RaiseFileLimit lifts the soft open-file limit to the hard limit and
// returns the resulting soft limit. Hundreds of concurrent probes
// exhaust the usual default of 1024 descriptors otherwise.
func RaiseFileLimit() (uint64, error) {
	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		return 0, err
	}
	if lim.Cur >= lim.Max {
		return lim.Cur, nil
	}
	lim.Cur = lim.Max
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		return 0, err
	}
	return lim.Cur, nil
}
