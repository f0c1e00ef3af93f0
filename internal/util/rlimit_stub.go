//go:build !unix

package util

// RaiseFileLimit is a no-op where rlimits do not apply.
func RaiseFileLimit() (uint64, error) {
	return 0, nil
}
