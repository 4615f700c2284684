// Package rlimit raises the process file descriptor limit so a wide
// merge can hold all of its runs open at once.
package rlimit

// RaiseOpenFilesLimit raises the open file soft limit to the hard
// limit and returns the resulting value.
func RaiseOpenFilesLimit() (int, error) {
	return raiseOpenFilesLimit()
}
