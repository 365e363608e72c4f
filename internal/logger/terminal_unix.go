//go:build linux || darwin

package logger

import "golang.org/x/sys/unix"

// ioctlReadTermios is TCGETS on Linux and TIOCGETA on Darwin.
func isTerminal(fd uintptr) bool {
	_, err := unix.IoctlGetTermios(int(fd), ioctlReadTermios)
	return err == nil
}
