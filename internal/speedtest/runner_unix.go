//go:build !windows

package speedtest

import "syscall"

var termSignal = syscall.SIGTERM
