//go:build windows

package speedtest

import "os"

var termSignal = os.Kill
