//go:build linux

package provider

import (
	"syscall"
	"time"
)

func statTimeCtim(sys *syscall.Stat_t) time.Time {
	return time.Unix(sys.Ctim.Sec, sys.Ctim.Nsec)
}
