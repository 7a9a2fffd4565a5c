//go:build darwin

package provider

import (
	"syscall"
	"time"
)

func statTimeCtim(sys *syscall.Stat_t) time.Time {
	return time.Unix(sys.Ctimespec.Sec, sys.Ctimespec.Nsec)
}
