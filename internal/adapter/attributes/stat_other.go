//go:build unix && !linux

package attributes

import (
	"fmt"
	"io/fs"
	"syscall"
	"time"
)

type stat struct {
	created time.Time
	uid     uint32
	gid     uint32
}

func statOf(_ string, info fs.FileInfo) (stat, error) {
	sys, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return stat{}, fmt.Errorf("unsupported file info [%T]", info.Sys())
	}
	return stat{created: info.ModTime(), uid: sys.Uid, gid: sys.Gid}, nil
}
