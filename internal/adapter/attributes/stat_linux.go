package attributes

import (
	"io/fs"
	"time"

	"golang.org/x/sys/unix"
)

type stat struct {
	created time.Time
	uid     uint32
	gid     uint32
}

func statOf(path string, info fs.FileInfo) (stat, error) {
	var stx unix.Statx_t
	mask := unix.STATX_BTIME | unix.STATX_UID | unix.STATX_GID
	if err := unix.Statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW, mask, &stx); err != nil {
		return stat{}, err
	}

	created := info.ModTime()
	if stx.Mask&unix.STATX_BTIME != 0 {
		created = time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec))
	}

	return stat{created: created, uid: stx.Uid, gid: stx.Gid}, nil
}
