// Package attributes reads and restores filesystem metadata of entities.
package attributes

import (
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sndnv/stasis-sub000/internal/domain"
)

type Extractor struct {
	checksum    domain.Checksum
	compression domain.Compression
}

func NewExtractor(checksum domain.Checksum, compression domain.Compression) *Extractor {
	return &Extractor{checksum: checksum, compression: compression}
}

// Extract collects the current metadata of path. Checksums are only
// calculated for regular files.
func (e *Extractor) Extract(path string) (domain.EntityMetadata, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return domain.EntityMetadata{}, fmt.Errorf("failed to stat entity: %w", err)
	}

	st, err := statOf(path, info)
	if err != nil {
		return domain.EntityMetadata{}, fmt.Errorf("failed to read attributes: %w", err)
	}

	metadata := domain.EntityMetadata{
		Kind:        domain.KindFile,
		Path:        path,
		IsHidden:    strings.HasPrefix(filepath.Base(path), "."),
		Created:     st.created.Truncate(time.Second).UTC(),
		Updated:     info.ModTime().Truncate(time.Second).UTC(),
		Owner:       ownerName(st.uid),
		Group:       groupName(st.gid),
		Permissions: FormatPermissions(info.Mode()),
	}

	if info.Mode()&fs.ModeSymlink != 0 {
		link, err := os.Readlink(path)
		if err != nil {
			return domain.EntityMetadata{}, fmt.Errorf("failed to read link: %w", err)
		}
		metadata.Link = link
	}

	if info.IsDir() {
		metadata.Kind = domain.KindDirectory
		return metadata, nil
	}

	if info.Mode().IsRegular() {
		metadata.Size = info.Size()

		checksum, err := e.checksum.Calculate(path)
		if err != nil {
			return domain.EntityMetadata{}, err
		}
		metadata.Checksum = checksum
		metadata.Compression = e.compression.AlgorithmFor(path)
	}

	return metadata, nil
}

// Apply restores permissions, ownership and modification time of metadata
// onto path. Ownership is only changed when it differs from the current one.
func Apply(metadata domain.EntityMetadata, path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("failed to stat entity: %w", err)
	}

	symlink := info.Mode()&fs.ModeSymlink != 0

	if !symlink {
		mode, err := ParsePermissions(metadata.Permissions)
		if err != nil {
			return err
		}
		if err := os.Chmod(path, mode); err != nil {
			return fmt.Errorf("failed to set permissions: %w", err)
		}
	}

	st, err := statOf(path, info)
	if err != nil {
		return fmt.Errorf("failed to read attributes: %w", err)
	}

	if metadata.Owner != ownerName(st.uid) || metadata.Group != groupName(st.gid) {
		uid, err := lookupUID(metadata.Owner)
		if err != nil {
			return err
		}
		gid, err := lookupGID(metadata.Group)
		if err != nil {
			return err
		}
		if err := os.Lchown(path, uid, gid); err != nil {
			return fmt.Errorf("failed to set owner: %w", err)
		}
	}

	if !symlink {
		if err := os.Chtimes(path, metadata.Updated, metadata.Updated); err != nil {
			return fmt.Errorf("failed to set modification time: %w", err)
		}
	}

	return nil
}

// FormatPermissions renders permission bits as "rwxr-x---".
func FormatPermissions(mode fs.FileMode) string {
	return mode.Perm().String()[1:]
}

func ParsePermissions(permissions string) (fs.FileMode, error) {
	if len(permissions) != 9 {
		return 0, fmt.Errorf("invalid permissions [%s]", permissions)
	}

	var mode fs.FileMode
	for i, c := range permissions {
		expected := "rwx"[i%3]
		switch {
		case c == rune(expected):
			mode |= 1 << (8 - i)
		case c == '-':
		default:
			return 0, fmt.Errorf("invalid permissions [%s]", permissions)
		}
	}

	return mode, nil
}

func ownerName(uid uint32) string {
	id := strconv.FormatUint(uint64(uid), 10)
	if u, err := user.LookupId(id); err == nil {
		return u.Username
	}
	return id
}

func groupName(gid uint32) string {
	id := strconv.FormatUint(uint64(gid), 10)
	if g, err := user.LookupGroupId(id); err == nil {
		return g.Name
	}
	return id
}

func lookupUID(owner string) (int, error) {
	if u, err := user.Lookup(owner); err == nil {
		return strconv.Atoi(u.Uid)
	}
	uid, err := strconv.Atoi(owner)
	if err != nil {
		return 0, fmt.Errorf("unknown user [%s]", owner)
	}
	return uid, nil
}

func lookupGID(group string) (int, error) {
	if g, err := user.LookupGroup(group); err == nil {
		return strconv.Atoi(g.Gid)
	}
	gid, err := strconv.Atoi(group)
	if err != nil {
		return 0, fmt.Errorf("unknown group [%s]", group)
	}
	return gid, nil
}
