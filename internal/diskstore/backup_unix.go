//go:build linux || darwin

package diskstore

import "golang.org/x/sys/unix"

// backupXattr tags files that backup tooling should skip.
const backupXattr = "user.webimg.nobackup"

// excludeFromBackup marks path as excluded from backup, best effort. On
// filesystems without extended attributes the tag is silently dropped;
// caching is an optimization either way.
func excludeFromBackup(path string) {
	_ = unix.Setxattr(path, backupXattr, []byte{'1'}, 0)
}
