//go:build !windows

package filesystem

import "golang.org/x/sys/unix"

// availableBytes returns the space an unprivileged writer can still use on
// the filesystem holding dir
func availableBytes(dir string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}
