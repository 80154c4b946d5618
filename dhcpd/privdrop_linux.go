package dhcpd

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DropPrivileges switches the process to gid and uid. Negative values
// leave the respective id alone. The group is changed first, since
// that is no longer allowed once the user id is unprivileged.
func DropPrivileges(uid, gid int) error {
	if gid >= 0 {
		if err := unix.Setgroups([]int{gid}); err != nil {
			return fmt.Errorf("setting supplementary groups: %w", err)
		}
		if err := unix.Setresgid(gid, gid, gid); err != nil {
			return fmt.Errorf("setting gid %d: %w", gid, err)
		}
	}
	if uid >= 0 {
		if err := unix.Setresuid(uid, uid, uid); err != nil {
			return fmt.Errorf("setting uid %d: %w", uid, err)
		}
	}
	return nil
}
