//go:build !linux

package dhcpd

import "github.com/AdguardTeam/golibs/errors"

// ErrPrivDropUnsupported is returned by DropPrivileges on platforms
// other than Linux.
const ErrPrivDropUnsupported errors.Error = "dropping privileges is only supported on linux"

// DropPrivileges is only implemented on Linux. Asking for nothing
// (negative ids) succeeds anywhere.
func DropPrivileges(uid, gid int) error {
	if uid < 0 && gid < 0 {
		return nil
	}
	return ErrPrivDropUnsupported
}
