// Copyright (C) 2024 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fileguard

// isTrusted is the symlink safety predicate (spec's "trust model"): a link
// is trustworthy iff its owner is root or the process's own effective
// user/group. It is computed purely from the link's own stat, never the
// target's, and never touches the filesystem itself -- callers are expected
// to have already lstat'd the link.
//
// A link owned by anyone else -- even if group-writable by us, even if its
// target is innocuous -- is untrusted, because an unprivileged attacker who
// can create symlinks in a world-writable or group-writable directory we
// descend into could otherwise redirect us anywhere on the filesystem.
func isTrusted(ownerUID, ownerGID, euid, egid uint32) bool {
	uidOK := ownerUID == 0 || ownerUID == euid
	gidOK := ownerGID == 0 || ownerGID == egid
	return uidOK && gidOK
}
