package dfs

import (
	"fmt"
	"path"
	"strings"
)

// VirtualRoot is the client-visible prefix every path must begin with.
const VirtualRoot = "~/S1"

// shardRootSegment returns the "S<n>" segment a shard owning ext exposes in
// place of "S1", e.g. "S2" for pdf. ext must already be Valid().
func shardRootSegment(ext Extension) string {
	return fmt.Sprintf("S%d", ext.ShardIndex())
}

// ExpandHome replaces a leading "~" path segment with home, substituting
// it the way a shell would expand a home-directory prefix. Paths that
// don't start with "~" are returned unchanged.
func ExpandHome(p, home string) string {
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return path.Join(home, p[2:])
	}
	return p
}

// UnderVirtualRoot reports whether the expanded path p lies under the
// virtual root once ~ has been substituted for homeExpansion: the router
// never serves a path outside ~/S1.
func UnderVirtualRoot(p, homeExpansion string) bool {
	root := ExpandHome(VirtualRoot, homeExpansion)
	return p == root || strings.HasPrefix(p, root+"/")
}

// Translate rewrites the first occurrence of the path segment "S1" to the
// shard segment that owns ext ("S2", "S3", "S4"), leaving every other
// component of p untouched. Translate is idempotent: translating an
// already-translated path for the same extension is a no-op, satisfying
// invariant 5 of the testable properties.
func Translate(p string, ext Extension) string {
	segs := strings.Split(p, "/")
	target := shardRootSegment(ext)
	for i, s := range segs {
		if s == "S1" {
			segs[i] = target
			break
		}
		if s == target {
			// already translated for this extension; nothing to do.
			break
		}
	}
	return strings.Join(segs, "/")
}

// localPathUnder locates the segment named virtualSegment (e.g. "S1" or
// "S2") within p and maps everything after it onto backingRoot, the real
// on-disk directory that virtualSegment corresponds to. The resulting path
// must stay under backingRoot, so a caller never honors a path that
// escapes the subtree it owns.
func localPathUnder(p, virtualSegment, backingRoot string) (string, error) {
	segs := strings.Split(p, "/")
	idx := -1
	for i, s := range segs {
		if s == virtualSegment {
			idx = i
			break
		}
	}
	if idx == -1 {
		return "", fmt.Errorf("path %q does not contain the %s segment", p, virtualSegment)
	}
	rel := strings.Join(segs[idx+1:], "/")
	local := path.Join(backingRoot, rel)
	if local != backingRoot && !strings.HasPrefix(local, backingRoot+"/") {
		return "", fmt.Errorf("path %q escapes %s", p, backingRoot)
	}
	return local, nil
}

// RouterLocalPath maps a client-visible, already-expanded ~/S1/... path to
// the router's real on-disk path, rooted at s1Root (RouterConfig.Root()).
func RouterLocalPath(expandedClientPath, s1Root string) (string, error) {
	return localPathUnder(expandedClientPath, "S1", s1Root)
}

// ShardLocalPath maps an already-translated ~/S<n>/... path (as seen by a
// shard) to that shard's real on-disk path, rooted at shardRoot
// (ShardConfig.Root()).
func ShardLocalPath(translatedPath, shardRoot string, ext Extension) (string, error) {
	return localPathUnder(translatedPath, shardRootSegment(ext), shardRoot)
}

// SplitDirBase mirrors dirname/basename as explicit path-component
// operations, without shelling out.
func SplitDirBase(p string) (dir, base string) {
	dir, base = path.Split(p)
	return strings.TrimSuffix(dir, "/"), base
}
