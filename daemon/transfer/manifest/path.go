// Package manifest implements the manifest exchange and resume reconciliation stage: sender-side
// manifest construction, receiver-side missing-chunk computation, and target/staging path
// resolution.
package manifest

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolveTargetPath returns the final on-disk path for relativePath under saveDir, normalizing
// any backslash separators a Windows peer may have sent.
func ResolveTargetPath(saveDir, relativePath string) string {
	clean := strings.ReplaceAll(relativePath, "\\", "/")
	return filepath.Join(saveDir, filepath.FromSlash(clean))
}

// BuildPartPath returns the staging path a receiver writes chunks into while a transfer is in
// progress: the target's sibling, named "<basename>.<sessionID>.part".
func BuildPartPath(saveDir, sessionID, relativePath string) string {
	target := ResolveTargetPath(saveDir, relativePath)
	dir := filepath.Dir(target)
	base := filepath.Base(target)
	partName := fmt.Sprintf("%s.%s.part", base, sessionID)
	return filepath.Join(dir, partName)
}
