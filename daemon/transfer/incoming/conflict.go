package incoming

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxConflictAttempts bounds the " (n)" suffix search before giving up and reusing path as-is.
const maxConflictAttempts = 9999

// ResolveConflictPath returns path unchanged if nothing exists there yet; otherwise it finds
// the first "<stem> (n)<ext>" sibling that does not exist, trying n = 1..9999 in order.
func ResolveConflictPath(path string) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	} else if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for n := 1; n <= maxConflictAttempts; n++ {
		var name string
		if ext != "" {
			name = fmt.Sprintf("%s (%d)%s", stem, n, ext)
		} else {
			name = fmt.Sprintf("%s (%d)", stem, n)
		}
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return path, nil
}
