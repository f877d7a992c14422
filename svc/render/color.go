package render

import (
	"crypto/md5"
	"encoding/hex"
)

// ColorFor derives a stable pseudo-color for a display name: the first
// 6 hex characters of md5(name). Purely visual; collisions between
// different names are acceptable.
func ColorFor(name string) string {
	sum := md5.Sum([]byte(name))
	return hex.EncodeToString(sum[:])[:6]
}
