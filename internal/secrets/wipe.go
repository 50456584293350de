package secrets

import "github.com/awnumar/memguard"

// Wipe overwrites b with zeroes. It is best effort: copies the runtime made
// elsewhere are not reachable.
func Wipe(b []byte) {
	if len(b) == 0 {
		return
	}
	memguard.WipeBytes(b)
}
