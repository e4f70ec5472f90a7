package refresh

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// GenerateFolderKey derives a stable identifier for a remote folder name.
// The key is a hash of the name, so the same folder keeps the same key
// across scans. When two names collide, a numeric suffix disambiguates
// against existingKeys; the caller must record the returned key in
// existingKeys before generating the next one.
func GenerateFolderKey(name string, existingKeys map[string]bool) string {
	key := fmt.Sprintf("%016x", xxhash.Sum64String(name))
	if !existingKeys[key] {
		return key
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d", key, i)
		if !existingKeys[candidate] {
			return candidate
		}
	}
}
