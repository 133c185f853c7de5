package valueobject

import (
	"fmt"
	"sort"
)

// LiveSecret is a snapshot of a live secret. VersionID is empty when the secret does not exist yet.
type LiveSecret struct {
	Values    map[string]string
	VersionID string
}

func (s LiveSecret) Exists() bool {
	return s.VersionID != ""
}

func (s LiveSecret) Keys() []string {
	return SortedKeys(s.Values)
}

func (s LiveSecret) String() string {
	return fmt.Sprintf("LiveSecret{version=%s keys=%d}", s.VersionID, len(s.Values))
}

func (s LiveSecret) GoString() string {
	return s.String()
}

// SortedKeys returns the keys of values in ascending order
func SortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
