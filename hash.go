// Shard selection for the registry.
//
// Creation of a SharedFile is serialised per shard rather than per registry,
// so unrelated files first requested at the same time do not wait on each
// other. The shard is picked by the xxHash3 of the canonical path.
package sharedfile

import "github.com/zeebo/xxh3"

// shardCount must be a power of two.
const shardCount = 16

// shard returns the shard index for a canonical key.
func shard(key string) int {
	return int(xxh3.HashString(key) & (shardCount - 1))
}
