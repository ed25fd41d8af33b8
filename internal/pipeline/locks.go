package pipeline

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultLockShards = 64

// keyedLocks serializes work per report id without a global lock. Ids are
// spread over a fixed set of mutexes, so two ids may share a shard but one id
// always maps to the same shard.
type keyedLocks struct {
	shards []sync.Mutex
}

func newKeyedLocks(n int) *keyedLocks {
	if n <= 0 {
		n = defaultLockShards
	}
	return &keyedLocks{shards: make([]sync.Mutex, n)}
}

// lock acquires the shard for id and returns its release function.
func (l *keyedLocks) lock(id string) func() {
	mu := &l.shards[l.shardFor(id)]
	mu.Lock()
	return mu.Unlock
}

func (l *keyedLocks) shardFor(id string) int {
	return int(xxhash.Sum64String(id) % uint64(len(l.shards)))
}
