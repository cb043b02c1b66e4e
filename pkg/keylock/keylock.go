package keylock

import (
	"hash/fnv"
	"sort"
	"sync"
)

const shardCount = 64

// KeyLock provides per-identifier critical sections over a fixed set of
// mutex shards, so holding locks for many distinct keys never grows memory.
type KeyLock struct {
	shards [shardCount]sync.Mutex
}

func New() *KeyLock {
	return &KeyLock{}
}

// Lock acquires the shards covering the given keys and returns the matching
// unlock function. Empty keys are ignored. Shards are taken in ascending
// order so overlapping multi-key lockers cannot deadlock each other.
func (l *KeyLock) Lock(keys ...string) (unlock func()) {
	var seen [shardCount]bool
	indexes := make([]int, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		i := shard(key)
		if !seen[i] {
			seen[i] = true
			indexes = append(indexes, i)
		}
	}
	sort.Ints(indexes)

	for _, i := range indexes {
		l.shards[i].Lock()
	}
	return func() {
		for j := len(indexes) - 1; j >= 0; j-- {
			l.shards[indexes[j]].Unlock()
		}
	}
}

func shard(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}
