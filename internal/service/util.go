package service

import (
	"hash/fnv"
	"sync"
)

func Filter[T any](items []T, fn func(T) bool) []T {
	var result []T
	for _, v := range items {
		if fn(v) {
			result = append(result, v)
		}
	}
	return result
}

// GroupBy buckets items by key, keeping input order inside each bucket.
func GroupBy[K comparable, T any](items []T, key func(T) K) map[K][]T {
	result := make(map[K][]T)
	for _, v := range items {
		k := key(v)
		result[k] = append(result[k], v)
	}
	return result
}

const lockStripes = 64

// keyedLocks serializes work per key on a fixed set of striped mutexes.
// Two keys may share a stripe; that only costs parallelism.
type keyedLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (k *keyedLocks) lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	m := &k.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}
