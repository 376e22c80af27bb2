package cache

import (
	"sort"
	"sync"
	"time"
)

// fastEntry là một mục trong tầng nhanh, đếm số lần truy cập để phục vụ eviction
type fastEntry struct {
	value       []byte
	storedAt    time.Time
	ttl         time.Duration
	accessCount int64
}

// fastTier là tầng cache trong bộ nhớ với giới hạn số lượng entry.
// Khi đầy sẽ loại bỏ một phần tư số entry có lượt truy cập thấp nhất,
// rẻ hơn so với LRU chính xác vì không phải giữ cấu trúc đã sắp xếp.
type fastTier struct {
	mu       sync.Mutex
	entries  map[string]*fastEntry
	capacity int
}

func newFastTier(capacity int) *fastTier {
	if capacity <= 0 {
		capacity = 1000
	}
	return &fastTier{
		entries:  make(map[string]*fastEntry, capacity),
		capacity: capacity,
	}
}

func (f *fastTier) get(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.entries[key]
	if !ok {
		return nil, false
	}

	if entry.ttl > 0 && time.Since(entry.storedAt) > entry.ttl {
		delete(f.entries, key)
		return nil, false
	}

	entry.accessCount++
	return entry.value, true
}

func (f *fastTier) set(key string, value []byte, ttl time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.entries[key]; !exists && len(f.entries) >= f.capacity {
		f.evictLocked()
	}

	f.entries[key] = &fastEntry{
		value:    value,
		storedAt: time.Now(),
		ttl:      ttl,
	}
}

func (f *fastTier) remove(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
}

func (f *fastTier) clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = make(map[string]*fastEntry, f.capacity)
}

func (f *fastTier) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// evictLocked loại bỏ quartile dưới cùng theo số lần truy cập.
// Caller phải đang giữ lock.
func (f *fastTier) evictLocked() {
	counts := make([]int64, 0, len(f.entries))
	for _, entry := range f.entries {
		counts = append(counts, entry.accessCount)
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i] < counts[j] })

	quartile := len(counts) / 4
	if quartile == 0 {
		quartile = 1
	}
	threshold := counts[quartile-1]

	removed := 0
	for key, entry := range f.entries {
		if entry.accessCount <= threshold {
			delete(f.entries, key)
			removed++
			if removed >= quartile {
				break
			}
		}
	}
}
