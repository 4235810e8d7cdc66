package application

import (
	"container/heap"
	"sync"

	"seckill/internal/service/sales/domain"
)

// TopRanking 维护当日热销榜。
//
// 这是整个系统里唯一一处刻意共享的写串行资源（跨商品的排序
// 不变量无法分片），临界区必须足够窄：Update 只做一次 map 写
// 和一次 O(log n) 的堆插入。排序键为销量降序，销量相同时按
// 商品 ID 升序，保证结果确定。
//
// 堆里允许存在过期条目（商品销量又涨了之后，旧条目就过期），
// 读取时惰性跳过，条目数超过活跃商品数的若干倍时整体压实。
type TopRanking struct {
	mu      sync.Mutex
	scores  map[string]int64
	entries rankHeap
}

type rankEntry struct {
	productID string
	quantity  int64
}

type rankHeap []rankEntry

func (h rankHeap) Len() int { return len(h) }
func (h rankHeap) Less(i, j int) bool {
	if h[i].quantity != h[j].quantity {
		return h[i].quantity > h[j].quantity
	}
	return h[i].productID < h[j].productID
}
func (h rankHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *rankHeap) Push(x interface{}) { *h = append(*h, x.(rankEntry)) }
func (h *rankHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func NewTopRanking() *TopRanking {
	return &TopRanking{scores: make(map[string]int64)}
}

// Update 把某商品的当日累计销量更新为 total。
func (r *TopRanking) Update(productID string, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.scores[productID] = total
	heap.Push(&r.entries, rankEntry{productID: productID, quantity: total})

	// 过期条目太多时压实，摊还后单次更新仍是 O(log n)
	if len(r.entries) > 4*len(r.scores)+16 {
		r.compactLocked()
	}
}

// Top 返回销量前 limit 名，销量降序、同量按商品 ID 升序。
func (r *TopRanking) Top(limit int) []domain.HotEntry {
	r.mu.Lock()
	// 在堆的副本上弹出，避免读操作扰动写路径的结构
	snapshot := make(rankHeap, len(r.entries))
	copy(snapshot, r.entries)
	scores := make(map[string]int64, len(r.scores))
	for id, q := range r.scores {
		scores[id] = q
	}
	r.mu.Unlock()

	heap.Init(&snapshot)
	result := make([]domain.HotEntry, 0, limit)
	seen := make(map[string]bool, limit)
	for snapshot.Len() > 0 && len(result) < limit {
		e := heap.Pop(&snapshot).(rankEntry)
		if seen[e.productID] || scores[e.productID] != e.quantity {
			continue // 过期或重复条目
		}
		seen[e.productID] = true
		result = append(result, domain.HotEntry{ProductID: e.productID, Quantity: e.quantity})
	}
	return result
}

// Rebuild 用一个日桶重建榜单（日切换或重启回放时调用）。
func (r *TopRanking) Rebuild(bucket *domain.DailyBucket) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.scores = make(map[string]int64, len(bucket.Products))
	r.entries = r.entries[:0]
	for id, t := range bucket.Products {
		r.scores[id] = t.Quantity
		r.entries = append(r.entries, rankEntry{productID: id, quantity: t.Quantity})
	}
	heap.Init(&r.entries)
}

func (r *TopRanking) compactLocked() {
	compacted := r.entries[:0]
	seen := make(map[string]bool, len(r.scores))
	for _, e := range r.entries {
		if !seen[e.productID] && r.scores[e.productID] == e.quantity {
			seen[e.productID] = true
			compacted = append(compacted, e)
		}
	}
	r.entries = compacted
	heap.Init(&r.entries)
}
