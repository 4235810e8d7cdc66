package application

import (
	"context"
	"sync"

	"seckill/internal/service/sales/domain"
)

// MemoryDeduper 是 domain.Deduper 的进程内实现：
// 一个有界的"最近见过"的事件 id 集合，FIFO 淘汰。
// 容量应大于 feed 的重投窗口内可能出现的事件数。
type MemoryDeduper struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	order    []string // 插入顺序环形队列
	head     int
	capacity int
}

func NewMemoryDeduper(capacity int) *MemoryDeduper {
	if capacity < 1 {
		capacity = 1
	}
	return &MemoryDeduper{
		seen:     make(map[string]struct{}, capacity),
		order:    make([]string, 0, capacity),
		capacity: capacity,
	}
}

func (d *MemoryDeduper) FirstSeen(_ context.Context, day, eventID string) (bool, error) {
	key := day + "/" + eventID

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return false, nil
	}

	if len(d.order) < d.capacity {
		d.order = append(d.order, key)
	} else {
		// 满了，覆盖最老的一条
		delete(d.seen, d.order[d.head])
		d.order[d.head] = key
		d.head = (d.head + 1) % d.capacity
	}
	d.seen[key] = struct{}{}
	return true, nil
}

// Seen 只查询不记录。
func (d *MemoryDeduper) Seen(day, eventID string) bool {
	key := day + "/" + eventID
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[key]
	return ok
}

// Len 当前记住的 id 数，测试用。
func (d *MemoryDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// LayeredDeduper 把本地有界集合挡在集群级权威实现前面。
// 消费组再平衡后的短窗口重投大多在本地就被吸收，
// 省掉一次网络往返；本地未见过的 id 仍由权威实现裁决。
//
// 本地集合只在权威层裁决成功之后才记录：权威层暂时不可用时
// 本地不能先入为主，否则重投会被误吸收、事件永久丢失。
type LayeredDeduper struct {
	local         *MemoryDeduper
	authoritative domain.Deduper
}

func NewLayeredDeduper(local *MemoryDeduper, authoritative domain.Deduper) *LayeredDeduper {
	return &LayeredDeduper{local: local, authoritative: authoritative}
}

func (d *LayeredDeduper) FirstSeen(ctx context.Context, day, eventID string) (bool, error) {
	if d.local.Seen(day, eventID) {
		return false, nil
	}
	first, err := d.authoritative.FirstSeen(ctx, day, eventID)
	if err != nil {
		return false, err
	}
	d.local.FirstSeen(ctx, day, eventID)
	return first, nil
}
