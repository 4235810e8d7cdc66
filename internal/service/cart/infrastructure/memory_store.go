package infrastructure

import (
	"context"
	"sync"

	"seckill/internal/service/cart/domain"
)

// MemoryCartStore 是 domain.Repository 的进程内实现，
// 供单元测试和本地联调使用，CAS 语义与 Redis 实现一致。
type MemoryCartStore struct {
	mu    sync.Mutex
	carts map[string]*domain.Cart
}

func NewMemoryCartStore() *MemoryCartStore {
	return &MemoryCartStore{carts: make(map[string]*domain.Cart)}
}

func (s *MemoryCartStore) Load(_ context.Context, userID string) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cart, ok := s.carts[userID]; ok {
		return cart.Clone(), nil
	}
	return domain.NewEmptyCart(userID), nil
}

func (s *MemoryCartStore) CompareAndSwap(_ context.Context, cart *domain.Cart, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if existing, ok := s.carts[cart.UserID]; ok {
		current = existing.Version
	}
	if current != expectedVersion {
		return domain.ErrVersionMismatch
	}
	cart.Version = expectedVersion + 1
	s.carts[cart.UserID] = cart.Clone()
	return nil
}
