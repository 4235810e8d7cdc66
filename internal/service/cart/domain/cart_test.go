package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddLineMergesQuantities(t *testing.T) {
	now := time.Now()
	cart := NewEmptyCart("u1")

	cart.AddLine("p1", 2, 1500, now)
	cart.AddLine("p1", 3, 9999, now) // 合并时忽略后来的价格

	require.Len(t, cart.Lines, 1)
	assert.Equal(t, int64(5), cart.Lines["p1"].Quantity)
	assert.Equal(t, int64(1500), cart.Lines["p1"].UnitPriceCents, "price snapshot from first add must be kept")
}

func TestSetLineQuantity(t *testing.T) {
	now := time.Now()
	cart := NewEmptyCart("u1")
	cart.AddLine("p1", 2, 1000, now)

	require.NoError(t, cart.SetLineQuantity("p1", 7, now))
	assert.Equal(t, int64(7), cart.Lines["p1"].Quantity)

	// 数量 0 等价于删除
	require.NoError(t, cart.SetLineQuantity("p1", 0, now))
	assert.NotContains(t, cart.Lines, "p1")

	// 不存在的条目
	assert.ErrorIs(t, cart.SetLineQuantity("nope", 1, now), ErrLineNotFound)
}

func TestRemoveLineIsIdempotent(t *testing.T) {
	now := time.Now()
	cart := NewEmptyCart("u1")
	cart.AddLine("p1", 1, 1000, now)

	cart.RemoveLine("p1", now)
	cart.RemoveLine("p1", now)
	assert.Empty(t, cart.Lines)
}

func TestTotals(t *testing.T) {
	now := time.Now()
	cart := NewEmptyCart("u1")
	cart.AddLine("p1", 2, 1000, now)
	cart.AddLine("p2", 3, 500, now)

	assert.Equal(t, int64(5), cart.TotalItems())
	assert.Equal(t, int64(3500), cart.TotalPriceCents())
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	cart := NewEmptyCart("u1")
	cart.AddLine("p1", 2, 1000, now)

	cp := cart.Clone()
	cp.Lines["p1"].Quantity = 99
	cp.AddLine("p2", 1, 100, now)

	assert.Equal(t, int64(2), cart.Lines["p1"].Quantity)
	assert.NotContains(t, cart.Lines, "p2")
}
