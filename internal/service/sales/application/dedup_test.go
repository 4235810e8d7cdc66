package application

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDeduperFirstAndDuplicate(t *testing.T) {
	d := NewMemoryDeduper(16)
	ctx := context.Background()

	first, err := d.FirstSeen(ctx, "20260829", "evt-1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.FirstSeen(ctx, "20260829", "evt-1")
	require.NoError(t, err)
	assert.False(t, again)

	// 同一 id 在另一天是另一个键
	otherDay, err := d.FirstSeen(ctx, "20260830", "evt-1")
	require.NoError(t, err)
	assert.True(t, otherDay)
}

func TestMemoryDeduperEvictsOldest(t *testing.T) {
	d := NewMemoryDeduper(3)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		first, err := d.FirstSeen(ctx, "20260829", fmt.Sprintf("evt-%d", i))
		require.NoError(t, err)
		assert.True(t, first)
	}
	assert.Equal(t, 3, d.Len())

	// evt-0 是最老的一条，已被淘汰，再来会被当新事件
	first, err := d.FirstSeen(ctx, "20260829", "evt-0")
	require.NoError(t, err)
	assert.True(t, first)

	// evt-2 还在窗口里
	first, err = d.FirstSeen(ctx, "20260829", "evt-2")
	require.NoError(t, err)
	assert.False(t, first)
}

// flakyDeduper 前 failures 次调用报错，之后正常工作。
type flakyDeduper struct {
	inner    *MemoryDeduper
	failures int
}

func (d *flakyDeduper) FirstSeen(ctx context.Context, day, eventID string) (bool, error) {
	if d.failures > 0 {
		d.failures--
		return false, fmt.Errorf("redis: connection refused")
	}
	return d.inner.FirstSeen(ctx, day, eventID)
}

func TestLayeredDeduperLocalAbsorbsBeforeAuthoritative(t *testing.T) {
	local := NewMemoryDeduper(16)
	authoritative := NewMemoryDeduper(16)
	d := NewLayeredDeduper(local, authoritative)
	ctx := context.Background()

	first, err := d.FirstSeen(ctx, "20260829", "evt-1")
	require.NoError(t, err)
	assert.True(t, first)

	first, err = d.FirstSeen(ctx, "20260829", "evt-1")
	require.NoError(t, err)
	assert.False(t, first)

	// 本地没见过但权威集合见过（另一副本先消费了）
	_, err = authoritative.FirstSeen(ctx, "20260829", "evt-2")
	require.NoError(t, err)
	first, err = d.FirstSeen(ctx, "20260829", "evt-2")
	require.NoError(t, err)
	assert.False(t, first)
}

// 权威层暂时不可用时本地不得先记录，否则重投会被误判为重复。
func TestLayeredDeduperAuthoritativeOutageDoesNotPoisonLocal(t *testing.T) {
	local := NewMemoryDeduper(16)
	d := NewLayeredDeduper(local, &flakyDeduper{inner: NewMemoryDeduper(16), failures: 1})
	ctx := context.Background()

	_, err := d.FirstSeen(ctx, "20260829", "evt-1")
	require.Error(t, err)
	assert.False(t, local.Seen("20260829", "evt-1"), "failed check must leave no local trace")

	// 重投：权威层已恢复，事件必须被当作首见
	first, err := d.FirstSeen(ctx, "20260829", "evt-1")
	require.NoError(t, err)
	assert.True(t, first)

	// 再来才是重复
	first, err = d.FirstSeen(ctx, "20260829", "evt-1")
	require.NoError(t, err)
	assert.False(t, first)
}
