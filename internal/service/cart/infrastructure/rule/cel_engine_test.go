package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCELRuleEngineAllow(t *testing.T) {
	engine, err := NewCELRuleEngine(`lineQuantity <= 5 && quantity >= 1`)
	require.NoError(t, err)

	ok, err := engine.Allow(map[string]interface{}{
		"productId": "SK-1001", "quantity": int64(2), "lineQuantity": int64(5),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = engine.Allow(map[string]interface{}{
		"productId": "SK-1001", "quantity": int64(2), "lineQuantity": int64(6),
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCELRuleEngineUsesProductID(t *testing.T) {
	engine, err := NewCELRuleEngine(`productId.startsWith("SK-") ? lineQuantity <= 2 : true`)
	require.NoError(t, err)

	ok, err := engine.Allow(map[string]interface{}{
		"productId": "SK-2000", "quantity": int64(3), "lineQuantity": int64(3),
	})
	require.NoError(t, err)
	assert.False(t, ok, "flash-sale items capped at two")

	ok, err = engine.Allow(map[string]interface{}{
		"productId": "BOOK-1", "quantity": int64(3), "lineQuantity": int64(3),
	})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCELRuleEngineRejectsBadExpressions(t *testing.T) {
	_, err := NewCELRuleEngine(`quantity +`)
	assert.Error(t, err)

	// 非布尔类型的表达式
	_, err = NewCELRuleEngine(`quantity + 1`)
	assert.Error(t, err)
}
