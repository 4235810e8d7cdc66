package domain

import (
	"time"
)

// CartLine 是购物车中一个商品条目。
// 不变量：Quantity >= 1，数量为 0 的行直接删除，从不落库。
type CartLine struct {
	ProductID      string    `json:"productId"`
	Quantity       int64     `json:"quantity"`
	UnitPriceCents int64     `json:"unitPrice"` // 加购时的价格快照，单位：分
	AddedAt        time.Time `json:"addedAt"`
}

// Cart 是一个用户的购物车文档。每个用户只有一个，首次加购时惰性创建。
// Version 是单调递增的版本号，供乐观并发检测使用：
// 同一用户的并发写（例如两个浏览器标签页）通过版本比对串行化。
type Cart struct {
	UserID    string               `json:"userId"`
	Lines     map[string]*CartLine `json:"lines"`
	Version   int64                `json:"version"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// NewEmptyCart 返回一个未持久化过的空购物车（Version 0）。
func NewEmptyCart(userID string) *Cart {
	return &Cart{
		UserID: userID,
		Lines:  make(map[string]*CartLine),
	}
}

// AddLine 合并语义的加购：条目已存在则数量累加，否则以给定价格快照新建。
func (c *Cart) AddLine(productID string, quantity, unitPriceCents int64, now time.Time) {
	if line, ok := c.Lines[productID]; ok {
		line.Quantity += quantity
	} else {
		c.Lines[productID] = &CartLine{
			ProductID:      productID,
			Quantity:       quantity,
			UnitPriceCents: unitPriceCents,
			AddedAt:        now,
		}
	}
	c.UpdatedAt = now
}

// SetLineQuantity 覆盖语义的改量。数量 0 等价于删除。
// 条目不存在时返回 ErrLineNotFound。
func (c *Cart) SetLineQuantity(productID string, quantity int64, now time.Time) error {
	line, ok := c.Lines[productID]
	if !ok {
		return ErrLineNotFound
	}
	if quantity == 0 {
		delete(c.Lines, productID)
	} else {
		line.Quantity = quantity
	}
	c.UpdatedAt = now
	return nil
}

// RemoveLine 删除条目。删除不存在的条目是空操作，不是错误。
func (c *Cart) RemoveLine(productID string, now time.Time) {
	delete(c.Lines, productID)
	c.UpdatedAt = now
}

// Clear 清空所有条目。
func (c *Cart) Clear(now time.Time) {
	c.Lines = make(map[string]*CartLine)
	c.UpdatedAt = now
}

// LineQuantity 返回某条目的当前数量，不存在时为 0。
func (c *Cart) LineQuantity(productID string) int64 {
	if line, ok := c.Lines[productID]; ok {
		return line.Quantity
	}
	return 0
}

// TotalItems 购物车内商品总件数。
func (c *Cart) TotalItems() int64 {
	var n int64
	for _, line := range c.Lines {
		n += line.Quantity
	}
	return n
}

// TotalPriceCents 按价格快照计算的总价（分）。
func (c *Cart) TotalPriceCents() int64 {
	var total int64
	for _, line := range c.Lines {
		total += line.Quantity * line.UnitPriceCents
	}
	return total
}

// Clone 深拷贝，供读路径返回快照、写路径在副本上计算新状态。
func (c *Cart) Clone() *Cart {
	cp := &Cart{
		UserID:    c.UserID,
		Version:   c.Version,
		UpdatedAt: c.UpdatedAt,
		Lines:     make(map[string]*CartLine, len(c.Lines)),
	}
	for id, line := range c.Lines {
		l := *line
		cp.Lines[id] = &l
	}
	return cp
}
