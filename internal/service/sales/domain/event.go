package domain

import (
	"time"
)

// DayLayout 是日桶的键格式（UTC 日历日，yyyyMMdd）。
const DayLayout = "20060102"

// SaleEvent 是交易流中的一条已完成销售事件。
// 不可变、追加写；投递语义为 at-least-once，
// 以 EventID 为标识做幂等去重。
type SaleEvent struct {
	EventID        string    `json:"eventId"`
	ProductID      string    `json:"productId"`
	Quantity       int64     `json:"quantity"`
	UnitPriceCents int64     `json:"unitPrice"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Day 返回事件归属的日历日。
// 始终按事件自身的时间戳取日，而不是摄入时刻的墙钟，
// 迟到/乱序投递也能落到正确的历史桶。
func (e *SaleEvent) Day() string {
	return e.OccurredAt.UTC().Format(DayLayout)
}

// RevenueCents 这条事件带来的销售额（分）。
func (e *SaleEvent) RevenueCents() int64 {
	return e.Quantity * e.UnitPriceCents
}

// Validate 校验事件的基本约束。
func (e *SaleEvent) Validate() error {
	if e.EventID == "" || e.ProductID == "" {
		return ErrInvalidEvent
	}
	if e.Quantity < 1 || e.UnitPriceCents < 0 {
		return ErrInvalidEvent
	}
	if e.OccurredAt.IsZero() {
		return ErrInvalidEvent
	}
	return nil
}
