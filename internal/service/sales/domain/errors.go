package domain

import "errors"

var (
	// ErrInvalidEvent 事件缺字段或数值非法，拒绝摄入
	ErrInvalidEvent = errors.New("sales: invalid sale event")
	// ErrDuplicateEvent 事件已摄入过。幂等吸收，调用方不应视为失败
	ErrDuplicateEvent = errors.New("sales: duplicate sale event")
	// ErrInvalidLimit 热销榜 limit 必须 >= 1
	ErrInvalidLimit = errors.New("sales: limit must be >= 1")
	// ErrInvalidRange 历史查询的日期区间非法
	ErrInvalidRange = errors.New("sales: invalid date range")
	// ErrUnavailable 底层存储不可用
	ErrUnavailable = errors.New("sales: storage unavailable")
)
