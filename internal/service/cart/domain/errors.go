package domain

import "errors"

var (
	// ErrInvalidQuantity 数量非法（加购要求 >= 1，改量要求 >= 0）
	ErrInvalidQuantity = errors.New("cart: invalid quantity")
	// ErrInvalidProduct 商品标识为空或格式非法
	ErrInvalidProduct = errors.New("cart: invalid product id")
	// ErrInvalidUser 用户标识为空
	ErrInvalidUser = errors.New("cart: invalid user id")
	// ErrLineNotFound 改量/删除引用了不存在的条目（删除按空操作处理，不走这里）
	ErrLineNotFound = errors.New("cart: line not found")
	// ErrLimitExceeded 触发限购规则
	ErrLimitExceeded = errors.New("cart: purchase limit exceeded")
	// ErrVersionMismatch 底层存储的版本比对失败，由写入方重试
	ErrVersionMismatch = errors.New("cart: version mismatch")
	// ErrConflict 乐观并发重试次数耗尽，调用方应重新读取后重提
	ErrConflict = errors.New("cart: too many concurrent modifications")
	// ErrUnavailable 持久化存储不可用
	ErrUnavailable = errors.New("cart: storage unavailable")
)
