package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"seckill/internal/service/cart/domain"
)

// CartSnapshotModel 是购物车文档在 MySQL 中的落库快照。
// Redis 是实时购物车的权威存储，这张表只做 write-behind 的
// 持久镜像，供离线分析和 Redis 故障后的恢复使用。
type CartSnapshotModel struct {
	UserID    string `gorm:"primaryKey;size:64"`
	Lines     string `gorm:"type:json"`
	Version   int64
	UpdatedAt time.Time
}

func (CartSnapshotModel) TableName() string {
	return "cart_snapshots"
}

// GormSnapshotStore 是 domain.SnapshotStore 的 GORM 实现。
type GormSnapshotStore struct {
	db *gorm.DB
}

func NewGormSnapshotStore(db *gorm.DB) *GormSnapshotStore {
	return &GormSnapshotStore{db: db}
}

// SaveSnapshot 按 userID upsert 快照行。
// 旧版本的异步写可能晚于新版本到达，用版本号做条件更新挡掉乱序。
func (s *GormSnapshotStore) SaveSnapshot(ctx context.Context, cart *domain.Cart) error {
	lines, err := json.Marshal(cart.Lines)
	if err != nil {
		return errors.Wrap(err, "failed to marshal cart lines")
	}

	model := CartSnapshotModel{
		UserID:    cart.UserID,
		Lines:     string(lines),
		Version:   cart.Version,
		UpdatedAt: cart.UpdatedAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"lines":      model.Lines,
			"version":    model.Version,
			"updated_at": model.UpdatedAt,
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Lt{Column: clause.Column{Table: "cart_snapshots", Name: "version"}, Value: model.Version},
		}},
	}).Create(&model).Error
}

// DeleteSnapshot 清空购物车后删除快照行。
func (s *GormSnapshotStore) DeleteSnapshot(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&CartSnapshotModel{}).Error
}
