package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"seckill/internal/service/sales/domain"
)

// DailySaleModel 是日销汇总在 MySQL 中的表示。
// 粒度：(day, product_id) 一行。内存中的日桶是实时权威，
// 这张表是 write-behind 镜像，服务重启后据此回放。
type DailySaleModel struct {
	Day          string `gorm:"primaryKey;size:8"` // yyyyMMdd
	ProductID    string `gorm:"primaryKey;size:64"`
	Quantity     int64
	RevenueCents int64
	OrderCount   int64
	UpdatedAt    time.Time
}

func (DailySaleModel) TableName() string {
	return "daily_sales"
}

// GormRollupRepository 是 domain.RollupRepository 的 GORM 实现
type GormRollupRepository struct {
	db *gorm.DB
}

func NewGormRollupRepository(db *gorm.DB) *GormRollupRepository {
	return &GormRollupRepository{db: db}
}

// AddSale 增量 upsert 一条销售记录。
func (r *GormRollupRepository) AddSale(ctx context.Context, day, productID string, quantity, revenueCents int64) error {
	model := DailySaleModel{
		Day:          day,
		ProductID:    productID,
		Quantity:     quantity,
		RevenueCents: revenueCents,
		OrderCount:   1,
		UpdatedAt:    time.Now().UTC(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "day"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"quantity":      gorm.Expr("quantity + ?", quantity),
			"revenue_cents": gorm.Expr("revenue_cents + ?", revenueCents),
			"order_count":   gorm.Expr("order_count + 1"),
			"updated_at":    model.UpdatedAt,
		}),
	}).Create(&model).Error
	return errors.Wrap(err, "failed to upsert daily sale")
}

// SealDay 用内存桶的最终值整日覆盖，抹平增量写期间可能产生的偏差。
// 多副本并发调用也收敛到同一结果，幂等。
func (r *GormRollupRepository) SealDay(ctx context.Context, bucket *domain.DailyBucket) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("day = ?", bucket.Date).Delete(&DailySaleModel{}).Error; err != nil {
			return err
		}
		if len(bucket.Products) == 0 {
			return nil
		}
		now := time.Now().UTC()
		rows := make([]DailySaleModel, 0, len(bucket.Products))
		// order_count 无法按商品拆分，记在字典序最小的行上，
		// LoadDay 时整日求和还原
		var first string
		for id := range bucket.Products {
			if first == "" || id < first {
				first = id
			}
		}
		for id, t := range bucket.Products {
			row := DailySaleModel{
				Day:          bucket.Date,
				ProductID:    id,
				Quantity:     t.Quantity,
				RevenueCents: t.RevenueCents,
				UpdatedAt:    now,
			}
			if id == first {
				row.OrderCount = bucket.OrderCount
			}
			rows = append(rows, row)
		}
		return tx.Create(&rows).Error
	})
	return errors.Wrap(err, "failed to seal daily rollup")
}

// LoadDay 读取某天的汇总，没有记录时返回 nil。
func (r *GormRollupRepository) LoadDay(ctx context.Context, day string) (*domain.DailyBucket, error) {
	var rows []DailySaleModel
	if err := r.db.WithContext(ctx).Where("day = ?", day).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to load daily rollup")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	bucket := domain.NewDailyBucket(day)
	for _, row := range rows {
		bucket.Products[row.ProductID] = domain.ProductTotal{
			Quantity:     row.Quantity,
			RevenueCents: row.RevenueCents,
		}
		bucket.TotalUnits += row.Quantity
		bucket.TotalRevenueCents += row.RevenueCents
		bucket.OrderCount += row.OrderCount
	}
	return bucket, nil
}
