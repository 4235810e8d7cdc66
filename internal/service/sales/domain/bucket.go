package domain

// ProductTotal 是日桶内单个商品的累计。
type ProductTotal struct {
	Quantity     int64 `json:"quantity"`
	RevenueCents int64 `json:"revenue"`
}

// DailyBucket 是一个日历日的聚合桶。
// 今日的桶持续被写，过去的桶一旦封存不再参与实时排行，
// 但仍接受迟到事件的修正。
type DailyBucket struct {
	Date              string                  `json:"date"` // yyyyMMdd, UTC
	Products          map[string]ProductTotal `json:"products"`
	OrderCount        int64                   `json:"orderCount"`
	TotalUnits        int64                   `json:"totalUnits"`
	TotalRevenueCents int64                   `json:"totalRevenue"`
}

// NewDailyBucket 创建一个空桶。
func NewDailyBucket(date string) *DailyBucket {
	return &DailyBucket{
		Date:     date,
		Products: make(map[string]ProductTotal),
	}
}

// Apply 把一条事件累加进桶。
func (b *DailyBucket) Apply(e *SaleEvent) {
	t := b.Products[e.ProductID]
	t.Quantity += e.Quantity
	t.RevenueCents += e.RevenueCents()
	b.Products[e.ProductID] = t

	b.OrderCount++
	b.TotalUnits += e.Quantity
	b.TotalRevenueCents += e.RevenueCents()
}

// Snapshot 返回桶的深拷贝，读路径拿到的是一致的瞬时切面。
func (b *DailyBucket) Snapshot() *DailyBucket {
	cp := &DailyBucket{
		Date:              b.Date,
		Products:          make(map[string]ProductTotal, len(b.Products)),
		OrderCount:        b.OrderCount,
		TotalUnits:        b.TotalUnits,
		TotalRevenueCents: b.TotalRevenueCents,
	}
	for id, t := range b.Products {
		cp.Products[id] = t
	}
	return cp
}

// Dashboard 是今日实时看板。
type Dashboard struct {
	Date                 string `json:"date"`
	OrderCount           int64  `json:"orderCount"`
	TotalUnits           int64  `json:"totalUnits"`
	TotalRevenueCents    int64  `json:"totalRevenue"`
	DistinctProductsSold int    `json:"distinctProducts"`
}

// HotEntry 是热销榜中的一项。
type HotEntry struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}
