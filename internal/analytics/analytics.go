// Package analytics computes revenue rollups over order ledger snapshots.
// Everything here is a pure function: no state, no caching, recomputed
// fresh on every call so the numbers can never drift from the ledger.
package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vastralabs/vastra-backend/internal/orders"
	"github.com/vastralabs/vastra-backend/pkg/enums"
)

// Stats is the storefront revenue dashboard payload.
type Stats struct {
	TotalRevenue      float64 `json:"totalRevenue"`
	MonthlyRevenue    float64 `json:"monthlyRevenue"`
	YearlyRevenue     float64 `json:"yearlyRevenue"`
	AverageOrderValue float64 `json:"averageOrderValue"`
	GrowthRate        float64 `json:"growthRate"`
}

// ProductRevenue is one row of a top-products ranking.
type ProductRevenue struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	Revenue     float64 `json:"revenue"`
}

// SalesReport summarizes one calendar month.
type SalesReport struct {
	Year         int                       `json:"year"`
	Month        time.Month                `json:"month"`
	TotalOrders  int                       `json:"totalOrders"`
	TotalRevenue float64                   `json:"totalRevenue"`
	StatusCounts map[enums.OrderStatus]int `json:"statusCounts"`
	TopProducts  []ProductRevenue          `json:"topProducts"`
}

// DailyPoint is one day of a revenue time series.
type DailyPoint struct {
	Date    time.Time `json:"date"`
	Orders  int       `json:"orders"`
	Revenue float64   `json:"revenue"`
}

const topProductsLimit = 5

func sameMonth(t time.Time, year int, month time.Month) bool {
	t = t.UTC()
	return t.Year() == year && t.Month() == month
}

// RevenueStats computes the dashboard rollup relative to now. Growth rate
// is month-over-month: (this − last) / last × 100, with last=0 mapping to
// 100 when this month has revenue and 0 when both months are empty, so a
// first month of sales reads as "+100%" instead of dividing by zero.
func RevenueStats(list []orders.Order, now time.Time) Stats {
	now = now.UTC()
	prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)

	total := decimal.Zero
	thisMonth := decimal.Zero
	lastMonth := decimal.Zero
	thisYear := decimal.Zero

	for _, order := range list {
		amount := decimal.NewFromFloat(order.Total)
		total = total.Add(amount)
		created := order.CreatedAt.UTC()
		if created.Year() == now.Year() {
			thisYear = thisYear.Add(amount)
		}
		if sameMonth(created, now.Year(), now.Month()) {
			thisMonth = thisMonth.Add(amount)
		}
		if sameMonth(created, prev.Year(), prev.Month()) {
			lastMonth = lastMonth.Add(amount)
		}
	}

	stats := Stats{
		TotalRevenue:   total.InexactFloat64(),
		MonthlyRevenue: thisMonth.InexactFloat64(),
		YearlyRevenue:  thisYear.InexactFloat64(),
	}
	if len(list) > 0 {
		stats.AverageOrderValue = total.Div(decimal.NewFromInt(int64(len(list)))).InexactFloat64()
	}

	switch {
	case lastMonth.IsZero() && thisMonth.IsZero():
		stats.GrowthRate = 0
	case lastMonth.IsZero():
		stats.GrowthRate = 100
	default:
		stats.GrowthRate = thisMonth.Sub(lastMonth).
			Div(lastMonth).
			Mul(decimal.NewFromInt(100)).
			InexactFloat64()
	}
	return stats
}

// MonthlySalesReport summarizes the given calendar month. A month with no
// orders yields zero counts, all five statuses at 0, and an empty ranking.
func MonthlySalesReport(list []orders.Order, year int, month time.Month) SalesReport {
	report := SalesReport{
		Year:         year,
		Month:        month,
		StatusCounts: make(map[enums.OrderStatus]int, len(enums.AllOrderStatuses())),
		TopProducts:  []ProductRevenue{},
	}
	for _, status := range enums.AllOrderStatuses() {
		report.StatusCounts[status] = 0
	}

	revenue := decimal.Zero
	perProduct := map[string]*ProductRevenue{}
	perProductRevenue := map[string]decimal.Decimal{}
	var firstSeen []string

	for _, order := range list {
		if !sameMonth(order.CreatedAt, year, month) {
			continue
		}
		report.TotalOrders++
		report.StatusCounts[order.Status]++
		revenue = revenue.Add(decimal.NewFromFloat(order.Total))

		for _, item := range order.Items {
			line := decimal.NewFromFloat(item.UnitPrice).Mul(decimal.NewFromInt(int64(item.Quantity)))
			row, ok := perProduct[item.ProductID]
			if !ok {
				row = &ProductRevenue{ProductID: item.ProductID, ProductName: item.ProductName}
				perProduct[item.ProductID] = row
				firstSeen = append(firstSeen, item.ProductID)
			}
			row.Quantity += item.Quantity
			perProductRevenue[item.ProductID] = perProductRevenue[item.ProductID].Add(line)
		}
	}
	report.TotalRevenue = revenue.InexactFloat64()

	// Rank in first-encountered order so equal revenues keep a stable order.
	rows := make([]ProductRevenue, 0, len(firstSeen))
	for _, id := range firstSeen {
		row := *perProduct[id]
		row.Revenue = perProductRevenue[id].InexactFloat64()
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Revenue > rows[j].Revenue
	})
	if len(rows) > topProductsLimit {
		rows = rows[:topProductsLimit]
	}
	report.TopProducts = rows
	return report
}

// DailyRevenueSeries buckets orders per day between start and end, both
// inclusive. Days without orders still appear with zero values so the
// series plots without gaps.
func DailyRevenueSeries(list []orders.Order, start, end time.Time) []DailyPoint {
	start = start.UTC()
	end = end.UTC()
	first := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	if last.Before(first) {
		return []DailyPoint{}
	}

	type bucket struct {
		orders  int
		revenue decimal.Decimal
	}
	buckets := map[time.Time]*bucket{}
	for _, order := range list {
		created := order.CreatedAt.UTC()
		day := time.Date(created.Year(), created.Month(), created.Day(), 0, 0, 0, 0, time.UTC)
		if day.Before(first) || day.After(last) {
			continue
		}
		b, ok := buckets[day]
		if !ok {
			b = &bucket{}
			buckets[day] = b
		}
		b.orders++
		b.revenue = b.revenue.Add(decimal.NewFromFloat(order.Total))
	}

	series := make([]DailyPoint, 0, int(last.Sub(first).Hours()/24)+1)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		point := DailyPoint{Date: day}
		if b, ok := buckets[day]; ok {
			point.Orders = b.orders
			point.Revenue = b.revenue.InexactFloat64()
		}
		series = append(series, point)
	}
	return series
}
