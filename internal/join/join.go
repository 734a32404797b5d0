// Package join combines normalized deals with the work orders raised
// against them.
package join

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/intelliquery/backend/internal/normalize"
	"github.com/intelliquery/backend/internal/quality"
	"github.com/intelliquery/backend/pkg/logger"
)

const DatasetJoin = "Join"

// Combined is a deal together with its matching work order. Order is nil
// when no work order carries the deal's code. Both boards keep a sector
// column, so the deal side and order side sectors are held separately.
type Combined struct {
	normalize.Deal
	Order       *normalize.WorkOrder `json:"order,omitempty"`
	DealSector  *string              `json:"sector_deal"`
	OrderSector *string              `json:"sector_order"`
}

// DealsAndOrders left-joins deals to work orders on deal code and returns
// exactly one row per deal. When a deal code has several work orders a
// one_to_many issue is recorded and the orders are collapsed first: money
// columns are summed and every other field keeps the first order's value.
func DealsAndOrders(deals []normalize.Deal, orders []normalize.WorkOrder, tracker *quality.Tracker) []Combined {
	grouped, fanOut := aggregateOrders(orders)
	if len(fanOut.keys) > 0 {
		tracker.Add(quality.Issue{
			Dataset:  DatasetJoin,
			Kind:     quality.KindOneToMany,
			Column:   "deal_code",
			Count:    len(fanOut.keys),
			Severity: quality.SeverityMedium,
			Samples:  fanOut.samples(5),
		})
		logger.Warn("Work orders fan out over deals; aggregating before join",
			zap.Int("deal_codes", len(fanOut.keys)))
	}

	out := make([]Combined, len(deals))
	matched := 0
	for i, d := range deals {
		row := Combined{Deal: d, DealSector: d.Sector}
		if d.DealCode != nil {
			if o, ok := grouped[*d.DealCode]; ok {
				row.Order = o
				row.OrderSector = o.Sector
				matched++
			}
		}
		out[i] = row
	}

	logger.Info("Joined deals to work orders",
		zap.Int("deals", len(deals)),
		zap.Int("work_orders", len(orders)),
		zap.Int("matched", matched))
	return out
}

type fanOutKeys struct {
	keys []string
}

func (f fanOutKeys) samples(n int) []string {
	if len(f.keys) < n {
		n = len(f.keys)
	}
	return append([]string(nil), f.keys[:n]...)
}

// aggregateOrders groups orders by deal code. Orders without a deal code
// cannot match any deal and are skipped.
func aggregateOrders(orders []normalize.WorkOrder) (map[string]*normalize.WorkOrder, fanOutKeys) {
	counts := make(map[string]int)
	var order []string
	for _, o := range orders {
		if o.DealCode == nil {
			continue
		}
		if counts[*o.DealCode] == 0 {
			order = append(order, *o.DealCode)
		}
		counts[*o.DealCode]++
	}

	var fan fanOutKeys
	for _, code := range order {
		if counts[code] > 1 {
			fan.keys = append(fan.keys, code)
		}
	}

	sums := make(map[string]*moneySums, len(order))
	grouped := make(map[string]*normalize.WorkOrder, len(order))
	for _, o := range orders {
		if o.DealCode == nil {
			continue
		}
		code := *o.DealCode
		if _, ok := grouped[code]; !ok {
			first := o
			grouped[code] = &first
			sums[code] = &moneySums{}
		}
		sums[code].add(o)
	}

	for code, s := range sums {
		if counts[code] > 1 {
			s.apply(grouped[code])
		}
	}
	return grouped, fan
}

// moneySums totals the monetary columns. A column stays nil when every
// contributing order had it blank.
type moneySums struct {
	amountExcl, amountIncl, billed, collected *decimal.Decimal
}

func (m *moneySums) add(o normalize.WorkOrder) {
	m.amountExcl = addMoney(m.amountExcl, o.AmountExclGST)
	m.amountIncl = addMoney(m.amountIncl, o.AmountInclGST)
	m.billed = addMoney(m.billed, o.BilledValueExclGST)
	m.collected = addMoney(m.collected, o.CollectedAmount)
}

func (m *moneySums) apply(o *normalize.WorkOrder) {
	o.AmountExclGST = toFloat(m.amountExcl)
	o.AmountInclGST = toFloat(m.amountIncl)
	o.BilledValueExclGST = toFloat(m.billed)
	o.CollectedAmount = toFloat(m.collected)
}

func addMoney(total *decimal.Decimal, v *float64) *decimal.Decimal {
	if v == nil {
		return total
	}
	sum := decimal.NewFromFloat(*v)
	if total != nil {
		sum = total.Add(sum)
	}
	return &sum
}

func toFloat(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f, _ := d.Float64()
	return &f
}
