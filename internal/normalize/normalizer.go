package normalize

import (
	"go.uber.org/zap"

	"github.com/intelliquery/backend/internal/board"
	"github.com/intelliquery/backend/internal/quality"
	"github.com/intelliquery/backend/pkg/logger"
)

const (
	DatasetDeals      = "Deals"
	DatasetWorkOrders = "Work Orders"
)

type Normalizer struct {
	schema Schema
}

func NewNormalizer(schema Schema) *Normalizer {
	return &Normalizer{schema: schema}
}

func (n *Normalizer) Schema() Schema {
	return n.schema
}

// NormalizeDeals converts raw deal items into rows, one row per item, and
// records missing-value and duplicate findings on tracker.
func (n *Normalizer) NormalizeDeals(items []board.Item, tracker *quality.Tracker) []Deal {
	logger.Info("Normalizing deal records", zap.Int("records", len(items)))

	ids := n.schema.Deals
	deals := make([]Deal, 0, len(items))
	for _, item := range items {
		cols := item.ColumnValues
		deals = append(deals, Deal{
			ItemID:             CleanText(item.ID),
			DealCode:           CleanText(item.Name),
			OwnerCode:          ExtractText(cols, ids.Owner),
			ClientCode:         ExtractText(cols, ids.Client),
			DealStatus:         ExtractText(cols, ids.Status),
			CloseDate:          ParseDate(ExtractColumn(cols, ids.CloseDate)),
			ClosureProbability: StandardizeProbability(ExtractColumn(cols, ids.Probability)),
			DealValue:          ParseNumber(ExtractColumn(cols, ids.Value)),
			TentativeCloseDate: ParseDate(ExtractColumn(cols, ids.TentativeCloseDate)),
			DealStage:          ExtractText(cols, ids.Stage),
			ProductDeal:        ExtractText(cols, ids.Product),
			Sector:             ExtractText(cols, ids.Sector),
			CreatedDate:        ParseDate(ExtractColumn(cols, ids.CreatedDate)),
		})
	}

	masks := make([][]bool, len(deals))
	keys := make([]*string, len(deals))
	for i, d := range deals {
		masks[i] = d.nullMask()
		keys[i] = d.DealCode
	}
	tracker.CheckMissing(DatasetDeals, len(deals), columnStats(DealColumns, masks))
	tracker.CheckDuplicates(DatasetDeals, "deal_code", keys)

	logger.Info("Normalized deals", zap.Int("rows", len(deals)))
	return deals
}

// NormalizeWorkOrders converts raw work order items into rows, one row per
// item. Several work orders may legitimately share a deal code, so the
// duplicate check runs on the serial number.
func (n *Normalizer) NormalizeWorkOrders(items []board.Item, tracker *quality.Tracker) []WorkOrder {
	logger.Info("Normalizing work order records", zap.Int("records", len(items)))

	ids := n.schema.WorkOrders
	orders := make([]WorkOrder, 0, len(items))
	for _, item := range items {
		cols := item.ColumnValues
		orders = append(orders, WorkOrder{
			ItemID:             CleanText(item.ID),
			DealCode:           ExtractText(cols, ids.DealCode),
			CustomerCode:       ExtractText(cols, ids.CustomerCode),
			SerialNumber:       CleanText(item.Name),
			NatureOfWork:       ExtractText(cols, ids.NatureOfWork),
			ExecutionStatus:    ExtractText(cols, ids.ExecutionStatus),
			DataDeliveryDate:   ParseDate(ExtractColumn(cols, ids.DeliveryDate)),
			PODate:             ParseDate(ExtractColumn(cols, ids.PODate)),
			DocumentType:       ExtractText(cols, ids.DocumentType),
			Sector:             ExtractText(cols, ids.Sector),
			TypeOfWork:         ExtractText(cols, ids.TypeOfWork),
			AmountExclGST:      ParseNumber(ExtractColumn(cols, ids.AmountExclGST)),
			AmountInclGST:      ParseNumber(ExtractColumn(cols, ids.AmountInclGST)),
			BilledValueExclGST: ParseNumber(ExtractColumn(cols, ids.BilledExclGST)),
			CollectedAmount:    ParseNumber(ExtractColumn(cols, ids.CollectedAmount)),
			ProjectStage:       ExtractText(cols, ids.ProjectStage),
		})
	}

	masks := make([][]bool, len(orders))
	keys := make([]*string, len(orders))
	for i, o := range orders {
		masks[i] = o.nullMask()
		keys[i] = o.SerialNumber
	}
	tracker.CheckMissing(DatasetWorkOrders, len(orders), columnStats(WorkOrderColumns, masks))
	tracker.CheckDuplicates(DatasetWorkOrders, "serial_number", keys)

	logger.Info("Normalized work orders", zap.Int("rows", len(orders)))
	return orders
}

func columnStats(columns []string, masks [][]bool) []quality.ColumnStats {
	stats := make([]quality.ColumnStats, len(columns))
	for i, name := range columns {
		stats[i].Name = name
	}
	for _, mask := range masks {
		for i, isNull := range mask {
			if isNull {
				stats[i].Missing++
			}
		}
	}
	return stats
}
