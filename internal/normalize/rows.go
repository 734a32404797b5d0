package normalize

import "time"

// Deal is one normalized row of the deal funnel board.
type Deal struct {
	ItemID             *string    `json:"item_id"`
	DealCode           *string    `json:"deal_code"`
	OwnerCode          *string    `json:"owner_code"`
	ClientCode         *string    `json:"client_code"`
	DealStatus         *string    `json:"deal_status"`
	CloseDate          *time.Time `json:"close_date"`
	ClosureProbability string     `json:"closure_probability"`
	DealValue          *float64   `json:"deal_value"`
	TentativeCloseDate *time.Time `json:"tentative_close_date"`
	DealStage          *string    `json:"deal_stage"`
	ProductDeal        *string    `json:"product_deal"`
	Sector             *string    `json:"sector"`
	CreatedDate        *time.Time `json:"created_date"`
}

var DealColumns = []string{
	"item_id", "deal_code", "owner_code", "client_code", "deal_status", "close_date",
	"closure_probability", "deal_value", "tentative_close_date", "deal_stage",
	"product_deal", "sector", "created_date",
}

func (d Deal) nullMask() []bool {
	return []bool{
		d.ItemID == nil, d.DealCode == nil, d.OwnerCode == nil, d.ClientCode == nil,
		d.DealStatus == nil, d.CloseDate == nil, d.ClosureProbability == "", d.DealValue == nil,
		d.TentativeCloseDate == nil, d.DealStage == nil, d.ProductDeal == nil, d.Sector == nil,
		d.CreatedDate == nil,
	}
}

// WorkOrder is one normalized row of the work order tracker board.
type WorkOrder struct {
	ItemID             *string    `json:"item_id"`
	DealCode           *string    `json:"deal_code"`
	CustomerCode       *string    `json:"customer_code"`
	SerialNumber       *string    `json:"serial_number"`
	NatureOfWork       *string    `json:"nature_of_work"`
	ExecutionStatus    *string    `json:"execution_status"`
	DataDeliveryDate   *time.Time `json:"data_delivery_date"`
	PODate             *time.Time `json:"po_date"`
	DocumentType       *string    `json:"document_type"`
	Sector             *string    `json:"sector"`
	TypeOfWork         *string    `json:"type_of_work"`
	AmountExclGST      *float64   `json:"amount_excl_gst"`
	AmountInclGST      *float64   `json:"amount_incl_gst"`
	BilledValueExclGST *float64   `json:"billed_value_excl_gst"`
	CollectedAmount    *float64   `json:"collected_amount"`
	ProjectStage       *string    `json:"project_stage"`
}

var WorkOrderColumns = []string{
	"item_id", "deal_code", "customer_code", "serial_number", "nature_of_work",
	"execution_status", "data_delivery_date", "po_date", "document_type", "sector",
	"type_of_work", "amount_excl_gst", "amount_incl_gst", "billed_value_excl_gst",
	"collected_amount", "project_stage",
}

func (w WorkOrder) nullMask() []bool {
	return []bool{
		w.ItemID == nil, w.DealCode == nil, w.CustomerCode == nil, w.SerialNumber == nil,
		w.NatureOfWork == nil, w.ExecutionStatus == nil, w.DataDeliveryDate == nil,
		w.PODate == nil, w.DocumentType == nil, w.Sector == nil, w.TypeOfWork == nil,
		w.AmountExclGST == nil, w.AmountInclGST == nil, w.BilledValueExclGST == nil,
		w.CollectedAmount == nil, w.ProjectStage == nil,
	}
}
