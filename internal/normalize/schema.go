package normalize

import (
	"fmt"

	"github.com/intelliquery/backend/internal/board"
)

// DealColumnIDs maps deal fields to board column ids.
type DealColumnIDs struct {
	Owner              string
	Client             string
	Status             string
	CloseDate          string
	Probability        string
	Value              string
	TentativeCloseDate string
	Stage              string
	Product            string
	Sector             string
	CreatedDate        string
}

// WorkOrderColumnIDs maps work order fields to board column ids.
type WorkOrderColumnIDs struct {
	DealCode        string
	CustomerCode    string
	NatureOfWork    string
	ExecutionStatus string
	DeliveryDate    string
	PODate          string
	DocumentType    string
	Sector          string
	TypeOfWork      string
	AmountExclGST   string
	AmountInclGST   string
	BilledExclGST   string
	CollectedAmount string
	ProjectStage    string
}

// Schema is the agreed column layout of the deal and work order boards.
// A change to either board's columns means a new version here.
type Schema struct {
	Version    string
	Deals      DealColumnIDs
	WorkOrders WorkOrderColumnIDs
}

var SchemaV1 = Schema{
	Version: "v1",
	Deals: DealColumnIDs{
		Owner:              "person",
		Client:             "text",
		Status:             "status",
		CloseDate:          "date",
		Probability:        "dropdown",
		Value:              "numbers",
		TentativeCloseDate: "date4",
		Stage:              "status5",
		Product:            "text7",
		Sector:             "text8",
		CreatedDate:        "date9",
	},
	WorkOrders: WorkOrderColumnIDs{
		DealCode:        "text",
		CustomerCode:    "text0",
		NatureOfWork:    "dropdown",
		ExecutionStatus: "status",
		DeliveryDate:    "date",
		PODate:          "date4",
		DocumentType:    "dropdown8",
		Sector:          "text6",
		TypeOfWork:      "text7",
		AmountExclGST:   "numbers",
		AmountInclGST:   "numbers9",
		BilledExclGST:   "numbers0",
		CollectedAmount: "numbers4",
		ProjectStage:    "status8",
	},
}

var schemas = map[string]Schema{
	SchemaV1.Version: SchemaV1,
}

func LookupSchema(version string) (Schema, error) {
	if version == "" {
		return SchemaV1, nil
	}
	s, ok := schemas[version]
	if !ok {
		return Schema{}, fmt.Errorf("unknown board schema version %q", version)
	}
	return s, nil
}

// DealColumns lists every deal column id the schema reads.
func (s Schema) DealColumns() []string {
	d := s.Deals
	return []string{
		d.Owner, d.Client, d.Status, d.CloseDate, d.Probability, d.Value,
		d.TentativeCloseDate, d.Stage, d.Product, d.Sector, d.CreatedDate,
	}
}

// WorkOrderColumns lists every work order column id the schema reads.
func (s Schema) WorkOrderColumns() []string {
	w := s.WorkOrders
	return []string{
		w.DealCode, w.CustomerCode, w.NatureOfWork, w.ExecutionStatus, w.DeliveryDate,
		w.PODate, w.DocumentType, w.Sector, w.TypeOfWork, w.AmountExclGST,
		w.AmountInclGST, w.BilledExclGST, w.CollectedAmount, w.ProjectStage,
	}
}

// MissingColumns returns the expected ids a board does not expose, in the
// order given. A non-empty result means the board layout drifted from the
// schema version in use.
func MissingColumns(expected []string, columns []board.Column) []string {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c.ID] = true
	}

	missing := []string{}
	for _, id := range expected {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
