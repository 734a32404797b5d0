package board

// ColumnValue is one cell of a board item as returned by the API.
// Value holds the column's raw JSON payload and is empty for blank cells.
type ColumnValue struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Value string `json:"value"`
	Type  string `json:"type"`
}

// Item is a raw board record. Items are never modified after they are fetched.
type Item struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	ColumnValues []ColumnValue `json:"column_values"`
}

type Column struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type itemsPage struct {
	Cursor *string `json:"cursor"`
	Items  []Item  `json:"items"`
}
