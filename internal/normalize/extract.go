package normalize

import (
	"encoding/json"
	"strings"

	"github.com/intelliquery/backend/internal/board"
)

// ExtractColumn returns the value of column id within cols, or nil when the
// column is absent or blank. Date columns yield the "date" field of their
// structured value when one is present; every other column yields its text.
func ExtractColumn(cols []board.ColumnValue, id string) interface{} {
	for _, col := range cols {
		if col.ID != id {
			continue
		}

		if strings.Contains(strings.ToLower(col.Type), "date") && col.Value != "" {
			var structured map[string]interface{}
			if err := json.Unmarshal([]byte(col.Value), &structured); err == nil {
				if date, ok := structured["date"]; ok && date != nil {
					return date
				}
			}
		}

		if col.Text == "" {
			return nil
		}
		return col.Text
	}
	return nil
}

// richTextKinds are column types whose display text carries HTML.
var richTextKinds = []string{"long_text", "long-text"}

// ExtractText returns column id as trimmed text. Long-text columns have
// their markup stripped; every other column is only trimmed.
func ExtractText(cols []board.ColumnValue, id string) *string {
	v := ExtractColumn(cols, id)
	if isRichText(columnKind(cols, id)) {
		return CleanRichText(v)
	}
	return CleanText(v)
}

func columnKind(cols []board.ColumnValue, id string) string {
	for _, col := range cols {
		if col.ID == id {
			return col.Type
		}
	}
	return ""
}

func isRichText(kind string) bool {
	kind = strings.ToLower(kind)
	for _, k := range richTextKinds {
		if kind == k {
			return true
		}
	}
	return false
}
