package quality

import (
	"encoding/json"
	"strings"
)

// NoIssuesMessage is reported in place of the grouped findings when a load
// produced none.
const NoIssuesMessage = "Data quality is excellent! No significant issues found."

// Report groups issue descriptions by severity.
type Report struct {
	BySeverity map[Severity][]string
	Total      int
}

func NewReport(issues []Issue) Report {
	r := Report{BySeverity: make(map[Severity][]string)}
	for _, issue := range issues {
		r.BySeverity[issue.Severity] = append(r.BySeverity[issue.Severity], issue.Describe())
		r.Total++
	}
	return r
}

func (r Report) Empty() bool {
	return r.Total == 0
}

// MarshalJSON encodes the severity map, or the bare NoIssuesMessage string
// when there is nothing to report.
func (r Report) MarshalJSON() ([]byte, error) {
	if r.Empty() {
		return json.Marshal(NoIssuesMessage)
	}
	return json.Marshal(r.BySeverity)
}

// Markdown renders the report for the chat view.
func (r Report) Markdown() string {
	if r.Empty() {
		return NoIssuesMessage
	}

	var b strings.Builder
	b.WriteString("**Data Quality Issues:**\n")
	for _, sev := range Severities {
		lines := r.BySeverity[sev]
		if len(lines) == 0 {
			continue
		}
		b.WriteString("\n_" + string(sev) + "_\n")
		for _, line := range lines {
			b.WriteString("- " + line + "\n")
		}
	}
	return b.String()
}
