package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/cast"
)

// Spreadsheet serial day 0. Using the 30th rather than the 31st absorbs the
// phantom 1900-02-29 that spreadsheet programs count.
var serialEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

const (
	ProbabilityHigh    = "High"
	ProbabilityMedium  = "Medium"
	ProbabilityLow     = "Low"
	ProbabilityUnknown = "Unknown"
)

var probabilityLabels = map[string]string{
	"high":   ProbabilityHigh,
	"medium": ProbabilityMedium,
	"med":    ProbabilityMedium,
	"low":    ProbabilityLow,
	"":       ProbabilityUnknown,
}

// ParseDate accepts spreadsheet serial numbers, date strings in the common
// ISO-like layouts, and time values. Anything else yields nil.
func ParseDate(v interface{}) *time.Time {
	switch d := v.(type) {
	case nil:
		return nil
	case time.Time:
		if d.IsZero() {
			return nil
		}
		return &d
	case *time.Time:
		if d == nil || d.IsZero() {
			return nil
		}
		t := *d
		return &t
	case string:
		s := strings.TrimSpace(d)
		if s == "" {
			return nil
		}
		if serial, err := strconv.ParseFloat(s, 64); err == nil {
			return serialToDate(serial)
		}
		t, err := cast.StringToDateInDefaultLocation(s, time.UTC)
		if err != nil {
			return nil
		}
		return &t
	case bool:
		return nil
	default:
		serial, err := cast.ToFloat64E(d)
		if err != nil {
			return nil
		}
		return serialToDate(serial)
	}
}

func serialToDate(serial float64) *time.Time {
	if math.IsNaN(serial) || math.IsInf(serial, 0) || math.Abs(serial) > 3e6 {
		return nil
	}
	t := serialEpoch.AddDate(0, 0, int(serial))
	return &t
}

// ParseNumber converts v to a float, returning nil for blanks and anything
// that is not a finite number. Thousands separators are ignored.
func ParseNumber(v interface{}) *float64 {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
		if s == "" {
			return nil
		}
		v = s
	}
	if _, ok := v.(bool); ok {
		return nil
	}

	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// CleanText trims v and returns nil for blanks. Markup is left alone, so
// codes such as "D-101 <Phase 2>" survive intact.
func CleanText(v interface{}) *string {
	if v == nil {
		return nil
	}

	s, err := cast.ToStringE(v)
	if err != nil {
		return nil
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// CleanRichText is CleanText for long-text cells, which arrive as HTML and
// are reduced to their text content.
func CleanRichText(v interface{}) *string {
	s := CleanText(v)
	if s == nil || !strings.Contains(*s, "<") || !strings.Contains(*s, ">") {
		return s
	}
	return CleanText(stripMarkup(*s))
}

func stripMarkup(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// StandardizeProbability maps closure probability labels onto High, Medium,
// Low or Unknown. Labels outside that vocabulary are kept verbatim so reports
// show what the board actually holds.
func StandardizeProbability(v interface{}) string {
	if v == nil {
		return ProbabilityUnknown
	}

	raw := cast.ToString(v)
	if label, ok := probabilityLabels[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return label
	}
	return raw
}
