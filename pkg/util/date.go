package util

import (
	"strings"
	"time"
)

// dateTokens is ordered so that longer placeholders are replaced first.
var dateTokens = strings.NewReplacer(
	"YYYY", "2006",
	"YY", "06",
	"MM", "01",
	"DD", "02",
	"hh", "15",
	"mm", "04",
	"ss", "05",
)

// DefaultDateTpl is used when no template is given.
const DefaultDateTpl = "YYYY-MM-DD hh:mm:ss"

// FormatDateTpl formats a timestamp in milliseconds since the Unix epoch
// using a template with placeholders, in UTC.
//
// Supported placeholders:
// - YYYY: 4-digit year
// - YY: 2-digit year
// - MM: 2-digit month (01-12)
// - DD: 2-digit day (01-31)
// - hh: 2-digit hour (00-23)
// - mm: 2-digit minute (00-59)
// - ss: 2-digit second (00-59)
//
// Returns an empty string if ts == 0.
//
// Example:
//
//	ts := int64(1699603200000)
//	FormatDateTpl(ts, "YYYY.MM.DD")       // "2023.11.10"
//	FormatDateTpl(ts, "DD/MM/YYYY")       // "10/11/2023"
//	FormatDateTpl(ts, "YYYY-MM-DD hh:mm") // "2023-11-10 08:00"
func FormatDateTpl(ts int64, tpl string) string {
	if ts == 0 {
		return ""
	}
	return time.UnixMilli(ts).UTC().Format(dateTokens.Replace(tpl))
}
