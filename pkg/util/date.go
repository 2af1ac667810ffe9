package util

import (
	"strings"
	"time"
)

// dateTplReplacer rewrites template placeholders into a Go layout.
// Longer placeholders are listed first so YYYY never matches as two YY.
var dateTplReplacer = strings.NewReplacer(
	"YYYY", "2006",
	"YY", "06",
	"MM", "01",
	"DD", "02",
	"hh", "15",
	"mm", "04",
	"ss", "05",
)

// FormatDateTpl formats a millisecond Unix timestamp using a template
// of YYYY/YY/MM/DD/hh/mm/ss placeholders, for example
// "YYYY-MM-DD hh:mm:ss". A zero timestamp yields an empty string.
func FormatDateTpl(ts int64, tpl string) string {
	if ts == 0 {
		return ""
	}
	return time.UnixMilli(ts).Format(dateTplReplacer.Replace(tpl))
}
