package writer

import (
	"strconv"
	"strings"
)

// MaxAge returns the value of the max-age directive in a Cache-Control
// header value, and whether a well formed one was present.
func MaxAge(cacheControl string) (int64, bool) {
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(directive), "=")
		if !found || !strings.EqualFold(strings.TrimSpace(name), "max-age") {
			continue
		}

		v, err := strconv.ParseInt(strings.Trim(strings.TrimSpace(value), `"`), 10, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}
