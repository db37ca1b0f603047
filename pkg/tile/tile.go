package tile

import (
	"fmt"
	"strconv"
	"strings"
)

// Key identifies a single rendered tile. It is built once from the request
// path and never modified afterwards.
type Key struct {
	Z, X, Y int
	Scale   int
	Format  string
}

// ScaleSuffix is "" for standard tiles and "@Nx" for high resolution ones.
func (k Key) ScaleSuffix() string {
	if k.Scale <= 1 {
		return ""
	}
	return fmt.Sprintf("@%dx", k.Scale)
}

func (k Key) FileName() string {
	return fmt.Sprintf("%d/%d/%d%s.%s", k.Z, k.X, k.Y, k.ScaleSuffix(), k.Format)
}

func (k Key) String() string {
	return k.FileName()
}

const (
	MinScale = 1
	MaxScale = 2
)

// ParseKey decodes the z, x and compound "y[@Nx].format" path segments.
// Missing z and x default to 0. The scale is checked here so that a bad
// scale never reaches an upstream source.
func ParseKey(z, x, y string) (Key, error) {
	var k Key
	var coordError CoordParseError

	k.Z = parseCoord(z, &coordError.BadZ)
	k.X = parseCoord(x, &coordError.BadX)

	parts := strings.Split(y, ".")
	yPart := parts[0]
	if len(parts) > 1 {
		k.Format = parts[1]
	}

	k.Scale = 1
	if at := strings.Index(yPart, "@"); at >= 0 {
		scale, ok := parseScale(yPart[at+1:])
		if !ok {
			return k, &ParseError{ScaleError: &ScaleParseError{BadScale: yPart[at+1:]}}
		}
		k.Scale = scale
		yPart = yPart[:at]
	}
	k.Y = parseCoord(yPart, &coordError.BadY)

	if coordError.IsError() {
		return k, &ParseError{CoordError: &coordError}
	}

	return k, nil
}

func parseCoord(s string, bad *string) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		*bad = s
		return 0
	}
	return v
}

func parseScale(s string) (int, bool) {
	if !strings.HasSuffix(s, "x") {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSuffix(s, "x"))
	if err != nil || v < MinScale || v > MaxScale {
		return 0, false
	}
	return v, true
}

// NormalizeFormat strips variant suffixes from png formats, so that a source
// declaring "png8" or "png32" serves the "png" extension.
func NormalizeFormat(format string) string {
	if strings.HasPrefix(format, "png") {
		return "png"
	}
	return format
}

func IsPowerOfTwo(i int) bool {
	return i > 0 && (i&(i-1)) == 0
}
