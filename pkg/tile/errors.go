package tile

import "fmt"

type ParseError struct {
	CoordError *CoordParseError
	ScaleError *ScaleParseError
}

func (pe *ParseError) Error() string {
	if pe.ScaleError != nil {
		return pe.ScaleError.Error()
	} else if pe.CoordError != nil {
		return pe.CoordError.Error()
	} else {
		panic("ParseError: No error")
	}
}

type CoordParseError struct {
	// relevant values are set when parse fails
	BadZ string
	BadX string
	BadY string
}

func (cpe *CoordParseError) IsError() bool {
	return cpe.BadZ != "" || cpe.BadX != "" || cpe.BadY != ""
}

func (cpe *CoordParseError) Error() string {
	if cpe.BadZ != "" {
		return fmt.Sprintf("Invalid z: %s", cpe.BadZ)
	}
	if cpe.BadX != "" {
		return fmt.Sprintf("Invalid x: %s", cpe.BadX)
	}
	if cpe.BadY != "" {
		return fmt.Sprintf("Invalid y: %s", cpe.BadY)
	}
	panic("No coord parse error")
}

// ScaleParseError is returned for scale suffixes outside of @1x and @2x.
type ScaleParseError struct {
	BadScale string
}

func (spe *ScaleParseError) Error() string {
	return fmt.Sprintf("Invalid scale: %s", spe.BadScale)
}
