package tile

import (
	"errors"
	"testing"
)

func keyEquals(t *testing.T, exp, act Key) {
	if exp != act {
		t.Fatalf("Expected key %#v but was %#v.", exp, act)
	}
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("12", "637", "936.png")
	if err != nil {
		t.Fatalf("Unable to parse key: %s", err.Error())
	}
	keyEquals(t, Key{Z: 12, X: 637, Y: 936, Scale: 1, Format: "png"}, k)

	k, err = ParseKey("3", "2", "5@2x.jpg")
	if err != nil {
		t.Fatalf("Unable to parse retina key: %s", err.Error())
	}
	keyEquals(t, Key{Z: 3, X: 2, Y: 5, Scale: 2, Format: "jpg"}, k)

	k, err = ParseKey("", "", "0.png")
	if err != nil {
		t.Fatalf("Unable to parse key with missing z and x: %s", err.Error())
	}
	keyEquals(t, Key{Z: 0, X: 0, Y: 0, Scale: 1, Format: "png"}, k)

	k, err = ParseKey("1", "1", "1@1x.png")
	if err != nil {
		t.Fatalf("Unable to parse explicit @1x key: %s", err.Error())
	}
	if k.Scale != 1 {
		t.Fatalf("Expected scale 1, got %d", k.Scale)
	}
}

func TestParseKeyInvalidScale(t *testing.T) {
	for _, y := range []string{"0@3x.png", "0@0x.png", "0@2.png", "0@abcx.png"} {
		_, err := ParseKey("0", "0", y)
		if err == nil {
			t.Fatalf("Expected scale error for %#v", y)
		}
		var pe *ParseError
		if !errors.As(err, &pe) || pe.ScaleError == nil {
			t.Fatalf("Expected ScaleError for %#v, got %#v", y, err)
		}
	}
}

func TestParseKeyInvalidCoord(t *testing.T) {
	_, err := ParseKey("a", "0", "0.png")
	var pe *ParseError
	if !errors.As(err, &pe) || pe.CoordError == nil || pe.CoordError.BadZ != "a" {
		t.Fatalf("Expected bad z error, got %#v", err)
	}

	_, err = ParseKey("1", "-1", "0.png")
	if !errors.As(err, &pe) || pe.CoordError == nil || pe.CoordError.BadX != "-1" {
		t.Fatalf("Expected bad x error, got %#v", err)
	}
}

func TestFileName(t *testing.T) {
	k := Key{Z: 4, X: 3, Y: 2, Scale: 1, Format: "png"}
	if k.FileName() != "4/3/2.png" {
		t.Fatalf("Unexpected file name %#v", k.FileName())
	}
	k.Scale = 2
	if k.FileName() != "4/3/2@2x.png" {
		t.Fatalf("Unexpected retina file name %#v", k.FileName())
	}
}

func TestNormalizeFormat(t *testing.T) {
	cases := map[string]string{
		"png":   "png",
		"png8":  "png",
		"png32": "png",
		"jpg":   "jpg",
		"webp":  "webp",
	}
	for in, exp := range cases {
		if act := NormalizeFormat(in); act != exp {
			t.Fatalf("Expected %#v to normalize to %#v, got %#v", in, exp, act)
		}
	}
}

func TestGridRangeWorld(t *testing.T) {
	r := GridRange(WorldBounds, 0)
	if r != (Range{0, 0, 0, 0}) {
		t.Fatalf("Expected single tile at z0, got %#v", r)
	}
	if r.Contains(1, 0) {
		t.Fatalf("Did not expect 1/0 to be within z0 world range")
	}

	r = GridRange(WorldBounds, 3)
	if r != (Range{0, 0, 7, 7}) {
		t.Fatalf("Expected full grid at z3, got %#v", r)
	}
}

func TestGridRangeBounded(t *testing.T) {
	// western hemisphere, northern half
	r := GridRange([4]float64{-180, 0, 0, 85.0511}, 1)
	if r != (Range{0, 0, 0, 0}) {
		t.Fatalf("Expected only the north west tile at z1, got %#v", r)
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	for _, i := range []int{1, 2, 4, 256} {
		if !IsPowerOfTwo(i) {
			t.Fatalf("Expected %d to be a power of two", i)
		}
	}
	for _, i := range []int{0, 3, 6, -2} {
		if IsPowerOfTwo(i) {
			t.Fatalf("Did not expect %d to be a power of two", i)
		}
	}
}
