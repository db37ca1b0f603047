package source

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/openterrain/tilegate/pkg/tile"
)

// Descriptor identifies an upstream tile source. Descriptors loaded from
// configuration are shared between requests and must be treated as
// immutable: use Clone or WithScale to derive per-request variants.
type Descriptor struct {
	URI   string
	Query url.Values
}

func (d Descriptor) Clone() Descriptor {
	query := make(url.Values, len(d.Query))
	for k, vs := range d.Query {
		query[k] = append([]string(nil), vs...)
	}
	return Descriptor{URI: d.URI, Query: query}
}

// WithScale returns a copy of d requesting tiles at the given scale.
func (d Descriptor) WithScale(scale int) Descriptor {
	c := d.Clone()
	c.Query.Set("scale", strconv.Itoa(scale))
	return c
}

// Scheme is the lower cased part of the URI before the first colon.
func (d Descriptor) Scheme() string {
	i := strings.Index(d.URI, ":")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(d.URI[:i])
}

// String renders the descriptor canonically, with sorted query parameters.
func (d Descriptor) String() string {
	if len(d.Query) == 0 {
		return d.URI
	}
	return d.URI + "?" + d.Query.Encode()
}

// Info is the metadata a source reports about itself. Any field may be
// missing, see WithDefaults.
type Info struct {
	Format  string      `json:"format,omitempty"`
	MinZoom *int        `json:"minzoom,omitempty"`
	MaxZoom *int        `json:"maxzoom,omitempty"`
	Bounds  *[4]float64 `json:"bounds,omitempty"`
}

const DefaultFormat = "png"

// WithDefaults fills in the format, minimum zoom and bounds. A missing
// maximum zoom stays nil and means the source has no upper zoom limit.
func (i Info) WithDefaults() Info {
	if i.Format == "" {
		i.Format = DefaultFormat
	}
	if i.MinZoom == nil {
		minZoom := 0
		i.MinZoom = &minZoom
	}
	if i.Bounds == nil {
		bounds := tile.WorldBounds
		i.Bounds = &bounds
	}
	return i
}

// Loader acquires handles for descriptors.
type Loader interface {
	Load(ctx context.Context, d Descriptor) (Handle, error)
}

// Handle is a live connection to an upstream source. Close releases it and
// any subsequent Load of the same descriptor must produce a fresh handle.
type Handle interface {
	Info(ctx context.Context) (Info, error)
	Tile(ctx context.Context, z, x, y int) ([]byte, http.Header, error)
	Close() error
}

type LoaderFunc func(ctx context.Context, d Descriptor) (Handle, error)

func (f LoaderFunc) Load(ctx context.Context, d Descriptor) (Handle, error) {
	return f(ctx, d)
}
