package source

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/imkira/go-interpol"
	"golang.org/x/net/context/ctxhttp"

	"github.com/openterrain/tilegate/pkg/buffer"
)

// HTTPSource fetches pre-rendered tiles from a URL template such as
// "https://tiles.example.com/terrain/{z}/{x}/{y}{scale}.png". The info of
// the source comes from the descriptor query: format, minzoom, maxzoom and
// bounds ("west,south,east,north").
type HTTPSource struct {
	client        *http.Client
	bufferManager buffer.BufferManager
	template      string
	scale         string
	info          Info
}

// NewHTTPLoader returns a Loader for http and https descriptors.
func NewHTTPLoader(client *http.Client, bufferManager buffer.BufferManager) Loader {
	return LoaderFunc(func(ctx context.Context, d Descriptor) (Handle, error) {
		return NewHTTPSource(client, bufferManager, d)
	})
}

func NewHTTPSource(client *http.Client, bufferManager buffer.BufferManager, d Descriptor) (*HTTPSource, error) {
	info, err := infoFromQuery(d)
	if err != nil {
		return nil, err
	}

	s := &HTTPSource{
		client:        client,
		bufferManager: bufferManager,
		template:      d.URI,
		info:          info,
	}

	if scale := d.Query.Get("scale"); scale != "" && scale != "1" {
		s.scale = fmt.Sprintf("@%sx", scale)
	}

	// catch broken templates on load rather than on the first tile
	if _, err := s.tileURL(0, 0, 0); err != nil {
		return nil, fmt.Errorf("invalid tile url template %s: %w", d.URI, err)
	}

	return s, nil
}

func (s *HTTPSource) tileURL(z, x, y int) (string, error) {
	return interpol.WithMap(s.template, map[string]string{
		"z":     strconv.Itoa(z),
		"x":     strconv.Itoa(x),
		"y":     strconv.Itoa(y),
		"scale": s.scale,
	})
}

func (s *HTTPSource) Info(_ context.Context) (Info, error) {
	return s.info, nil
}

func (s *HTTPSource) Tile(ctx context.Context, z, x, y int) ([]byte, http.Header, error) {
	tileURL, err := s.tileURL(z, x, y)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequest(http.MethodGet, tileURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := ctxhttp.Do(ctx, s.client, req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch %s: %w", tileURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("upstream returned status %d for %s", resp.StatusCode, tileURL)
	}

	data, err := buffer.ReadAll(s.bufferManager, resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", tileURL, err)
	}

	header := make(http.Header)
	for _, name := range []string{"Content-Type", "Cache-Control"} {
		if v := resp.Header.Get(name); v != "" {
			header.Set(name, v)
		}
	}

	return data, header, nil
}

// Close drops idle connections, which may be the reason the handle failed.
func (s *HTTPSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func infoFromQuery(d Descriptor) (Info, error) {
	var info Info
	q := d.Query

	info.Format = q.Get("format")

	if v := q.Get("minzoom"); v != "" {
		minZoom, err := strconv.Atoi(v)
		if err != nil {
			return info, fmt.Errorf("invalid minzoom %q: %w", v, err)
		}
		info.MinZoom = &minZoom
	}

	if v := q.Get("maxzoom"); v != "" {
		maxZoom, err := strconv.Atoi(v)
		if err != nil {
			return info, fmt.Errorf("invalid maxzoom %q: %w", v, err)
		}
		info.MaxZoom = &maxZoom
	}

	if v := q.Get("bounds"); v != "" {
		bounds, err := parseBounds(v)
		if err != nil {
			return info, err
		}
		info.Bounds = &bounds
	}

	return info, nil
}

func parseBounds(s string) ([4]float64, error) {
	var bounds [4]float64
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return bounds, fmt.Errorf("invalid bounds %q: expected west,south,east,north", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return bounds, fmt.Errorf("invalid bounds %q: %w", s, err)
		}
		bounds[i] = v
	}
	return bounds, nil
}
