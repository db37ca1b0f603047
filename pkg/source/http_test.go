package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/openterrain/tilegate/pkg/buffer"
)

func TestHTTPSourceTile(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "max-age=0")
		w.Header().Set("X-Ignored", "1")
		fmt.Fprint(w, "tiledata")
	}))
	defer server.Close()

	d := Descriptor{URI: server.URL + "/terrain/{z}/{x}/{y}{scale}.png"}
	s, err := NewHTTPSource(server.Client(), &buffer.OnDemandBufferManager{}, d.WithScale(2))
	if err != nil {
		t.Fatalf("Unable to create source: %s", err)
	}

	data, header, err := s.Tile(context.Background(), 3, 2, 1)
	if err != nil {
		t.Fatalf("Unexpected tile error: %s", err)
	}
	if string(data) != "tiledata" {
		t.Fatalf("Unexpected data %#v", string(data))
	}
	if gotPath != "/terrain/3/2/1@2x.png" {
		t.Fatalf("Unexpected upstream path %#v", gotPath)
	}
	if header.Get("Content-Type") != "image/png" || header.Get("Cache-Control") != "max-age=0" {
		t.Fatalf("Expected content type and cache control to pass through, got %#v", header)
	}
	if header.Get("X-Ignored") != "" {
		t.Fatalf("Did not expect other headers to pass through")
	}
}

func TestHTTPSourceNoScaleSuffixAtOne(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer server.Close()

	d := Descriptor{URI: server.URL + "/{z}/{x}/{y}{scale}.png"}
	s, err := NewHTTPSource(server.Client(), &buffer.OnDemandBufferManager{}, d.WithScale(1))
	if err != nil {
		t.Fatalf("Unable to create source: %s", err)
	}
	if _, _, err := s.Tile(context.Background(), 0, 0, 0); err != nil {
		t.Fatalf("Unexpected tile error: %s", err)
	}
	if gotPath != "/0/0/0.png" {
		t.Fatalf("Unexpected upstream path %#v", gotPath)
	}
}

func TestHTTPSourceErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s, err := NewHTTPSource(server.Client(), &buffer.OnDemandBufferManager{}, Descriptor{URI: server.URL + "/{z}/{x}/{y}.png"})
	if err != nil {
		t.Fatalf("Unable to create source: %s", err)
	}
	if _, _, err := s.Tile(context.Background(), 0, 0, 0); err == nil {
		t.Fatalf("Expected error for upstream 503")
	}
}

func TestHTTPSourceInfoFromQuery(t *testing.T) {
	d := Descriptor{
		URI: "http://example.com/{z}/{x}/{y}.png",
		Query: url.Values{
			"format":  {"png8"},
			"minzoom": {"2"},
			"maxzoom": {"14"},
			"bounds":  {"-10, -5, 10, 5"},
		},
	}
	s, err := NewHTTPSource(http.DefaultClient, &buffer.OnDemandBufferManager{}, d)
	if err != nil {
		t.Fatalf("Unable to create source: %s", err)
	}

	info, err := s.Info(context.Background())
	if err != nil {
		t.Fatalf("Unexpected info error: %s", err)
	}
	if info.Format != "png8" || *info.MinZoom != 2 || *info.MaxZoom != 14 {
		t.Fatalf("Unexpected info %#v", info)
	}
	if *info.Bounds != [4]float64{-10, -5, 10, 5} {
		t.Fatalf("Unexpected bounds %#v", *info.Bounds)
	}

	d.Query.Set("bounds", "1,2,3")
	if _, err := NewHTTPSource(http.DefaultClient, &buffer.OnDemandBufferManager{}, d); err == nil {
		t.Fatalf("Expected error for short bounds")
	}
}

func TestHTTPSourceBrokenTemplate(t *testing.T) {
	d := Descriptor{URI: "http://example.com/{z}/{x}/{row}.png"}
	if _, err := NewHTTPSource(http.DefaultClient, &buffer.OnDemandBufferManager{}, d); err == nil {
		t.Fatalf("Expected error for unknown template key")
	}
}

func TestRegistryDispatchesByScheme(t *testing.T) {
	h := &fakeHandle{}
	r := NewRegistry()
	r.Register("http", LoaderFunc(func(_ context.Context, _ Descriptor) (Handle, error) {
		return h, nil
	}))

	if !r.Has("http") || r.Has("mbtiles") {
		t.Fatalf("Unexpected registered schemes")
	}

	got, err := r.Load(context.Background(), Descriptor{URI: "HTTP://example.com/{z}/{x}/{y}.png"})
	if err != nil || got != h {
		t.Fatalf("Expected http loader to be used, got %#v %v", got, err)
	}

	if _, err := r.Load(context.Background(), Descriptor{URI: "ftp://example.com/"}); err == nil {
		t.Fatalf("Expected error for unregistered scheme")
	}
}
