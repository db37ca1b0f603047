package source

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func createMBTiles(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "test.mbtiles")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("Unable to create mbtiles: %s", err)
	}
	defer db.Close()

	statements := []string{
		"CREATE TABLE metadata (name TEXT, value TEXT)",
		"CREATE TABLE tiles (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB)",
		"INSERT INTO metadata VALUES ('format', 'jpg'), ('minzoom', '1'), ('maxzoom', '3'), ('bounds', '-180,-85.0511,180,85.0511')",
		// zoom 2, column 1, xyz row 0 is tms row 3
		"INSERT INTO tiles VALUES (2, 1, 3, X'CAFE')",
	}
	for _, s := range statements {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("Unable to create mbtiles: %s", err)
		}
	}

	return path
}

func TestMBTilesSource(t *testing.T) {
	path := createMBTiles(t)
	ctx := context.Background()

	h, err := NewMBTilesLoader().Load(ctx, Descriptor{URI: "mbtiles://" + path})
	if err != nil {
		t.Fatalf("Unable to open mbtiles: %s", err)
	}
	defer h.Close()

	info, err := h.Info(ctx)
	if err != nil {
		t.Fatalf("Unexpected info error: %s", err)
	}
	if info.Format != "jpg" || *info.MinZoom != 1 || *info.MaxZoom != 3 || info.Bounds == nil {
		t.Fatalf("Unexpected info %#v", info)
	}

	data, header, err := h.Tile(ctx, 2, 1, 0)
	if err != nil {
		t.Fatalf("Unexpected tile error: %s", err)
	}
	if len(data) != 2 || data[0] != 0xCA || data[1] != 0xFE {
		t.Fatalf("Unexpected tile data %#v", data)
	}
	if header.Get("Content-Type") != "image/jpeg" {
		t.Fatalf("Unexpected content type %#v", header.Get("Content-Type"))
	}

	if _, _, err := h.Tile(ctx, 2, 1, 3); err == nil {
		t.Fatalf("Expected error for missing tile")
	}
}

func TestMBTilesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.mbtiles")
	if _, err := OpenMBTiles(context.Background(), path); err == nil {
		t.Fatalf("Expected error opening missing file")
	}
}
