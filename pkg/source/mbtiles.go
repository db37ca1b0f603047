package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// MBTilesSource serves tiles out of an MBTiles (SQLite) file, addressed as
// "mbtiles:///path/to/file.mbtiles". Rows are stored in TMS order.
type MBTilesSource struct {
	db   *sql.DB
	path string
}

// NewMBTilesLoader returns a Loader for mbtiles descriptors.
func NewMBTilesLoader() Loader {
	return LoaderFunc(func(ctx context.Context, d Descriptor) (Handle, error) {
		return OpenMBTiles(ctx, mbtilesPath(d.URI))
	})
}

func mbtilesPath(uri string) string {
	path := strings.TrimPrefix(uri, "mbtiles:")
	return strings.TrimPrefix(path, "//")
}

func OpenMBTiles(ctx context.Context, path string) (*MBTilesSource, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open mbtiles %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open mbtiles %s: %w", path, err)
	}
	return &MBTilesSource{db: db, path: path}, nil
}

func (s *MBTilesSource) Info(ctx context.Context) (Info, error) {
	var info Info

	rows, err := s.db.QueryContext(ctx, "SELECT name, value FROM metadata")
	if err != nil {
		return info, fmt.Errorf("failed to read metadata of %s: %w", s.path, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return info, fmt.Errorf("failed to read metadata of %s: %w", s.path, err)
		}

		switch name {
		case "format":
			info.Format = value
		case "minzoom":
			if v, err := strconv.Atoi(value); err == nil {
				info.MinZoom = &v
			}
		case "maxzoom":
			if v, err := strconv.Atoi(value); err == nil {
				info.MaxZoom = &v
			}
		case "bounds":
			if b, err := parseBounds(value); err == nil {
				info.Bounds = &b
			}
		}
	}

	return info, rows.Err()
}

func (s *MBTilesSource) Tile(ctx context.Context, z, x, y int) ([]byte, http.Header, error) {
	row := (1 << uint(z)) - 1 - y

	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?",
		z, x, row,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("tile %d/%d/%d does not exist in %s", z, x, y, s.path)
	} else if err != nil {
		return nil, nil, fmt.Errorf("failed to read tile %d/%d/%d from %s: %w", z, x, y, s.path, err)
	}

	header := make(http.Header)
	if format, err := s.format(ctx); err == nil && format != "" {
		if contentType := formatContentType(format); contentType != "" {
			header.Set("Content-Type", contentType)
		}
	}

	return data, header, nil
}

func (s *MBTilesSource) format(ctx context.Context) (string, error) {
	var format string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE name = 'format'").Scan(&format)
	return format, err
}

func (s *MBTilesSource) Close() error {
	return s.db.Close()
}

func formatContentType(format string) string {
	switch format {
	case "pbf", "mvt":
		return "application/x-protobuf"
	case "jpg":
		return "image/jpeg"
	}
	return mime.TypeByExtension("." + format)
}
