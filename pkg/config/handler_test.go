package config

import (
	"testing"
)

const testConfig = `{
  "Aws": {"Region": "us-east-1"},
  "Storage": {
    "s3": {"Type": "s3", "Bucket": "tiles", "Acl": "public-read", "StorageClass": "REDUCED_REDUNDANCY"},
    "local": {"Type": "file", "BaseDir": "/tmp/tiles"}
  },
  "Queue": {"Type": "sqs", "Url": "https://sqs.us-east-1.amazonaws.com/1/invalidations"},
  "Cache": {"Type": "memcache", "Addr": "localhost:11211", "Ttl": 3600},
  "Hosts": ["a.tiles.example.com", "b.tiles.example.com"],
  "Headers": {"X-Tile": "{{.z}}/{{.x}}/{{.y}}"},
  "Pattern": {
    "/terrain/{z:[0-9]+}/{x:[0-9]+}/{y}": {
      "Source": {"Uri": "http://render.internal/terrain/{z}/{x}/{y}{scale}.png", "Query": {"format": "png8"}},
      "Storage": "s3",
      "Prefix": "terrain"
    },
    "/dev/{z:[0-9]+}/{x:[0-9]+}/{y}": {
      "Source": {"Uri": "mbtiles:///data/dev.mbtiles"},
      "Storage": "local",
      "Bucket": "dev"
    },
    "/terrain.json": {
      "Source": {"Uri": "http://render.internal/terrain/{z}/{x}/{y}{scale}.png"},
      "Type": "tilejson",
      "TileUrl": ["https://a.tiles.example.com/terrain/{z}/{x}/{y}.png"]
    }
  }
}`

func TestHandlerConfigSet(t *testing.T) {
	hc := &HandlerConfig{}
	if err := hc.Set(testConfig); err != nil {
		t.Fatalf("Unable to parse config: %s", err)
	}
	if err := hc.Validate(); err != nil {
		t.Fatalf("Expected valid config, got %s", err)
	}

	if region := hc.AwsRegion(); region == nil || *region != "us-east-1" {
		t.Fatalf("Unexpected region %#v", region)
	}
	if hc.Queue.Type != "sqs" || hc.Cache.Ttl != 3600 || len(hc.Hosts) != 2 {
		t.Fatalf("Unexpected config %#v", hc)
	}

	terrain := hc.Pattern["/terrain/{z:[0-9]+}/{x:[0-9]+}/{y}"]
	if terrain.RouteType() != RouteType_Tile || hc.BucketFor(terrain) != "tiles" {
		t.Fatalf("Unexpected terrain route %#v", terrain)
	}
	if terrain.Source.Values().Get("format") != "png8" {
		t.Fatalf("Expected source query, got %#v", terrain.Source)
	}

	dev := hc.Pattern["/dev/{z:[0-9]+}/{x:[0-9]+}/{y}"]
	if hc.BucketFor(dev) != "dev" {
		t.Fatalf("Expected bucket override, got %#v", hc.BucketFor(dev))
	}

	if hc.Pattern["/terrain.json"].RouteType() != RouteType_TileJson {
		t.Fatalf("Expected tilejson route")
	}
}

func TestHandlerConfigInvalid(t *testing.T) {
	tests := []string{
		`not json`,
		`{}`,
		`{"Pattern": {"/a": {"Source": {"Uri": "http://x/{z}"}, "Storage": "missing"}}}`,
		`{"Storage": {"s": {"Type": "ftp"}}, "Pattern": {"/a": {"Source": {"Uri": "http://x/{z}"}, "Storage": "s"}}}`,
		`{"Storage": {"s": {"Type": "s3"}}, "Pattern": {"/a": {"Source": {"Uri": "http://x/{z}"}, "Storage": "s"}}}`,
		`{"Pattern": {"/a.json": {"Source": {"Uri": "http://x/{z}"}, "Type": "tilejson"}}}`,
		`{"Storage": {"s": {"Type": "file", "BaseDir": "/tmp"}}, "Pattern": {"/a": {"Storage": "s"}}}`,
	}

	for _, line := range tests {
		hc := &HandlerConfig{}
		err := hc.Set(line)
		if err == nil {
			err = hc.Validate()
		}
		if err == nil {
			t.Fatalf("Expected error for config %s", line)
		}
	}
}
