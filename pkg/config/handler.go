package config

import (
	"encoding/json"
	"fmt"
	"net/url"
)

type HandlerConfig struct {
	Aws     *awsConfig
	Storage map[string]StorageDefinition
	Queue   QueueConfig
	Cache   CacheConfig
	Pattern map[string]RouteConfig
	Mime    map[string]string

	// Hosts are the public front ends that redirects point at.
	Hosts  []string
	Scheme string

	// Headers are metadata templates rendered for every written object.
	Headers    map[string]string
	KeyPattern string
}

func (h *HandlerConfig) String() string {
	return fmt.Sprintf("%#v", *h)
}

func (h *HandlerConfig) Set(line string) error {
	err := json.Unmarshal([]byte(line), h)
	if err != nil {
		return fmt.Errorf("Unable to parse value as a JSON object: %s", err.Error())
	}
	return nil
}

// the handler config is the container for the json configuration
// StorageDefinition names a place where tiles are written
// QueueConfig is the invalidation queue shared by all routes
// CacheConfig is the optional cache of already written tiles
// RouteConfig ties a request pattern to a source and a storage

// "s3" and "file" are the possible storage definition types
// "sqs", "redis" and "memory" are the possible queue types
// "", "memcache", "redis" and "dynamodb" are the possible cache types
// "tile" and "tilejson" are the possible route types

// generic aws configuration applied to whole session
type awsConfig struct {
	Region *string
}

func (h *HandlerConfig) AwsRegion() *string {
	if h.Aws == nil {
		return nil
	}
	return h.Aws.Region
}

type StorageDefinition struct {
	Type string

	// S3 key or file path to check for during healthcheck
	Healthcheck string

	// s3 specific fields
	Bucket       string
	Acl          string
	StorageClass string

	// file specific fields
	BaseDir string
}

type QueueConfig struct {
	Type string

	// sqs queue url
	Url string

	// redis specific fields
	Addr   string
	Prefix string
}

type CacheConfig struct {
	Type string

	// memcache and redis address
	Addr string

	// dynamodb table name
	Table string

	// record lifetime in seconds, zero keeps records forever
	Ttl int
}

type SourceConfig struct {
	Uri   string
	Query map[string]string
}

func (s SourceConfig) Values() url.Values {
	values := make(url.Values, len(s.Query))
	for k, v := range s.Query {
		values.Set(k, v)
	}
	return values
}

type RouteConfig struct {
	Source SourceConfig

	// matches storage definition name
	Storage string

	// overrides the bucket of the storage definition
	Bucket *string
	Prefix string

	Type *string

	// tile url templates advertised by tilejson routes
	TileUrl []string
}

const (
	RouteType_Tile     = "tile"
	RouteType_TileJson = "tilejson"
)

func (r RouteConfig) RouteType() string {
	if r.Type == nil || *r.Type == "" {
		return RouteType_Tile
	}
	return *r.Type
}

// Validate checks the cross references between routes and storages. It does
// not try to reach any of them.
func (h *HandlerConfig) Validate() error {
	if len(h.Pattern) == 0 {
		return fmt.Errorf("No patterns configured")
	}

	for name, sd := range h.Storage {
		switch sd.Type {
		case "s3":
		case "file":
			if sd.BaseDir == "" {
				return fmt.Errorf("Storage %s: file storage needs a BaseDir", name)
			}
		default:
			return fmt.Errorf("Storage %s: unknown type %q", name, sd.Type)
		}
	}

	for pattern, rc := range h.Pattern {
		if rc.Source.Uri == "" {
			return fmt.Errorf("Pattern %s: missing source uri", pattern)
		}
		switch rc.RouteType() {
		case RouteType_Tile:
			sd, ok := h.Storage[rc.Storage]
			if !ok {
				return fmt.Errorf("Pattern %s: unknown storage %q", pattern, rc.Storage)
			}
			if sd.Type == "s3" && sd.Bucket == "" && (rc.Bucket == nil || *rc.Bucket == "") {
				return fmt.Errorf("Pattern %s: s3 storage needs a bucket", pattern)
			}
		case RouteType_TileJson:
			if len(rc.TileUrl) == 0 {
				return fmt.Errorf("Pattern %s: tilejson route needs a TileUrl", pattern)
			}
		default:
			return fmt.Errorf("Pattern %s: unknown type %q", pattern, rc.RouteType())
		}
	}

	return nil
}

// BucketFor is the bucket tiles of rc are written to. File storages without
// a bucket use the storage name as their subdirectory.
func (h *HandlerConfig) BucketFor(rc RouteConfig) string {
	if rc.Bucket != nil && *rc.Bucket != "" {
		return *rc.Bucket
	}
	if bucket := h.Storage[rc.Storage].Bucket; bucket != "" {
		return bucket
	}
	return rc.Storage
}
