package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	golog "log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/bradfitz/gomemcache/memcache"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/namsral/flag"
	"github.com/oxtoacart/bpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/openterrain/tilegate/pkg/buffer"
	"github.com/openterrain/tilegate/pkg/cache"
	"github.com/openterrain/tilegate/pkg/config"
	"github.com/openterrain/tilegate/pkg/drain"
	"github.com/openterrain/tilegate/pkg/gateway"
	"github.com/openterrain/tilegate/pkg/handler"
	"github.com/openterrain/tilegate/pkg/hosts"
	"github.com/openterrain/tilegate/pkg/log"
	"github.com/openterrain/tilegate/pkg/metrics"
	"github.com/openterrain/tilegate/pkg/queue"
	"github.com/openterrain/tilegate/pkg/source"
	"github.com/openterrain/tilegate/pkg/state"
	"github.com/openterrain/tilegate/pkg/storage"
	"github.com/openterrain/tilegate/pkg/writer"
)

// defaultQueueID names the invalidation queue for queue types without urls.
const defaultQueueID = "invalidations"

func main() {
	var listen, healthcheck, preview string
	var requestTimeout, upstreamTimeout, drainInterval, drainBudget, expvarInterval time.Duration
	var drainOnce bool
	var poolNumEntries, poolEntrySize, sourcePoolSize int
	var metricsStatsdAddr, metricsStatsdPrefix, metricsPrometheus string
	var traceStdout bool

	hc := config.HandlerConfig{}

	systemLogger := golog.New(os.Stdout, "", golog.LstdFlags|golog.LUTC|golog.Lmicroseconds)
	hostname, err := os.Hostname()
	if err != nil {
		// NOTE: if there are legitimate cases when this can fail, we
		// can leave off the hostname in the logger.
		// But for now we prefer to get notified of it.
		systemLogger.Fatalf("ERROR: Cannot find hostname to use for logger")
	}
	// use this logger everywhere.
	logger := log.NewJsonLogger(systemLogger, hostname)

	f := flag.NewFlagSetWithEnvPrefix(os.Args[0], "TILEGATE", 0)
	f.Var(&hc, "handler",
		`JSON object defining how request patterns will be handled.
   Aws { Object present when Aws-wide configuration is needed, eg session config.
     Region string Name of aws region
   }
   Storage { key -> storage definition mapping
     storage name string -> {
        Type string storage type, can be "s3" or "file"
        Healthcheck string S3 key or file path (inside BaseDir) to check for health.

       (s3 storage)
        Bucket       string Default bucket for routes on this storage.
        Acl          string Canned ACL applied to written tiles, eg "public-read".
        StorageClass string Storage class of written tiles, eg "REDUCED_REDUNDANCY".

       (file storage)
        BaseDir    string   Base directory, buckets become subdirectories.
     }
   }
   Queue { invalidation queue
     Type   string "sqs", "redis" or "memory"
     Url    string SQS queue url, or the queue name for redis.
     Addr   string Redis address.
     Prefix string Redis key prefix.
   }
   Cache { optional cache of written tiles
     Type  string "", "memcache", "redis" or "dynamodb"
     Addr  string memcache or redis address
     Table string dynamodb table
     Ttl   int    record lifetime in seconds
   }
   Hosts   [string] public hosts that tile redirects point at
   Scheme  string   scheme of tile redirects, default "http"
   Headers { metadata name -> template over prefix, scale, x, y, z and zoom }
   KeyPattern string storage key pattern, default "{prefix}/{z}/{x}/{y}{scale}.{ext}"
   Pattern { request pattern -> route configuration mapping
     request pattern string -> {
       Type    string "tile" (default) or "tilejson"
       Source  { Uri string, Query { name -> value } } upstream tile source
       Storage string Name of storage definition to use
       Bucket  string Optional override of the storage bucket
       Prefix  string Key prefix of written tiles
       TileUrl [string] tile url templates advertised by tilejson routes
     }
   }
   Mime { extension -> content-type used when the source sends none
   }
`)
	f.StringVar(&listen, "listen", ":8080", "interface and port to listen on")
	f.String("config", "", "Config file to read values from.")
	f.StringVar(&healthcheck, "healthcheck", "", "A URL path for healthcheck. Intended for use by load balancer health checks.")
	f.StringVar(&preview, "preview", "", "Path to an html template served at /preview.html.")

	f.DurationVar(&requestTimeout, "request-timeout", 30*time.Second, "Deadline for rendering and storing a single tile.")
	f.DurationVar(&upstreamTimeout, "upstream-timeout", 10*time.Second, "Timeout of a single upstream http request.")
	f.DurationVar(&drainInterval, "drain-interval", time.Minute, "How often the invalidation queue is drained.")
	f.DurationVar(&drainBudget, "drain-budget", 30*time.Second, "Time budget of a single drain invocation.")
	f.BoolVar(&drainOnce, "drain-once", false, "Drain the invalidation queue once and exit.")
	f.DurationVar(&expvarInterval, "expvar-interval", time.Minute, "How often expvars are logged, zero disables.")

	f.IntVar(&poolNumEntries, "poolnumentries", 0, "Number of buffers to pool.")
	f.IntVar(&poolEntrySize, "poolentrysize", 0, "Size of each buffer in pool.")
	f.IntVar(&sourcePoolSize, "source-pool-size", 64, "Number of open source handles to keep.")

	f.StringVar(&metricsStatsdAddr, "metrics-statsd-addr", "", "host:port to use to send data to statsd")
	f.StringVar(&metricsStatsdPrefix, "metrics-statsd-prefix", "", "prefix to prepend to metrics")
	f.StringVar(&metricsPrometheus, "metrics-prometheus", "", "URL path to serve prometheus metrics on, eg /metrics")
	f.BoolVar(&traceStdout, "trace-stdout", false, "Write trace spans to stdout.")

	err = f.Parse(os.Args[1:])
	if err == flag.ErrHelp {
		return
	} else if err != nil {
		logFatalCfgErr(logger, "Unable to parse input command line, environment or config: %s", err.Error())
	}

	if err := hc.Validate(); err != nil {
		logFatalCfgErr(logger, "Invalid handler configuration: %s", err)
	}
	if drainInterval <= 0 || drainBudget <= drain.ArmMargin {
		logFatalCfgErr(logger, "Drain interval must be positive and drain budget above %s", drain.ArmMargin)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if traceStdout {
		exporter, err := stdouttrace.New()
		if err != nil {
			logFatalCfgErr(logger, "Unable to create trace exporter: %s", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		otel.SetTracerProvider(tp)
		defer tp.Shutdown(context.Background())
	}

	// buffer manager shared by all sources
	var bufferManager buffer.BufferManager

	if poolNumEntries > 0 && poolEntrySize > 0 {
		bufferManager = bpool.NewSizedBufferPool(poolNumEntries, poolEntrySize)
	} else {
		bufferManager = &buffer.OnDemandBufferManager{}
	}

	// metrics writer configuration
	metricsWriters := []metrics.MetricsWriter{&metrics.ExpvarMetricsWriter{}}
	if metricsStatsdAddr != "" {
		udpAddr, err := net.ResolveUDPAddr("udp4", metricsStatsdAddr)
		if err != nil {
			logFatalCfgErr(logger, "Invalid metricsstatsdaddr %s: %s", metricsStatsdAddr, err)
		}
		metricsWriters = append(metricsWriters, metrics.NewStatsdMetricsWriter(udpAddr, metricsStatsdPrefix, logger))
	}
	var prometheusWriter *metrics.PrometheusMetricsWriter
	if metricsPrometheus != "" {
		prometheusWriter = metrics.NewPrometheusMetricsWriter("tilegate")
		metricsWriters = append(metricsWriters, prometheusWriter)
	}
	mw := metrics.Combine(metricsWriters...)

	// set if any aws backed component is configured, and shared across all of them
	var awsSession *session.Session
	getAwsSession := func() *session.Session {
		if awsSession != nil {
			return awsSession
		}
		var err error
		if region := hc.AwsRegion(); region != nil {
			awsSession, err = session.NewSessionWithOptions(session.Options{
				Config: aws.Config{Region: region},
			})
		} else {
			awsSession, err = session.NewSession()
		}
		if err != nil {
			logFatalCfgErr(logger, "Unable to set up AWS session: %s", err.Error())
		}
		return awsSession
	}

	// storages by definition name
	storages := make(map[string]storage.Storage)
	for name, sd := range hc.Storage {
		if sd.Healthcheck == "" {
			logger.Warning(log.LogCategory_ConfigError, "Missing healthcheck for storage %s", name)
		}

		var stg storage.Storage
		switch sd.Type {
		case "s3":
			stg = storage.NewS3Storage(s3.New(getAwsSession()), sd.Acl, sd.StorageClass, sd.Bucket, sd.Healthcheck)
		case "file":
			stg = storage.NewFileStorage(sd.BaseDir, sd.Healthcheck)
		default:
			logFatalCfgErr(logger, "Unknown storage type: %s", sd.Type)
		}

		if sd.Healthcheck != "" {
			if storageErr := stg.HealthCheck(); storageErr != nil {
				logger.Warning(log.LogCategory_ConfigError, "Healthcheck failed on storage %s: %s", name, storageErr)
			}
		}
		storages[name] = stg
	}

	// the invalidation queue
	var q queue.Queue
	queueID := hc.Queue.Url
	switch hc.Queue.Type {
	case "sqs":
		if queueID == "" {
			logFatalCfgErr(logger, "SQS queue missing url")
		}
		q = queue.NewSQSQueue(sqs.New(getAwsSession()))
	case "redis":
		if hc.Queue.Addr == "" {
			logFatalCfgErr(logger, "Redis queue missing addr")
		}
		q = queue.NewRedisQueue(redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{hc.Queue.Addr}}), hc.Queue.Prefix)
	case "", "memory":
		logger.Warning(log.LogCategory_ConfigError, "Using in process invalidation queue, jobs are lost on restart")
		q = queue.NewMemoryQueue()
	default:
		logFatalCfgErr(logger, "Unknown queue type: %s", hc.Queue.Type)
	}
	if queueID == "" {
		queueID = defaultQueueID
	}

	// the optional cache of written tiles
	var tileCache cache.Cache
	ttl := time.Duration(hc.Cache.Ttl) * time.Second
	switch hc.Cache.Type {
	case "":
		tileCache = cache.NilCache{}
	case "memcache":
		tileCache = cache.NewMemcacheCache(memcache.New(hc.Cache.Addr), ttl)
	case "redis":
		tileCache = cache.NewRedisCache(redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{hc.Cache.Addr}}), ttl)
	case "dynamodb":
		if hc.Cache.Table == "" {
			logFatalCfgErr(logger, "DynamoDB cache missing table")
		}
		tileCache = cache.NewDynamoDBCache(dynamodb.New(getAwsSession()), hc.Cache.Table)
	default:
		logFatalCfgErr(logger, "Unknown cache type: %s", hc.Cache.Type)
	}

	selector, err := hosts.New(hc.Hosts)
	if err != nil {
		logFatalCfgErr(logger, "Invalid hosts: %s", err)
	}

	templates, err := writer.NewTemplates(hc.Headers)
	if err != nil {
		logFatalCfgErr(logger, "Invalid header templates: %s", err)
	}

	// upstream sources, shared through a bounded pool of open handles
	httpLoader := source.NewHTTPLoader(&http.Client{Timeout: upstreamTimeout}, bufferManager)
	registry := source.NewRegistry()
	registry.Register("http", httpLoader)
	registry.Register("https", httpLoader)
	registry.Register("mbtiles", source.NewMBTilesLoader())

	pool, err := source.NewPool(registry, sourcePoolSize)
	if err != nil {
		logFatalCfgErr(logger, "Invalid source pool size %d: %s", sourcePoolSize, err)
	}
	defer pool.Close()
	manager := source.NewManager(pool, logger)

	// routes on different storages share one writer and drainer through the mux
	storageMux := storage.NewMux()
	for reqPattern, rc := range hc.Pattern {
		if rc.RouteType() != config.RouteType_Tile {
			continue
		}
		if err := storageMux.Add(hc.BucketFor(rc), storages[rc.Storage]); err != nil {
			logFatalCfgErr(logger, "Pattern %s: %s", reqPattern, err)
		}
	}

	drainer := drain.New(q, queueID, storageMux, tileCache, logger)
	scheduler := drain.NewScheduler(drainer, drainInterval, drainBudget, mw, logger)

	if drainOnce {
		ds := scheduler.RunOnce(ctx, state.DrainTrigger_Once)
		if ds.IsReceiveError {
			os.Exit(1)
		}
		return
	}

	w, err := writer.New(writer.Config{
		Storage:    storageMux,
		Queue:      q,
		QueueID:    queueID,
		Hosts:      selector,
		Cache:      tileCache,
		Templates:  templates,
		Notifier:   scheduler,
		Scheme:     hc.Scheme,
		KeyPattern: hc.KeyPattern,
		Mime:       hc.Mime,
		Logger:     logger,
	})
	if err != nil {
		logFatalCfgErr(logger, "Unable to create writer: %s", err)
	}

	gw := gateway.New(manager, w, logger)

	r := mux.NewRouter()

	patterns := make([]string, 0, len(hc.Pattern))
	for reqPattern := range hc.Pattern {
		patterns = append(patterns, reqPattern)
	}
	sort.Strings(patterns)

	for _, reqPattern := range patterns {
		rc := hc.Pattern[reqPattern]

		route := &gateway.Route{
			Name:   reqPattern,
			Source: source.Descriptor{URI: rc.Source.Uri, Query: rc.Source.Values()},
			Bucket: hc.BucketFor(rc),
			Prefix: rc.Prefix,
		}
		if !registry.Has(route.Source.Scheme()) {
			logFatalCfgErr(logger, "Pattern %s: no source for scheme %q", reqPattern, route.Source.Scheme())
		}

		var h http.Handler
		switch rc.RouteType() {
		case config.RouteType_Tile:
			h = handler.TileHandler(gw, route, requestTimeout, mw, logger)
		case config.RouteType_TileJson:
			h = gziphandler.GzipHandler(handler.TileJsonHandler(gw, route, rc.TileUrl, requestTimeout, mw, logger))
		default:
			systemLogger.Fatalf("ERROR: Invalid route handler type: %s\n", rc.RouteType())
		}
		r.Handle(reqPattern, h).Methods("GET")
	}

	if len(healthcheck) > 0 {
		r.Handle(healthcheck, handler.HealthCheckHandler(storageMux.Storages(), q, queueID, logger)).Methods("GET")
	}

	if preview != "" {
		previewHandler, err := handler.NewFileHandler(preview, map[string]interface{}{
			"hosts":    hc.Hosts,
			"patterns": patterns,
		}, logger)
		if err != nil {
			logFatalCfgErr(logger, "Unable to load preview: %s", err)
		}
		r.Handle("/preview.html", previewHandler).Methods("GET")
	}

	if prometheusWriter != nil {
		r.Handle(metricsPrometheus, prometheusWriter.Handler()).Methods("GET")
	}
	r.Handle("/debug/vars", expvar.Handler()).Methods("GET")

	// main returns only after in-flight requests and the current drain are
	// done, so deferred cleanup never races them
	var g errgroup.Group
	g.Go(func() error {
		if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("drain scheduler stopped: %w", err)
		}
		return nil
	})

	if expvarInterval > 0 {
		go func() {
			ticker := time.NewTicker(expvarInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					logger.ExpVars()
				}
			}
		}()
	}

	corsHandler := handlers.CORS(handlers.ExposedHeaders([]string{"Location"}))(r)
	server := &http.Server{
		Addr:    listen,
		Handler: log.LoggingMiddleware(logger)(corsHandler),
	}

	g.Go(func() error {
		<-ctx.Done()
		// handlers get up to one request timeout to finish their writes
		shutdownCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	})

	logger.Info("Server started and listening on %s\n", listen)

	serveErr := server.ListenAndServe()
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		logger.Error(log.LogCategory_ConfigError, "Server failed: %s", serveErr)
		// stops the scheduler and releases the shutdown goroutine
		stop()
	}

	if err := g.Wait(); err != nil {
		logger.Error(log.LogCategory_InvalidCodeState, "%s", err)
	}
	logger.Info("Server stopped")

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		os.Exit(1)
	}
}

func logFatalCfgErr(logger log.JsonLogger, msg string, xs ...interface{}) {
	logger.Error(log.LogCategory_ConfigError, msg, xs...)
	os.Exit(1)
}
