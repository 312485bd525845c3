package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"AnomalyReplay/internal/domain/models"
	"AnomalyReplay/internal/domain/repository"
	"AnomalyReplay/internal/handler/api"
	"AnomalyReplay/internal/handler/ws"
	mid "AnomalyReplay/internal/middleware"
	"AnomalyReplay/internal/render"
	internalrepo "AnomalyReplay/internal/repository"
	icache "AnomalyReplay/internal/service/cache"
	apimetrics "AnomalyReplay/internal/service/metrics"
	"AnomalyReplay/internal/service/ratelimit"
	"AnomalyReplay/internal/usecase"
	pkgcache "AnomalyReplay/pkg/cache"
	pkgch "AnomalyReplay/pkg/clickhouse"
	"AnomalyReplay/pkg/config"
	xhttp "AnomalyReplay/pkg/http"
	pkgkafka "AnomalyReplay/pkg/kafka"
	applogger "AnomalyReplay/pkg/logger"
	"AnomalyReplay/pkg/metrics"
	"AnomalyReplay/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment), applogger.String("session", cfg.Session.ID)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	apimetrics.Register(prometheus.DefaultRegisterer)
	return metrics.New()
}

// ProvideKafkaProducer creates a Kafka producer. It returns nil when no
// Kafka feature needs one.
func ProvideKafkaProducer(cfg *config.Config, log *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Sinks.Kafka && !cfg.Logger.Collect {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerLogger(log),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	if cfg.Logger.Collect {
		log.AttachCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logger.CollectInterval,
			CountThreshold: cfg.Logger.CollectMax,
			Topic:          cfg.Kafka.LogTopic,
			Publisher:      producer,
		})
	}
	cleanup := func() {
		// flush collected logs while the producer is still open
		log.DetachCollector()
		if err := producer.Close(); err != nil {
			log.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	return producer, cleanup, nil
}

// ProvideRedisCache connects to redis when the session store or the chart
// cache is configured to use it, nil otherwise.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, func(), error) {
	if !cfg.RedisNeeded() {
		return nil, func() {}, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Redis.Addr),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix("replay"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideDataset loads and validates the replay CSV.
func ProvideDataset(cfg *config.Config, log *applogger.Logger, m repository.Metrics) (*models.Dataset, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	loader := internalrepo.NewCSVDatasetLoader(icache.NewTTLCache(), log, m)
	ds, err := loader.Load(ctx, cfg.Dataset.Path)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	return ds, nil
}

// ProvideSession creates the playback session over the dataset.
func ProvideSession(cfg *config.Config, ds *models.Dataset) (*usecase.Session, error) {
	sp, err := models.ParseSpeed(cfg.Dataset.Speed)
	if err != nil {
		return nil, err
	}
	return usecase.NewSession(ds,
		usecase.WithWindowSize(cfg.Dataset.WindowSize),
		usecase.WithStep(cfg.Dataset.Step),
		usecase.WithSpeed(sp),
	), nil
}

// ProvideSessionStore persists the cursor in redis or in process memory.
func ProvideSessionStore(cfg *config.Config, rc *pkgcache.RedisCache) (repository.SessionStore, func()) {
	if cfg.Session.Store == "redis" && rc != nil {
		return internalrepo.NewCacheSessionStore(rc, cfg.Session.ID, cfg.Session.TTL), func() {}
	}
	mc := pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(64), pkgcache.WithMemoryCleanup(time.Minute))
	return internalrepo.NewCacheSessionStore(mc, cfg.Session.ID, cfg.Session.TTL), func() { _ = mc.Close() }
}

// ProvideHub creates the websocket broadcaster.
func ProvideHub(cfg *config.Config, log *applogger.Logger) *ws.Hub {
	return ws.NewHub(ws.WithHubLogger(log), ws.WithPingInterval(cfg.Server.WSPingInterval))
}

// ProvideClickHouseClient connects to ClickHouse and creates the alert
// table. It returns nil when the ClickHouse sink is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.Sinks.ClickHouse {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, pkgch.AlertSchema(cfg.ClickHouse.Database, cfg.ClickHouse.Table)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideAlertStore archives consensus alerts in ClickHouse, or keeps the
// most recent ones in memory when ClickHouse is disabled.
func ProvideAlertStore(cfg *config.Config, ch *pkgch.Client, log *applogger.Logger) repository.AlertStore {
	if ch != nil {
		table := cfg.ClickHouse.Database + "." + cfg.ClickHouse.Table
		return internalrepo.NewClickHouseAlertStore(ch.DB(), table, cfg.Session.ID, log)
	}
	return internalrepo.NewMemoryAlertStore(cfg.Session.ID, 10000)
}

// ProvidePipeline builds the view pipeline and registers the enabled sinks.
func ProvidePipeline(
	cfg *config.Config,
	m repository.Metrics,
	log *applogger.Logger,
	hub *ws.Hub,
	producer *pkgkafka.Producer,
	alerts repository.AlertStore,
) *mid.ViewPipeline {
	p := mid.NewViewPipeline(m,
		mid.WithMaxRPS(cfg.Pipeline.MaxRPS),
		mid.WithBufferSize(cfg.Pipeline.BufferSize),
		mid.WithRetry(cfg.Pipeline.RetryMax, cfg.Pipeline.RetryDelay),
		mid.WithPipelineLogger(log),
	)
	if cfg.Sinks.Websocket {
		p.Register(hub, mid.Throttled())
	}
	if cfg.Sinks.Kafka && producer != nil {
		p.Register(internalrepo.NewKafkaViewPublisher(producer, cfg.Kafka.Topic, cfg.Session.ID))
	}
	p.Register(alerts)
	return p
}

// ProvideDriver creates the playback loop.
func ProvideDriver(
	session *usecase.Session,
	pipeline *mid.ViewPipeline,
	m repository.Metrics,
	store repository.SessionStore,
	log *applogger.Logger,
) *usecase.Driver {
	return usecase.NewDriver(session, pipeline, m,
		usecase.WithSessionStore(store),
		usecase.WithDriverLogger(log),
	)
}

// ProvideControlConsumer consumes playback commands from Kafka. It returns
// nil when the consumer is disabled.
func ProvideControlConsumer(cfg *config.Config, driver *usecase.Driver, m repository.Metrics, log *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewControlHandler(cfg.Kafka.ControlTopic, driver, m, log))
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.TracingHook(),
		pkgkafka.RejectEmptyHook(),
		pkgkafka.LoggingHook(log),
	))
	return consumer, nil
}

// ProvideChartRenderer creates the PNG renderer with its frame cache.
func ProvideChartRenderer(cfg *config.Config, rc *pkgcache.RedisCache) *render.CachedRenderer {
	var bc icache.BytesCache = icache.NewTTLCache()
	if cfg.Chart.Cache == "redis" && rc != nil {
		bc = icache.NewRedisCache(rc.Client(), "chart")
	}
	return render.NewCachedRenderer(render.NewRenderer(cfg.Chart.Width, cfg.Chart.Height), bc, cfg.Chart.CacheTTL)
}

// ProvideLimiter creates the per-client control rate limiter.
func ProvideLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideHTTPServer creates the echo server with the playback API and the
// websocket endpoint.
func ProvideHTTPServer(
	cfg *config.Config,
	log *applogger.Logger,
	driver *usecase.Driver,
	ds *models.Dataset,
	alerts repository.AlertStore,
	charts *render.CachedRenderer,
	hub *ws.Hub,
	limiter *ratelimit.Limiter,
) *xhttp.Server {
	playback := api.NewPlaybackEchoHandler(log, driver, ds, alerts, charts,
		api.WithControlRateLimit(limiter, cfg.Server.ControlRate, float64(cfg.Server.ControlBurst)),
	)
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer([]xhttp.Handler{playback, hub},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithMetrics(metricsPath, prometheus.DefaultRegisterer, prometheus.DefaultGatherer),
		xhttp.WithServerLogger(log),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	driver *usecase.Driver,
	pipeline *mid.ViewPipeline,
	hub *ws.Hub,
	consumer *pkgkafka.Consumer,
	httpServer *xhttp.Server,
	limiter *ratelimit.Limiter,
) *server.App {
	return server.New(cfg, log, driver, pipeline, hub, consumer, httpServer, limiter)
}
