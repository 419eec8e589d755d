// cmd/container.go
//
// Composition root. Owns infrastructure (DB, Redis, storage, backend) and
// wires the generation pipeline. This is the only place that knows about
// every package.
package main

import (
	"context"
	"time"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/culturalsoundlab/soundlab/pkg/auth"
	"github.com/culturalsoundlab/soundlab/pkg/config"
	"github.com/culturalsoundlab/soundlab/pkg/fsx"
	"github.com/culturalsoundlab/soundlab/pkg/fsx/fsxlocal"
	"github.com/culturalsoundlab/soundlab/pkg/fsx/fsxs3"
	"github.com/culturalsoundlab/soundlab/pkg/generation"
	"github.com/culturalsoundlab/soundlab/pkg/generation/generationapi"
	"github.com/culturalsoundlab/soundlab/pkg/generation/generationinfra"
	"github.com/culturalsoundlab/soundlab/pkg/jobx"
	"github.com/culturalsoundlab/soundlab/pkg/logx"
	"github.com/culturalsoundlab/soundlab/pkg/metricx"
	"github.com/culturalsoundlab/soundlab/pkg/notifx"
	"github.com/culturalsoundlab/soundlab/pkg/notifx/notifxconsole"
	"github.com/culturalsoundlab/soundlab/pkg/notifx/notifxredis"
	"github.com/culturalsoundlab/soundlab/pkg/notifx/notifxses"
	"github.com/culturalsoundlab/soundlab/pkg/synthx"
)

// Container holds shared infrastructure and the composed generation module.
type Container struct {
	Config *config.Config

	// Infrastructure
	DB      *sqlx.DB
	Redis   *redis.Client
	Storage fsx.FileSystemWithPresign
	LocalFS *fsxlocal.LocalFileSystem // nil unless STORAGE_PROVIDER=local
	Backend synthx.Backend
	// Failover is nil when the mock backend runs alone.
	Failover *synthx.Failover

	// Generation pipeline
	Queue      *jobx.Queue
	Metrics    *metricx.Metrics
	Service    *generation.Service
	Handlers   *generationapi.Handlers
	Verifier   *auth.Verifier
	Subscriber notifx.Subscriber
}

func NewContainer(cfg *config.Config) *Container {
	logx.Info("🔧 Initializing application container...")

	c := &Container{Config: cfg}

	c.initInfrastructure()
	c.initModules()

	logx.Info("✅ Application container initialized")
	return c
}

// ---------------------------------------------------------------------------
// Infrastructure — DB, Redis, storage, synthesis backend
// ---------------------------------------------------------------------------

func (c *Container) initInfrastructure() {
	logx.Info("🏗️ Initializing infrastructure...")

	// 1. Database
	dbCfg := c.Config.Database
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
	db, err := sqlx.Connect(dbCfg.Driver, dbCfg.URL)
	if err != nil {
		logx.Fatalf("Failed to connect to database: %v", err)
	}
	if dbCfg.Driver == "sqlite" {
		// modernc sqlite serialises writers; one connection avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(dbCfg.MaxOpenConns)
		db.SetMaxIdleConns(dbCfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(dbCfg.ConnMaxLifetime)
	c.DB = db
	logx.Infof("  ✅ Database connected (driver: %s)", dbCfg.Driver)

	if dbCfg.AutoMigrate {
		if err := generationinfra.Migrate(context.Background(), db); err != nil {
			logx.Fatalf("Failed to migrate database: %v", err)
		}
		logx.Info("  ✅ Database schema up to date")
	}

	// 2. Redis, only when a Redis-backed sink is configured
	if c.Config.Notifx.RealtimeProvider == "redis" {
		c.Redis = redis.NewClient(&redis.Options{
			Addr:     c.Config.Redis.Addr,
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
		})
		if _, err := c.Redis.Ping(context.Background()).Result(); err != nil {
			logx.Fatalf("Failed to connect to Redis: %v (NOTIFX_REALTIME_PROVIDER=redis)", err)
		}
		logx.Info("  ✅ Redis connected")
	}

	// 3. File storage
	c.initFileStorage()

	// 4. Synthesis backend
	c.initBackend()

	logx.Info("✅ Infrastructure initialized")
}

func (c *Container) initFileStorage() {
	st := c.Config.Storage

	switch st.Provider {
	case "s3":
		cfg, err := awsConfig.LoadDefaultConfig(context.TODO(), awsConfig.WithRegion(st.Region))
		if err != nil {
			logx.Fatalf("Unable to load AWS SDK config: %v", err)
		}
		c.Storage = fsxs3.NewS3FileSystem(s3.NewFromConfig(cfg), st.Bucket, "")
		logx.Infof("  ✅ S3 storage configured (bucket: %s, region: %s)", st.Bucket, st.Region)

	case "local":
		localFS, err := fsxlocal.NewLocalFileSystem(st.LocalRoot, st.PublicURL, []byte(st.SigningKey))
		if err != nil {
			logx.Fatalf("Failed to initialize local storage: %v", err)
		}
		c.Storage = localFS
		c.LocalFS = localFS
		logx.Infof("  ✅ Local storage configured (path: %s)", st.LocalRoot)

	default:
		logx.Fatalf("Unknown STORAGE_PROVIDER: %s (use 'local' or 's3')", st.Provider)
	}
}

func (c *Container) initBackend() {
	bc := c.Config.Backend
	mock := synthx.NewMockBackend(c.Storage, bc.MockSpeedup, c.Config.Storage.URLExpiry)

	if bc.UseMock || bc.URL == "" {
		c.Backend = mock
		logx.Warn("  ⚠️ Using mock synthesis backend (SYNTH_USE_MOCK or no SYNTH_URL)")
		return
	}

	var opts []synthx.HTTPOption
	if bc.APIKey != "" {
		opts = append(opts, synthx.WithAPIKey(bc.APIKey))
	}
	c.Failover = synthx.NewFailover(synthx.NewHTTPBackend(bc.URL, opts...), mock, synthx.FailoverOptions{
		HealthTTL:        bc.HealthTTL,
		HealthTimeout:    5 * time.Second,
		FailureThreshold: bc.FailureThreshold,
		Cooldown:         bc.Cooldown,
	})
	c.Backend = c.Failover
	logx.Infof("  ✅ Synthesis backend configured (url: %s, mock fallback)", bc.URL)
}

// ---------------------------------------------------------------------------
// Module composition
// ---------------------------------------------------------------------------

func (c *Container) initModules() {
	logx.Info("📦 Initializing modules...")

	jc := c.Config.Jobx
	bc := c.Config.Backend
	repo := generationinfra.NewSQLRepository(c.DB)

	notifier, err := generation.NewNotifier(c.notifyClient(repo), c.Config.Notifx.PersistProgress, c.Config.Notifx.AppURL)
	if err != nil {
		logx.Fatalf("Failed to initialize notifier: %v", err)
	}

	// the gauges read c.Queue at scrape time
	c.Metrics = metricx.New(func() jobx.Stats { return c.Queue.Stats() })

	c.Queue = jobx.New(
		jobx.WithConcurrency(jc.Concurrency),
		jobx.WithMaxAttempts(jc.MaxAttempts),
		jobx.WithTickInterval(jc.TickInterval),
		jobx.WithRetention(jc.Retention),
		jobx.WithCleanupInterval(jc.CleanupInterval),
		jobx.WithShutdownTimeout(jc.ShutdownTimeout),
		jobx.WithEventBuffer(jc.EventBuffer),
		jobx.WithObserver(notifier, c.Metrics),
	)

	worker := generation.NewWorker(c.Backend, c.Storage, generation.WorkerConfig{
		SubmitTimeout: bc.SubmitTimeout,
		PollTimeout:   bc.PollTimeout,
		PollInterval:  bc.PollInterval,
		MaxPolls:      bc.MaxPolls,
		URLExpiry:     c.Config.Storage.URLExpiry,
	})
	c.Queue.Register(generation.JobType, worker.Handle)

	c.Service = generation.NewService(c.Queue, repo)
	c.Handlers = generationapi.NewHandlers(c.Service, c.Subscriber)
	c.Verifier = auth.NewVerifier(c.Config.Auth.JWTSecret, c.Config.Auth.Issuer, c.Config.Auth.Audience)

	logx.Infof("  ✅ Generation module ready (concurrency: %d, max attempts: %d)", jc.Concurrency, jc.MaxAttempts)
}

func (c *Container) notifyClient(repo generation.Repository) *notifx.Client {
	nc := c.Config.Notifx
	opts := []notifx.ClientOption{notifx.WithStatusWriter(repo)}

	switch nc.RealtimeProvider {
	case "redis":
		pub := notifxredis.NewPublisher(c.Redis, "soundlab")
		opts = append(opts, notifx.WithRealtime(pub))
		c.Subscriber = pub
	default:
		console := notifxconsole.NewConsoleProvider()
		opts = append(opts, notifx.WithRealtime(console))
		c.Subscriber = console
	}

	from := nc.FromAddress
	if nc.FromName != "" {
		from = nc.FromName + " <" + nc.FromAddress + ">"
	}
	switch nc.EmailProvider {
	case "ses":
		cfg, err := awsConfig.LoadDefaultConfig(context.TODO(), awsConfig.WithRegion(nc.AWSRegion))
		if err != nil {
			logx.Fatalf("Unable to load AWS SDK config for SES: %v", err)
		}
		opts = append(opts, notifx.WithEmail(notifxses.NewSESProvider(ses.NewFromConfig(cfg), from), from))
		logx.Infof("  ✅ SES email configured (region: %s)", nc.AWSRegion)
	default:
		opts = append(opts, notifx.WithEmail(notifxconsole.NewConsoleProvider(), from))
	}

	logx.Infof("  ✅ Notifications configured (realtime: %s, email: %s)", nc.RealtimeProvider, nc.EmailProvider)
	return notifx.NewClient(opts...)
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// StartBackgroundServices runs the scheduler until ctx is cancelled. The
// returned channel closes once in-flight runs have drained.
func (c *Container) StartBackgroundServices(ctx context.Context) <-chan struct{} {
	logx.Info("🔄 Starting background services...")
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.Queue.Start(ctx); err != nil {
			logx.WithError(err).Error("Job scheduler stopped with error")
		}
	}()
	logx.Info("  ✅ Job scheduler started")
	return done
}

func (c *Container) Cleanup() {
	logx.Info("🧹 Cleaning up resources...")

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.Errorf("Error closing Redis: %v", err)
		} else {
			logx.Info("  ✅ Redis connection closed")
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.Errorf("Error closing database: %v", err)
		} else {
			logx.Info("  ✅ Database connection closed")
		}
	}

	logx.Info("✅ Cleanup complete")
}
