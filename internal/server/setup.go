package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	chanmem "github.com/JakeFAU/noticewatch/internal/channel/memory"
	chanpubsub "github.com/JakeFAU/noticewatch/internal/channel/pubsub"
	"github.com/JakeFAU/noticewatch/internal/clock/system"
	"github.com/JakeFAU/noticewatch/internal/config"
	dedupmem "github.com/JakeFAU/noticewatch/internal/dedup/memory"
	dedupredis "github.com/JakeFAU/noticewatch/internal/dedup/redis"
	docmem "github.com/JakeFAU/noticewatch/internal/docstore/memory"
	docmongo "github.com/JakeFAU/noticewatch/internal/docstore/mongo"
	docpg "github.com/JakeFAU/noticewatch/internal/docstore/postgres"
	"github.com/JakeFAU/noticewatch/internal/enrich"
	"github.com/JakeFAU/noticewatch/internal/extract/gemini"
	collyfetcher "github.com/JakeFAU/noticewatch/internal/fetcher/colly"
	"github.com/JakeFAU/noticewatch/internal/geocode"
	"github.com/JakeFAU/noticewatch/internal/geocode/naver"
	"github.com/JakeFAU/noticewatch/internal/hash/sha256"
	"github.com/JakeFAU/noticewatch/internal/notice"
	"github.com/JakeFAU/noticewatch/internal/pdftext"
	"github.com/JakeFAU/noticewatch/internal/policy/ratelimit"
	"github.com/JakeFAU/noticewatch/internal/retry"
	"github.com/JakeFAU/noticewatch/internal/source/odcloud"
	gcsstorage "github.com/JakeFAU/noticewatch/internal/storage/gcs"
	localstorage "github.com/JakeFAU/noticewatch/internal/storage/local"
	memorystorage "github.com/JakeFAU/noticewatch/internal/storage/memory"
	s3storage "github.com/JakeFAU/noticewatch/internal/storage/s3"
)

const (
	pingTimeout    = 5 * time.Second
	connectTimeout = 10 * time.Second
)

func setupDedup(ctx context.Context, app *App) (notice.DedupStore, error) {
	switch app.cfg.Redis.Backend {
	case "memory":
		app.logger.Warn("using in-memory dedup store, claims do not survive restarts")
		return dedupmem.New(), nil
	default:
		store := dedupredis.New(dedupredis.Config{
			Addr:     app.cfg.Redis.Addr,
			Password: app.cfg.Redis.Password,
			DB:       app.cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			_ = store.Close() //nolint:errcheck // already failing
			return nil, notice.Fatal("redis ping", err)
		}
		app.addCheck("redis", store)
		app.onClose("redis", func(context.Context) error { return store.Close() })
		app.logger.Info("redis dedup store connected", zap.String("addr", app.cfg.Redis.Addr))
		return store, nil
	}
}

func setupDocStore(ctx context.Context, app *App) (notice.NoticeStore, error) {
	if app.docStore != nil {
		return app.docStore, nil
	}
	c := app.cfg.DocStore
	switch c.Backend {
	case "memory":
		app.logger.Warn("using in-memory document store")
		return docmem.New(), nil
	case "postgres":
		store, err := docpg.New(ctx, docpg.Config{
			DSN:             c.URI,
			NoticeTable:     c.NoticeCollection,
			EnrichmentTable: c.EnrichmentCollection,
			MaxConns:        c.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("postgres schema init failed: %w", err)
		}
		app.addCheck("postgres", store)
		app.onClose("postgres", func(context.Context) error {
			store.Close()
			return nil
		})
		app.logger.Info("postgres document store initialized",
			zap.String("notice_table", c.NoticeCollection),
			zap.String("enrichment_table", c.EnrichmentCollection),
		)
		return store, nil
	default:
		store, err := docmongo.New(ctx, docmongo.Config{
			URI:                  c.URI,
			Database:             c.Database,
			NoticeCollection:     c.NoticeCollection,
			EnrichmentCollection: c.EnrichmentCollection,
			ConnectTimeout:       connectTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("mongo store init failed: %w", err)
		}
		app.addCheck("mongo", store)
		app.onClose("mongo", store.Close)
		app.logger.Info("mongo document store connected",
			zap.String("database", c.Database),
			zap.String("notice_collection", c.NoticeCollection),
			zap.String("enrichment_collection", c.EnrichmentCollection),
		)
		return store, nil
	}
}

func (a *App) memoryChannel() *chanmem.Channel {
	if a.memChannel == nil {
		a.logger.Warn("using in-process message channel, events stay inside this process")
		a.memChannel = chanmem.New(0, chanmem.WithLogger(a.logger.Named("channel")))
	}
	return a.memChannel
}

func setupProducer(ctx context.Context, app *App) (notice.Producer, error) {
	c := app.cfg.Channel
	if c.Backend == "memory" {
		ch := app.memoryChannel()
		app.onClose("channel", func(context.Context) error { return ch.Close() })
		return ch, nil
	}
	client, err := pubsub.NewClient(ctx, c.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.onClose("pubsub client", func(context.Context) error { return client.Close() })
	topic, err := chanpubsub.EnsureTopic(ctx, client, c.Topic)
	if err != nil {
		return nil, err
	}
	producer, err := chanpubsub.NewProducer(topic)
	if err != nil {
		return nil, err
	}
	app.onClose("pubsub producer", func(context.Context) error { return producer.Close() })
	app.logger.Info("pubsub producer initialized",
		zap.String("project", c.ProjectID),
		zap.String("topic", c.Topic),
	)
	return producer, nil
}

// setupSubscriber connects to the channel, retrying while the broker is not
// reachable yet.
func setupSubscriber(ctx context.Context, app *App) (notice.Subscriber, error) {
	c := app.cfg.Channel
	if c.Backend == "memory" {
		return app.memoryChannel(), nil
	}

	policy := retry.Policy{
		MaxAttempts: c.ConnectRetries,
		Backoff:     retry.Fixed(config.Seconds(c.RetryDelaySec)),
		Retryable:   func(error) bool { return true },
		Sleep:       app.sleep,
	}
	var sub *chanpubsub.Subscriber
	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		s, err := connectSubscriber(ctx, app)
		if err != nil {
			app.logger.Warn("pubsub connect failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.ConnectRetries),
				zap.Error(err),
			)
			return err
		}
		sub = s
		return nil
	})
	if err != nil {
		return nil, notice.Fatal("pubsub connect", err)
	}
	app.logger.Info("pubsub subscriber initialized",
		zap.String("project", c.ProjectID),
		zap.String("subscription", c.Subscription),
	)
	return sub, nil
}

func connectSubscriber(ctx context.Context, app *App) (*chanpubsub.Subscriber, error) {
	c := app.cfg.Channel
	client, err := pubsub.NewClient(ctx, c.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	topic, err := chanpubsub.EnsureTopic(ctx, client, c.Topic)
	if err != nil {
		_ = client.Close() //nolint:errcheck // already failing
		return nil, err
	}
	subscription, err := chanpubsub.EnsureSubscription(ctx, client, c.Subscription, topic)
	if err != nil {
		_ = client.Close() //nolint:errcheck // already failing
		return nil, err
	}
	sub, err := chanpubsub.NewSubscriber(subscription, chanpubsub.SubscriberConfig{
		MaxOutstanding: app.cfg.Consumer.Workers,
	}, app.logger.Named("subscriber"))
	if err != nil {
		_ = client.Close() //nolint:errcheck // already failing
		return nil, err
	}
	app.onClose("pubsub client", func(context.Context) error { return client.Close() })
	return sub, nil
}

func setupArchive(ctx context.Context, app *App) (notice.BlobStore, error) {
	if app.archive != nil {
		return app.archive, nil
	}
	c := app.cfg.Archive
	switch c.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.onClose("gcs", func(context.Context) error { return client.Close() })
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: c.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Info("using GCS archive", zap.String("bucket", c.Bucket))
		return store, nil
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: c.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("using local archive", zap.String("path", c.BaseDir))
		return store, nil
	case "memory":
		app.logger.Warn("using in-memory archive")
		return memorystorage.NewBlobStore(), nil
	default:
		store, err := s3storage.New(ctx, s3storage.Config{
			Bucket:   c.Bucket,
			Region:   c.Region,
			Endpoint: c.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 blob store init failed: %w", err)
		}
		app.logger.Info("using S3 archive",
			zap.String("bucket", c.Bucket),
			zap.String("region", c.Region),
		)
		return store, nil
	}
}

func setupSource(app *App) (*odcloud.Client, error) {
	c := app.cfg.Source
	client, err := odcloud.New(odcloud.Config{
		BaseURL:    c.BaseURL,
		ServiceKey: c.ServiceKey,
		PerPage:    c.PerPage,
		Timeout:    config.Seconds(c.TimeoutSeconds),
		DetailBase: app.cfg.Detail.BaseURL,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("source client init failed: %w", err)
	}
	return client, nil
}

func setupResolver(app *App, store notice.NoticeStore) (*geocode.Resolver, error) {
	c := app.cfg.Geocode
	cfg := geocode.Config{
		MaxAttempts:  c.MaxAttempts,
		Backoff:      config.Millis(c.BackoffMs),
		CandidateGap: config.Millis(c.CandidateGapMs),
	}
	var opts []geocode.Option
	if app.sleep != nil {
		opts = append(opts, geocode.WithSleeper(app.sleep))
	}
	logger := app.logger.Named("geocode")

	if c.KeyID == "" || c.Key == "" {
		app.logger.Warn("geocoder credentials missing, every geocode stage will fail")
		return geocode.NewResolver(nil, store, cfg, logger, opts...), nil
	}

	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: c.RateLimitRPS, DefaultBurst: 1})
	client, err := naver.New(naver.Config{
		BaseURL: c.BaseURL,
		KeyID:   c.KeyID,
		Key:     c.Key,
		Timeout: config.Seconds(c.TimeoutSeconds),
	}, &http.Client{Timeout: config.Seconds(c.TimeoutSeconds)}, limiter)
	if err != nil {
		return nil, fmt.Errorf("geocoder init failed: %w", err)
	}
	app.logger.Info("geocoder initialized",
		zap.String("base_url", c.BaseURL),
		zap.Float64("rate_limit_rps", c.RateLimitRPS),
	)
	return geocode.NewResolver(client, store, cfg, logger, opts...), nil
}

func setupEnricher(
	ctx context.Context,
	app *App,
	store notice.NoticeStore,
	archive notice.BlobStore,
) (*enrich.Enricher, error) {
	d := app.cfg.Detail
	extractor := app.extractor
	if extractor == nil {
		ext, err := gemini.New(ctx, gemini.Config{
			APIKey:  app.cfg.Model.APIKey,
			Model:   app.cfg.Model.Name,
			Timeout: config.Seconds(app.cfg.Model.TimeoutSeconds),
		}, app.logger.Named("gemini"))
		if err != nil {
			return nil, fmt.Errorf("model client init failed: %w", err)
		}
		extractor = ext
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:   d.UserAgent,
		Timeout:     config.Seconds(d.PDFTimeoutSeconds),
		MaxBodySize: d.MaxPDFBytes,
	})
	app.logger.Info("using colly fetcher", zap.String("user_agent", d.UserAgent))

	return enrich.New(enrich.Deps{
		Pages:     fetcher,
		Files:     fetcher,
		Archive:   archive,
		Text:      pdftext.New(app.logger.Named("pdftext")),
		Extractor: extractor,
		Store:     store,
		Hasher:    sha256.New(),
		Clock:     system.New(time.UTC),
	}, enrich.Config{
		DetailBase:       d.BaseURL,
		AttachmentHost:   d.AttachmentHost,
		AttachmentMarker: d.AttachmentMarker,
		PageTimeout:      config.Seconds(d.PageTimeoutSeconds),
		PDFTimeout:       config.Seconds(d.PDFTimeoutSeconds),
		MaxPDFBytes:      d.MaxPDFBytes,
		JSONDir:          d.JSONDir,
	}, app.logger.Named("enrich")), nil
}
