package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"robo-ingest/internal/cen"
	"robo-ingest/internal/config"
	"robo-ingest/internal/deadletter"
	"robo-ingest/internal/dedup"
	"robo-ingest/internal/logger"
	"robo-ingest/internal/metrics"
	"robo-ingest/internal/model"
	"robo-ingest/internal/motor"
	"robo-ingest/internal/objectstore"
	"robo-ingest/internal/persistence"
	"robo-ingest/internal/persistence/pgstore"
	"robo-ingest/internal/persistence/s3store"
	"robo-ingest/internal/receiver"
	"robo-ingest/internal/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {

	// ====================================================================
	// CPU 설정 (Fargate vCPU 특성 대응)
	// ====================================================================
	//
	// Fargate 는 vCPU 단위로 CPU share 가 제한된다.
	// GOMAXPROCS 를 default 로 두면 Go 는 호스트 코어 수만큼 P 를 만들고
	// 실제로 받은 share 보다 많이 스케줄링하려다 성능이 떨어진다.
	//
	// Task Definition 환경변수 GOMAXPROCS 로 재정의 가능.
	// ====================================================================
	if v := os.Getenv("GOMAXPROCS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			runtime.GOMAXPROCS(n)
		}
	} else {
		runtime.GOMAXPROCS(1) // default: 1 logical CPU
	}

	// ====================================================================
	// Config / 운영 로그 / Metrics
	// ====================================================================
	cfg := config.Load()
	logger.Init(cfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// ====================================================================
	// Object store (S3)
	// ====================================================================
	//
	// persistence=s3 이거나 dead-letter 를 S3 로 옮길 때만 만든다.
	// ====================================================================
	var s3 *objectstore.S3Store
	if cfg.PersistenceBackend == "s3" || cfg.DeadLetterS3Prefix != "" {
		var err error
		s3, err = objectstore.NewS3Store(ctx, objectstore.Options{
			Region:  cfg.AWSRegion,
			Bucket:  cfg.S3Bucket,
			Timeout: cfg.S3Timeout,
			Retries: cfg.S3AppRetries,
		}, m)
		if err != nil {
			zlog.Fatal().Err(err).Msg("s3 init failed")
		}
	}

	// ====================================================================
	// Persistence Port
	// ====================================================================
	var store persistence.Port
	switch cfg.PersistenceBackend {
	case "s3":
		store = s3store.New(s3, s3store.Options{
			Prefix:        cfg.S3Prefix,
			InstanceID:    cfg.InstanceID,
			BatchSize:     cfg.LogBatchSize,
			FlushInterval: cfg.LogFlushInterval,
		})
	case "postgres":
		db, err := pgstore.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			zlog.Fatal().Err(err).Msg("postgres init failed")
		}
		if err := pgstore.RunMigrations(ctx, db); err != nil {
			zlog.Fatal().Err(err).Msg("migrations failed")
		}
		store = pgstore.New(db)
	default:
		store = persistence.NewMemory()
	}
	zlog.Info().Str("backend", cfg.PersistenceBackend).Msg("persistence ready")

	audit := logger.NewAudit(os.Stdout, store, nil)

	// ====================================================================
	// Dedup index (LRU, 선택적으로 Redis 공유 tier)
	// ====================================================================
	lru, err := dedup.NewLRU(cfg.DedupCapacity)
	if err != nil {
		zlog.Fatal().Err(err).Msg("dedup init failed")
	}
	var idx dedup.Index = lru
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = dedup.Connect(ctx, cfg.RedisURL)
		if err != nil {
			zlog.Fatal().Err(err).Msg("redis init failed")
		}
		idx = dedup.NewTiered(lru, dedup.NewRedis(rdb, cfg.DedupTTL))
		zlog.Info().Msg("shared dedup tier enabled")
	}

	// ====================================================================
	// Motor / Receiver
	// ====================================================================
	mo := motor.New()
	rcv := receiver.New(mo, idx, store, audit, m, receiver.Options{PersistTimeout: cfg.PersistTimeout})

	var deliverer cen.Deliverer = receiver.Local{R: rcv}
	if cfg.ReceiverURL != "" {
		deliverer = cen.NewHTTPDeliverer(cfg.ReceiverURL, cfg.ReceiverToken, nil)
		zlog.Info().Str("url", cfg.ReceiverURL).Msg("remote receiver")
	}

	// ====================================================================
	// Dead-letter sink
	// ====================================================================
	//
	//  - KAFKA_DEADLETTER_TOPIC 설정 시 Kafka topic
	//  - 아니면 로컬 gzip 파일. DEADLETTER_S3_PREFIX 가 있으면 Shipper 가 S3 로 옮긴다.
	// ====================================================================
	var (
		sink    deadletter.Sink
		shipper *deadletter.Shipper
	)
	if cfg.KafkaDeadLetterTopic != "" {
		sink = deadletter.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaDeadLetterTopic)
	} else {
		fs, err := deadletter.NewFileSink(cfg.DeadLetterDir, cfg.InstanceID, cfg.DeadLetterMaxBytes)
		if err != nil {
			zlog.Fatal().Err(err).Msg("dead-letter init failed")
		}
		sink = fs
		if cfg.DeadLetterS3Prefix != "" {
			shipper = deadletter.NewShipper(fs, s3, cfg.DeadLetterS3Prefix, 0)
		}
	}

	// ====================================================================
	// CEN
	// ====================================================================
	c := cen.New(deliverer, sink, audit, m, cen.Options{
		Backlog: cfg.Backlog,
		Backoff: cen.Backoff{
			Base:   cfg.RetryBase,
			Cap:    cfg.RetryCap,
			Jitter: cfg.RetryJitter,
		},
		Budget:          cfg.RetryBudget,
		DeliveryTimeout: cfg.DeliveryTimeout,
	})
	c.Start()

	// ====================================================================
	// HTTP 서버
	// ====================================================================
	//
	// ReadTimeout 은 어댑터 timeout 과 맞춘다. 플랫폼 콜백은 작은 payload 라
	// 비정상 커넥션이 오래 붙어 있을 이유가 없다.
	// ====================================================================
	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewRouter(server.Deps{
			Config:   cfg,
			CEN:      c,
			Backlog:  c,
			Motor:    mo,
			Receiver: rcv,
			Audit:    audit,
			Metrics:  m,
			Gatherer: reg,
		}),
		ReadTimeout:  cfg.AdapterTimeout,
		WriteTimeout: cfg.AdapterTimeout + 2*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	audit.Info(model.LogOriginSystem, "Servico iniciado", map[string]any{
		"instance":    cfg.InstanceID,
		"persistence": cfg.PersistenceBackend,
		"backlog":     cfg.Backlog,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zlog.Info().Str("addr", cfg.HTTPAddr).Msg("robo-ingest listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if shipper != nil {
		g.Go(func() error { return shipper.Run(gctx) })
	}

	// ====================================================================
	// Graceful Shutdown (ECS/Fargate scale-in 대응)
	// ====================================================================
	//
	// SIGTERM 수신 시:
	//   1) HTTP 서버 종료 (새 콜백 차단)
	//   2) CEN 종료: 남은 queue / 재시도 대기 이벤트는 reason=shutdown 으로 dead-letter
	//   3) 감사 로그 flush → persistence / sink / redis 정리
	// ====================================================================
	g.Go(func() error {
		<-gctx.Done()
		zlog.Info().Msg("shutdown signal received")

		sctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()

		if err := srv.Shutdown(sctx); err != nil {
			zlog.Error().Err(err).Msg("http shutdown")
		}
		if err := c.Close(sctx); err != nil {
			zlog.Error().Err(err).Msg("cen shutdown")
		}
		audit.Info(model.LogOriginSystem, "Servico encerrado", nil)
		audit.Close()
		if cl, ok := store.(persistence.Closer); ok {
			if err := cl.Close(sctx); err != nil {
				zlog.Error().Err(err).Msg("persistence close")
			}
		}
		if err := sink.Close(); err != nil {
			zlog.Error().Err(err).Msg("dead-letter close")
		}
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		zlog.Fatal().Err(err).Msg("server terminated")
	}
	zlog.Info().Msg("shutdown complete")
}
