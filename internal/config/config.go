// internal/config/config.go
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config
//
// 서비스 실행 시 필요한 모든 설정 값을 보관하는 구조체.
// 모든 값은 프로세스 시작 시점에 Load() 에 의해 초기화되며,
// 이후에는 변경되지 않는 불변(read-only) 설정들이다.
//
// 플랫폼 secret 은 비어 있어도 기동은 된다.
// 비어 있는 플랫폼의 endpoint 는 503 (feature disabled) 을 돌려준다.
type Config struct {

	// ---------------------------
	// 서버 식별자 / 네트워크
	// ---------------------------

	ServiceName string // 로그 공통 필드 service
	InstanceID  string // 프로세스 고유 ID (호스트명 기반, 실패 시 랜덤 hex)
	HTTPAddr    string // HTTP bind 주소 (예: ":8080")

	// ---------------------------
	// 로깅
	// ---------------------------

	LogLevel   string
	LogPretty  bool
	LogSampleN uint32 // 운영 로그(Debug/Info) 샘플링. 감사 로그에는 적용하지 않는다.

	// ---------------------------
	// 플랫폼 secret (env 전용, yaml 로는 받지 않음)
	// ---------------------------

	HotmartSecret   string
	EduzzSecret     string
	MonetizzeToken  string
	ClickBankSecret string

	// ---------------------------
	// 요청 처리 / CEN / Receiver 파라미터
	// ---------------------------

	MaxBodySize    int64         // 단일 콜백 body 최대 크기 (바이트)
	AdapterTimeout time.Duration // body 읽기 + 인증 제한 시간
	Backlog        int           // CEN dispatch backlog B (queued + retry 대기 포함)
	DedupCapacity  int           // Receiver LRU 용량 D
	DedupTTL       time.Duration // Redis 공유 dedup 키 TTL

	RetryBase       time.Duration
	RetryCap        time.Duration
	RetryBudget     time.Duration // 첫 enqueue 부터 dead-letter 까지의 총 시간 예산
	RetryJitter     float64       // ±비율 (0.2 = ±20%)
	DeliveryTimeout time.Duration // dispatcher → Receiver 1회 시도 timeout
	PersistTimeout  time.Duration // Receiver → persistence timeout

	// Receiver 가 별도 프로세스일 때만 설정. 비어 있으면 in-process 호출.
	ReceiverURL   string
	ReceiverToken string

	// ---------------------------
	// Persistence
	// ---------------------------

	PersistenceBackend string // memory | s3 | postgres

	AWSRegion    string
	S3Bucket     string
	S3Prefix     string
	S3Timeout    time.Duration
	S3AppRetries int // SDK retry 는 항상 0, 재시도 횟수는 이 값만 사용

	DatabaseURL string
	DBMaxConns  int32

	LogBatchSize     int           // S3 감사 로그 배치 크기
	LogFlushInterval time.Duration // S3 감사 로그 flush 주기

	RedisURL string // 설정 시 다중 인스턴스 공유 dedup tier 사용

	// ---------------------------
	// Dead-letter
	// ---------------------------

	DeadLetterDir      string
	DeadLetterMaxBytes int64
	DeadLetterS3Prefix string // 설정 시 로컬 dead-letter 파일을 S3 로 옮긴다

	KafkaBrokers         []string
	KafkaDeadLetterTopic string // 설정 시 파일 대신 Kafka topic 으로 dead-letter
}

// Load
//
// 환경 변수(+ 선택적 CONFIG_FILE yaml)로 Config 를 만든다.
// 값 형식이 잘못되었으면 즉시 프로세스를 종료한다(fail-fast).
func Load() Config {
	cfg, err := FromEnv(os.LookupEnv)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	return cfg
}

// FromEnv builds a Config from lookup. Tests pass a map-backed lookup.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	e := envReader{lookup: lookup}

	cfg := Defaults()

	if path := e.str("CONFIG_FILE", ""); path != "" {
		t, err := loadTuning(path)
		if err != nil {
			return Config{}, err
		}
		t.apply(&cfg)
	}

	cfg.ServiceName = e.str("SERVICE_NAME", cfg.ServiceName)
	cfg.InstanceID = e.str("INSTANCE_ID", fallbackInstanceID())
	cfg.HTTPAddr = e.str("HTTP_ADDR", cfg.HTTPAddr)

	cfg.LogLevel = e.str("LOG_LEVEL", cfg.LogLevel)
	cfg.LogPretty = e.boolean("LOG_PRETTY", cfg.LogPretty)
	cfg.LogSampleN = uint32(e.integer("LOG_SAMPLE_N", int(cfg.LogSampleN)))

	cfg.HotmartSecret = e.str("HOTMART_WEBHOOK_SECRET", "")
	cfg.EduzzSecret = e.str("EDUZZ_WEBHOOK_SECRET", "")
	cfg.MonetizzeToken = e.str("MONETIZZE_WEBHOOK_TOKEN", "")
	cfg.ClickBankSecret = e.str("CLICKBANK_SECRET_KEY", "")

	cfg.MaxBodySize = e.int64("MAX_BODY_SIZE", cfg.MaxBodySize)
	cfg.AdapterTimeout = e.dur("ADAPTER_TIMEOUT", cfg.AdapterTimeout)
	cfg.Backlog = e.integer("DISPATCH_BACKLOG", cfg.Backlog)
	cfg.DedupCapacity = e.integer("DEDUP_CAPACITY", cfg.DedupCapacity)
	cfg.DedupTTL = e.dur("DEDUP_TTL", cfg.DedupTTL)

	cfg.RetryBase = e.dur("RETRY_BASE", cfg.RetryBase)
	cfg.RetryCap = e.dur("RETRY_CAP", cfg.RetryCap)
	cfg.RetryBudget = e.dur("RETRY_BUDGET", cfg.RetryBudget)
	cfg.RetryJitter = e.float("RETRY_JITTER", cfg.RetryJitter)
	cfg.DeliveryTimeout = e.dur("DELIVERY_TIMEOUT", cfg.DeliveryTimeout)
	cfg.PersistTimeout = e.dur("PERSIST_TIMEOUT", cfg.PersistTimeout)

	cfg.ReceiverURL = e.str("RECEIVER_URL", cfg.ReceiverURL)
	cfg.ReceiverToken = e.str("RECEIVER_TOKEN", "")

	cfg.PersistenceBackend = strings.ToLower(e.str("PERSISTENCE_BACKEND", cfg.PersistenceBackend))
	cfg.AWSRegion = e.str("AWS_REGION", cfg.AWSRegion)
	cfg.S3Bucket = e.str("S3_BUCKET", cfg.S3Bucket)
	cfg.S3Prefix = e.str("S3_PREFIX", cfg.S3Prefix)
	cfg.S3Timeout = e.dur("S3_TIMEOUT", cfg.S3Timeout)
	cfg.S3AppRetries = e.integer("S3_APP_RETRIES", cfg.S3AppRetries)
	cfg.DatabaseURL = e.str("DATABASE_URL", "")
	cfg.DBMaxConns = int32(e.integer("DB_MAX_CONNS", int(cfg.DBMaxConns)))
	cfg.LogBatchSize = e.integer("LOG_BATCH_SIZE", cfg.LogBatchSize)
	cfg.LogFlushInterval = e.dur("LOG_FLUSH_INTERVAL", cfg.LogFlushInterval)
	cfg.RedisURL = e.str("REDIS_URL", "")

	cfg.DeadLetterDir = e.str("DEADLETTER_DIR", cfg.DeadLetterDir)
	cfg.DeadLetterMaxBytes = e.int64("DEADLETTER_MAX_BYTES", cfg.DeadLetterMaxBytes)
	cfg.DeadLetterS3Prefix = e.str("DEADLETTER_S3_PREFIX", cfg.DeadLetterS3Prefix)
	if brokers := e.str("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	cfg.KafkaDeadLetterTopic = e.str("KAFKA_DEADLETTER_TOPIC", cfg.KafkaDeadLetterTopic)

	if e.err != nil {
		return Config{}, e.err
	}
	return cfg, cfg.validate()
}

// Defaults returns the documented default values.
func Defaults() Config {
	return Config{
		ServiceName: "robo-ingest",
		HTTPAddr:    ":8080",
		LogLevel:    "info",

		MaxBodySize:    1 << 20,
		AdapterTimeout: 10 * time.Second,
		Backlog:        1024,
		DedupCapacity:  100_000,
		DedupTTL:       72 * time.Hour,

		RetryBase:       time.Second,
		RetryCap:        60 * time.Second,
		RetryBudget:     24 * time.Hour,
		RetryJitter:     0.2,
		DeliveryTimeout: 15 * time.Second,
		PersistTimeout:  5 * time.Second,

		PersistenceBackend: "memory",
		S3Prefix:           "robo",
		S3Timeout:          5 * time.Second,
		S3AppRetries:       3,
		DBMaxConns:         10,
		LogBatchSize:       500,
		LogFlushInterval:   5 * time.Second,

		DeadLetterDir:      "./deadletter",
		DeadLetterMaxBytes: 512 << 20,
	}
}

func (c Config) validate() error {
	var errs []string
	if c.Backlog <= 0 {
		errs = append(errs, "DISPATCH_BACKLOG must be > 0")
	}
	if c.DedupCapacity <= 0 {
		errs = append(errs, "DEDUP_CAPACITY must be > 0")
	}
	if c.RetryBase <= 0 || c.RetryCap < c.RetryBase {
		errs = append(errs, "RETRY_BASE must be > 0 and <= RETRY_CAP")
	}
	if c.RetryJitter < 0 || c.RetryJitter >= 1 {
		errs = append(errs, "RETRY_JITTER must be in [0,1)")
	}
	switch c.PersistenceBackend {
	case "memory":
	case "s3":
		if c.AWSRegion == "" || c.S3Bucket == "" {
			errs = append(errs, "s3 backend requires AWS_REGION and S3_BUCKET")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, "postgres backend requires DATABASE_URL")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown PERSISTENCE_BACKEND %q", c.PersistenceBackend))
	}
	if c.DeadLetterS3Prefix != "" && (c.AWSRegion == "" || c.S3Bucket == "") {
		errs = append(errs, "DEADLETTER_S3_PREFIX requires AWS_REGION and S3_BUCKET")
	}
	if c.ReceiverURL != "" && c.ReceiverToken == "" {
		errs = append(errs, "RECEIVER_URL requires RECEIVER_TOKEN")
	}
	if c.KafkaDeadLetterTopic != "" && len(c.KafkaBrokers) == 0 {
		errs = append(errs, "KAFKA_DEADLETTER_TOPIC requires KAFKA_BROKERS")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// envReader
//
// 공통 패턴. 값이 없으면 default, 형식이 잘못되면 첫 오류를 기억해 두었다가
// FromEnv 끝에서 한 번에 돌려준다.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) str(key, def string) string {
	if v, ok := e.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *envReader) fail(key, v string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid env %s=%q: %w", key, v, err)
	}
}

func (e *envReader) integer(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return n
}

func (e *envReader) int64(key string, def int64) int64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return n
}

func (e *envReader) float(key string, def float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return f
}

func (e *envReader) boolean(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return b
}

func (e *envReader) dur(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return d
}

// fallbackInstanceID
//
// 인스턴스 식별 값.
//   - 기본: hostname
//   - fallback: 12자리 랜덤 hex
func fallbackInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	var b [6]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
