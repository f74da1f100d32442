package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Tuning is the optional CONFIG_FILE overlay. Secrets are deliberately absent:
// they are only read from the environment.
type Tuning struct {
	HTTPAddr string `yaml:"http_addr"`
	LogLevel string `yaml:"log_level"`

	MaxBodySize    int64         `yaml:"max_body_size"`
	AdapterTimeout time.Duration `yaml:"adapter_timeout"`

	Dispatch struct {
		Backlog         int           `yaml:"backlog"`
		RetryBase       time.Duration `yaml:"retry_base"`
		RetryCap        time.Duration `yaml:"retry_cap"`
		RetryBudget     time.Duration `yaml:"retry_budget"`
		RetryJitter     float64       `yaml:"retry_jitter"`
		DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
		ReceiverURL     string        `yaml:"receiver_url"`
	} `yaml:"dispatch"`

	Receiver struct {
		DedupCapacity  int           `yaml:"dedup_capacity"`
		DedupTTL       time.Duration `yaml:"dedup_ttl"`
		PersistTimeout time.Duration `yaml:"persist_timeout"`
	} `yaml:"receiver"`

	Persistence struct {
		Backend          string        `yaml:"backend"`
		AWSRegion        string        `yaml:"aws_region"`
		S3Bucket         string        `yaml:"s3_bucket"`
		S3Prefix         string        `yaml:"s3_prefix"`
		LogBatchSize     int           `yaml:"log_batch_size"`
		LogFlushInterval time.Duration `yaml:"log_flush_interval"`
	} `yaml:"persistence"`

	DeadLetter struct {
		Dir        string `yaml:"dir"`
		MaxBytes   int64  `yaml:"max_bytes"`
		S3Prefix   string `yaml:"s3_prefix"`
		KafkaTopic string `yaml:"kafka_topic"`
	} `yaml:"deadletter"`
}

func loadTuning(path string) (*Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var t Tuning
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &t, nil
}

// apply copies every non-zero field onto cfg.
func (t *Tuning) apply(cfg *Config) {
	setStr(&cfg.HTTPAddr, t.HTTPAddr)
	setStr(&cfg.LogLevel, t.LogLevel)
	setNum(&cfg.MaxBodySize, t.MaxBodySize)
	setNum(&cfg.AdapterTimeout, t.AdapterTimeout)

	setNum(&cfg.Backlog, t.Dispatch.Backlog)
	setNum(&cfg.RetryBase, t.Dispatch.RetryBase)
	setNum(&cfg.RetryCap, t.Dispatch.RetryCap)
	setNum(&cfg.RetryBudget, t.Dispatch.RetryBudget)
	setNum(&cfg.RetryJitter, t.Dispatch.RetryJitter)
	setNum(&cfg.DeliveryTimeout, t.Dispatch.DeliveryTimeout)
	setStr(&cfg.ReceiverURL, t.Dispatch.ReceiverURL)

	setNum(&cfg.DedupCapacity, t.Receiver.DedupCapacity)
	setNum(&cfg.DedupTTL, t.Receiver.DedupTTL)
	setNum(&cfg.PersistTimeout, t.Receiver.PersistTimeout)

	setStr(&cfg.PersistenceBackend, t.Persistence.Backend)
	setStr(&cfg.AWSRegion, t.Persistence.AWSRegion)
	setStr(&cfg.S3Bucket, t.Persistence.S3Bucket)
	setStr(&cfg.S3Prefix, t.Persistence.S3Prefix)
	setNum(&cfg.LogBatchSize, t.Persistence.LogBatchSize)
	setNum(&cfg.LogFlushInterval, t.Persistence.LogFlushInterval)

	setStr(&cfg.DeadLetterDir, t.DeadLetter.Dir)
	setNum(&cfg.DeadLetterMaxBytes, t.DeadLetter.MaxBytes)
	setStr(&cfg.DeadLetterS3Prefix, t.DeadLetter.S3Prefix)
	setStr(&cfg.KafkaDeadLetterTopic, t.DeadLetter.KafkaTopic)
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setNum[T int | int64 | float64 | time.Duration](dst *T, v T) {
	if v != 0 {
		*dst = v
	}
}
