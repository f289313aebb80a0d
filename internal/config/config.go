package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Foundry/internal/domain"
	"github.com/shaiso/Foundry/internal/recurring"
	"github.com/shaiso/Foundry/internal/registry"
)

// Переменные окружения, перекрывающие файл конфигурации.
const (
	EnvHTTPAddr         = "FOUNDRY_HTTP_ADDR"
	EnvDBURL            = "DB_URL"
	EnvRabbitMQURL      = "RABBITMQ_URL"
	EnvSQLitePath       = "FOUNDRY_SQLITE_PATH"
	EnvQualityThreshold = "FOUNDRY_QUALITY_THRESHOLD"
)

// Config — конфигурация foundry-server.
type Config struct {
	// HTTPAddr — адрес HTTP API (default: ":8080").
	HTTPAddr string `yaml:"http_addr"`

	// Workers — workers, регистрируемые при старте.
	Workers []domain.WorkerDescriptor `yaml:"workers"`

	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Archive      ArchiveConfig      `yaml:"archive"`
	MQ           MQConfig           `yaml:"mq"`

	// Schedules — периодические job.
	Schedules []recurring.Schedule `yaml:"schedules"`
}

// PipelineConfig — параметры стадий.
type PipelineConfig struct {
	// MinStageDelay, MaxStageDelay — диапазон задержки имитируемых стадий.
	MinStageDelay time.Duration `yaml:"min_stage_delay"`
	MaxStageDelay time.Duration `yaml:"max_stage_delay"`

	// QualityThreshold — порог QUALITY_ASSURANCE в [0, 1]; 0 отключает проверку.
	QualityThreshold float64 `yaml:"quality_threshold"`

	// Webhooks — стадии, делегированные внешним сервисам (имя стадии → URL).
	Webhooks map[domain.StageName]string `yaml:"webhooks"`

	// WebhookTimeout — таймаут HTTP-вызова стадии.
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`
}

// OrchestratorConfig — параметры dispatch.
type OrchestratorConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	RecentLimit    int           `yaml:"recent_limit"`
	ArchiveTimeout time.Duration `yaml:"archive_timeout"`
}

// ArchiveConfig — хранилища завершённых job.
// Memory включён всегда; остальные — если задан адрес.
type ArchiveConfig struct {
	MemoryCapacity int    `yaml:"memory_capacity"`
	PostgresURL    string `yaml:"postgres_url"`
	SQLitePath     string `yaml:"sqlite_path"`
}

// MQConfig — RabbitMQ.
type MQConfig struct {
	// URL — адрес брокера. Пустой — брокер не используется.
	URL string `yaml:"url"`

	// ConsumeSubmitted — принимать job из очереди jobs.submitted.
	ConsumeSubmitted bool `yaml:"consume_submitted"`

	// PublishCompleted — публиковать job.completed.
	PublishCompleted bool `yaml:"publish_completed"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	return &Config{
		HTTPAddr: ":8080",
		Pipeline: PipelineConfig{
			MinStageDelay:    time.Second,
			MaxStageDelay:    3 * time.Second,
			QualityThreshold: 0.8,
			WebhookTimeout:   30 * time.Second,
		},
		Orchestrator: OrchestratorConfig{
			PollInterval:   time.Second,
			RecentLimit:    1000,
			ArchiveTimeout: 5 * time.Second,
		},
		Archive: ArchiveConfig{
			MemoryCapacity: 500,
		},
		MQ: MQConfig{
			ConsumeSubmitted: true,
			PublishCompleted: true,
		},
	}
}

// Load читает конфигурацию: defaults → YAML-файл (если path не пустой) → env.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode накладывает YAML поверх текущих значений. Неизвестные поля — ошибка.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ApplyEnv перекрывает поля из переменных окружения.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvHTTPAddr); ok && v != "" {
		c.HTTPAddr = v
	}
	if v, ok := lookup(EnvDBURL); ok && v != "" {
		c.Archive.PostgresURL = v
	}
	if v, ok := lookup(EnvRabbitMQURL); ok && v != "" {
		c.MQ.URL = v
	}
	if v, ok := lookup(EnvSQLitePath); ok && v != "" {
		c.Archive.SQLitePath = v
	}
	if v, ok := lookup(EnvQualityThreshold); ok && v != "" {
		threshold, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvQualityThreshold, err)
		}
		c.Pipeline.QualityThreshold = threshold
	}
	return nil
}

// Validate проверяет конфигурацию целиком.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("%w: http_addr is required", ErrInvalidConfig)
	}

	p := c.Pipeline
	if !(p.QualityThreshold >= 0 && p.QualityThreshold <= 1) {
		return fmt.Errorf("%w: quality_threshold must be in [0, 1]", ErrInvalidConfig)
	}
	if p.MinStageDelay < 0 || p.MaxStageDelay < p.MinStageDelay {
		return fmt.Errorf("%w: stage delay range is invalid", ErrInvalidConfig)
	}
	for stage, url := range p.Webhooks {
		if url == "" {
			return fmt.Errorf("%w: webhook url for %s is empty", ErrInvalidConfig, stage)
		}
	}

	if c.Orchestrator.RecentLimit < 0 {
		return fmt.Errorf("%w: recent_limit must be >= 0", ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(c.Workers))
	for _, w := range c.Workers {
		if w.ID == "" || w.MaxConcurrentJobs < 1 {
			return fmt.Errorf("%w: worker %q: %v", ErrInvalidConfig, w.ID, registry.ErrInvalidWorker)
		}
		if seen[w.ID] {
			return fmt.Errorf("%w: duplicate worker %q", ErrInvalidConfig, w.ID)
		}
		seen[w.ID] = true
	}

	names := make(map[string]bool, len(c.Schedules))
	for i := range c.Schedules {
		s := &c.Schedules[i]
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if names[s.Name] {
			return fmt.Errorf("%w: duplicate schedule %q", ErrInvalidConfig, s.Name)
		}
		names[s.Name] = true
	}

	return nil
}
