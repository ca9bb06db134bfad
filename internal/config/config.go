package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration.
type Config struct {
	Server        ServerConfig        `json:"server"`
	Database      DatabaseConfig      `json:"database"`
	Scheduler     SchedulerConfig     `json:"scheduler"`
	Workflow      WorkflowConfig      `json:"workflow"`
	Notifications NotificationsConfig `json:"notifications"`
	Logging       LoggingConfig       `json:"logging"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DatabaseConfig represents database configuration. InMemory selects the
// in-process repository for development and testing.
type DatabaseConfig struct {
	InMemory bool   `json:"in_memory"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

// SchedulerConfig holds the sweep cadences. Cron expressions are operational
// tuning parameters, never hard-coded by the engine.
type SchedulerConfig struct {
	EffectiveSweepCron string `json:"effective_sweep_cron"`
	TimeoutSweepCron   string `json:"timeout_sweep_cron"`
	ReviewSweepCron    string `json:"review_sweep_cron"`
	ObsolescencePolicy string `json:"obsolescence_policy"`
}

// WorkflowConfig holds the SLA durations and the default periodic review
// horizon applied on activation.
type WorkflowConfig struct {
	ReviewSLA              time.Duration `json:"review_sla"`
	ApprovalSLA            time.Duration `json:"approval_sla"`
	PeriodicReviewInterval time.Duration `json:"periodic_review_interval"`
}

// NotificationsConfig wires the outbound event sinks. Empty values leave the
// corresponding dispatcher unconfigured; the logging dispatcher is always on.
type NotificationsConfig struct {
	WebhookURL  string `json:"webhook_url"`
	SNSTopicARN string `json:"sns_topic_arn"`
	AWSRegion   string `json:"aws_region"`
}

// LoggingConfig selects the zap log level.
type LoggingConfig struct {
	Level string `json:"level"`
}

// Load reads configuration from an optional JSON file and overrides it with
// environment variables. A .env file in the working directory is honored.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    os.Getenv("USER"),
			DBName:  "document_control",
			SSLMode: "disable",
		},
		Scheduler: SchedulerConfig{
			EffectiveSweepCron: "0 * * * *",
			TimeoutSweepCron:   "0 */4 * * *",
			ReviewSweepCron:    "30 2 * * *",
			ObsolescencePolicy: "flag",
		},
		Workflow: WorkflowConfig{
			ReviewSLA:              72 * time.Hour,
			ApprovalSLA:            120 * time.Hour,
			PeriodicReviewInterval: 2 * 365 * 24 * time.Hour,
		},
		Logging: LoggingConfig{Level: "info"},
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	overrideWithEnv(config)

	return config, nil
}

func overrideWithEnv(config *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if v := os.Getenv("DATABASE_IN_MEMORY"); v != "" {
		config.Database.InMemory = v == "true" || v == "1"
	}
	if dbHost := os.Getenv("DATABASE_HOST"); dbHost != "" {
		config.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DATABASE_PORT"); dbPort != "" {
		if p, err := strconv.Atoi(dbPort); err == nil {
			config.Database.Port = p
		}
	}
	if dbUser := os.Getenv("DATABASE_USER"); dbUser != "" {
		config.Database.User = dbUser
	}
	if dbPass := os.Getenv("DATABASE_PASSWORD"); dbPass != "" {
		config.Database.Password = dbPass
	}
	if dbName := os.Getenv("DATABASE_DBNAME"); dbName != "" {
		config.Database.DBName = dbName
	}
	if expr := os.Getenv("SCHEDULER_EFFECTIVE_SWEEP_CRON"); expr != "" {
		config.Scheduler.EffectiveSweepCron = expr
	}
	if expr := os.Getenv("SCHEDULER_TIMEOUT_SWEEP_CRON"); expr != "" {
		config.Scheduler.TimeoutSweepCron = expr
	}
	if expr := os.Getenv("SCHEDULER_REVIEW_SWEEP_CRON"); expr != "" {
		config.Scheduler.ReviewSweepCron = expr
	}
	if policy := os.Getenv("SCHEDULER_OBSOLESCENCE_POLICY"); policy != "" {
		config.Scheduler.ObsolescencePolicy = policy
	}
	if d := durationEnv("WORKFLOW_REVIEW_SLA"); d > 0 {
		config.Workflow.ReviewSLA = d
	}
	if d := durationEnv("WORKFLOW_APPROVAL_SLA"); d > 0 {
		config.Workflow.ApprovalSLA = d
	}
	if d := durationEnv("WORKFLOW_PERIODIC_REVIEW_INTERVAL"); d > 0 {
		config.Workflow.PeriodicReviewInterval = d
	}
	if url := os.Getenv("NOTIFICATIONS_WEBHOOK_URL"); url != "" {
		config.Notifications.WebhookURL = url
	}
	if arn := os.Getenv("NOTIFICATIONS_SNS_TOPIC_ARN"); arn != "" {
		config.Notifications.SNSTopicARN = arn
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		config.Notifications.AWSRegion = region
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

func durationEnv(name string) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

// GetDatabaseURL returns the Postgres connection string.
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the listen address.
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
