// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"time"

	"donation-service/internal/domain"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	DatabaseURL    string        `env:"DATABASE_URL"`
	MigrationsDir  string        `env:"MIGRATIONS_DIR" envDefault:"db/migrations"`
	AutoMigrate    bool          `env:"AUTO_MIGRATE" envDefault:"true"`
	HTTPAddr       string        `env:"HTTP_ADDR" envDefault:":8080"`
	JWTSecret      string        `env:"JWT_SECRET"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	GatewayTimeout time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"15s"`
	// ReceiptRetryDelay is the first backoff between receipt email attempts.
	ReceiptRetryDelay time.Duration `env:"RECEIPT_RETRY_DELAY" envDefault:"1s"`

	Currency          string          `env:"CURRENCY" envDefault:"INR"`
	ReceiptPrefix     string          `env:"RECEIPT_PREFIX" envDefault:"RCPT"`
	CertificatePrefix string          `env:"CERTIFICATE_PREFIX" envDefault:"80G"`
	DeductiblePercent decimal.Decimal `env:"TAX_DEDUCTIBLE_PERCENT" envDefault:"50"`

	Kafka    KafkaConfig    `envPrefix:"KAFKA_"`
	SMTP     SMTPConfig     `envPrefix:"SMTP_"`
	Midtrans MidtransConfig `envPrefix:"MIDTRANS_"`
	Archive  ArchiveConfig  `envPrefix:"ARCHIVE_"`
	Org      OrgConfig      `envPrefix:"ORG_"`
}

type KafkaConfig struct {
	BootstrapServers string `env:"BOOTSTRAP_SERVERS"`
	GroupID          string `env:"GROUP_ID" envDefault:"donation_service_group"`
	Topic            string `env:"TOPIC" envDefault:"payment_gateway_events"`
}

func (k KafkaConfig) Enabled() bool {
	return k.BootstrapServers != ""
}

type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     string `env:"PORT" envDefault:"587"`
	User     string `env:"USER"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"`
}

func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.From != ""
}

type MidtransConfig struct {
	ServerKey  string          `env:"SERVER_KEY"`
	Production bool            `env:"PRODUCTION" envDefault:"false"`
	FeePercent decimal.Decimal `env:"FEE_PERCENT" envDefault:"0"`
}

type ArchiveConfig struct {
	Bucket string `env:"BUCKET"`
	Prefix string `env:"PREFIX" envDefault:"certificates"`
	Region string `env:"REGION"`
}

func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != ""
}

type OrgConfig struct {
	Name               string `env:"NAME" envDefault:"Donation Trust"`
	Address            string `env:"ADDRESS"`
	PAN                string `env:"PAN"`
	RegistrationNumber string `env:"REGISTRATION_NUMBER"`
	RegistrationValid  string `env:"REGISTRATION_VALID"`
	Signatory          string `env:"SIGNATORY"`
	Email              string `env:"EMAIL"`
	VerifyBaseURL      string `env:"VERIFY_BASE_URL" envDefault:"http://localhost:8080"`
}

func (o OrgConfig) Organization() domain.Organization {
	return domain.Organization{
		Name:               o.Name,
		Address:            o.Address,
		PAN:                o.PAN,
		RegistrationNumber: o.RegistrationNumber,
		RegistrationValid:  o.RegistrationValid,
		Signatory:          o.Signatory,
		Email:              o.Email,
		VerifyBaseURL:      o.VerifyBaseURL,
	}
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			log.WithField("file", f).Debug("Could not load .env file.")
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DeductiblePercent.IsNegative() || c.DeductiblePercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("TAX_DEDUCTIBLE_PERCENT must be between 0 and 100, got %s", c.DeductiblePercent)
	}
	if c.GatewayTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive, got %s", c.GatewayTimeout)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// RequireDatabase fails when no database is configured.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	return nil
}
