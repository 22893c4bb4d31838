// Package config loads process settings from the environment, an optional
// .env file and an optional YAML file named by CONFIG_FILE. Environment
// variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port           string
	PostgresURL    string
	MigrationsPath string

	KafkaBrokers     []string
	OrderEventsTopic string
	ConsumerGroup    string

	AccessTokenSecret string

	PaymentProvider     string
	PaystackSecretKey   string
	PaystackBaseURL     string
	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string
	ClientURL           string

	PublicBaseURL string
	InvoiceDir    string

	EmailServiceURL string
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	SMTPFrom        string

	OTLPEndpoint   string
	ServiceVersion string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int

	v *viper.Viper
}

var defaults = map[string]any{
	"port":                        "8080",
	"postgres_url":                "",
	"migrations_path":             "file://migrations",
	"kafka_brokers":               "",
	"order_events_topic":          "order.events",
	"consumer_group":              "order-epilogue",
	"access_token_secret":         "",
	"payment_provider":            "paystack",
	"paystack_secret_key":         "",
	"paystack_base_url":           "",
	"stripe_secret_key":           "",
	"stripe_webhook_secret":       "",
	"currency":                    "NGN",
	"client_url":                  "http://localhost:3000",
	"public_base_url":             "http://localhost:8080",
	"invoice_dir":                 "invoices",
	"email_service_url":           "",
	"smtp_host":                   "",
	"smtp_port":                   587,
	"smtp_username":               "",
	"smtp_password":               "",
	"smtp_from":                   "no-reply@shoplux.local",
	"otel_exporter_otlp_endpoint": "localhost:4317",
	"service_version":             "dev",
	"outbox_poll_interval":        "1s",
	"outbox_batch_size":           100,
}

// Load reads the configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	return &Config{
		Port:                v.GetString("port"),
		PostgresURL:         v.GetString("postgres_url"),
		MigrationsPath:      v.GetString("migrations_path"),
		KafkaBrokers:        splitList(v.GetString("kafka_brokers")),
		OrderEventsTopic:    v.GetString("order_events_topic"),
		ConsumerGroup:       v.GetString("consumer_group"),
		AccessTokenSecret:   v.GetString("access_token_secret"),
		PaymentProvider:     strings.ToLower(v.GetString("payment_provider")),
		PaystackSecretKey:   v.GetString("paystack_secret_key"),
		PaystackBaseURL:     v.GetString("paystack_base_url"),
		StripeSecretKey:     v.GetString("stripe_secret_key"),
		StripeWebhookSecret: v.GetString("stripe_webhook_secret"),
		Currency:            v.GetString("currency"),
		ClientURL:           v.GetString("client_url"),
		PublicBaseURL:       v.GetString("public_base_url"),
		InvoiceDir:          v.GetString("invoice_dir"),
		EmailServiceURL:     v.GetString("email_service_url"),
		SMTPHost:            v.GetString("smtp_host"),
		SMTPPort:            v.GetInt("smtp_port"),
		SMTPUsername:        v.GetString("smtp_username"),
		SMTPPassword:        v.GetString("smtp_password"),
		SMTPFrom:            v.GetString("smtp_from"),
		OTLPEndpoint:        v.GetString("otel_exporter_otlp_endpoint"),
		ServiceVersion:      v.GetString("service_version"),
		OutboxPollInterval:  v.GetDuration("outbox_poll_interval"),
		OutboxBatchSize:     v.GetInt("outbox_batch_size"),
		v:                   v,
	}, nil
}

// Require reports every listed key that has no value, named the way it is
// set in the environment.
func (c *Config) Require(keys ...string) error {
	var missing []string
	for _, key := range keys {
		if strings.TrimSpace(c.v.GetString(key)) == "" {
			missing = append(missing, strings.ToUpper(key))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// PaymentSecrets lists the keys the selected payment provider needs.
func (c *Config) PaymentSecrets() []string {
	if c.PaymentProvider == "stripe" {
		return []string{"stripe_secret_key", "stripe_webhook_secret"}
	}
	return []string{"paystack_secret_key"}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
