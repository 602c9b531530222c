package config

import (
	"fmt"
	"time"

	libconfig "github.com/md-rashed-zaman/studiosched/libs/config"
)

type Config struct {
	Service string `env:"SERVICE_NAME" env-default:"studio-service"`
	Env     string `env:"APP_ENV" env-default:"local"`
	Port    string `env:"PORT" env-default:"8083"`

	DatabaseURL string `env:"DATABASE_URL" env-required:"true"`
	Timezone    string `env:"STUDIO_TZ" env-default:"UTC"`

	Auth     Auth
	HTTP     HTTP
	Redis    Redis
	Kafka    Kafka
	Calendar Calendar
	Stripe   Stripe
	SMTP     SMTP
	Booking  Booking
}

type Auth struct {
	JWTSecret string `env:"JWT_SECRET" env-default:"dev-secret"`
	// TrustHeaders accepts X-User-Id / X-Role set by the gateway when no
	// bearer token is present.
	TrustHeaders bool `env:"AUTH_TRUST_HEADERS" env-default:"false"`
}

type HTTP struct {
	BodyLimitBytes     int64         `env:"REQUEST_BODY_LIMIT_BYTES" env-default:"1048576"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" env-default:"10s"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
	RateLimitPerMinute int           `env:"RATE_LIMIT_PER_MINUTE" env-default:"120"`
	RateLimitFailOpen  bool          `env:"RATE_LIMIT_FAIL_OPEN" env-default:"true"`
	CORSOrigins        []string      `env:"CORS_ALLOWED_ORIGINS" env-separator:","`
}

type Redis struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

type Kafka struct {
	Brokers   string        `env:"KAFKA_BROKERS"`
	GroupID   string        `env:"KAFKA_GROUP_ID" env-default:"studio-service"`
	PollEvery time.Duration `env:"OUTBOX_POLL_EVERY" env-default:"2s"`
	BatchSize int           `env:"OUTBOX_BATCH_SIZE" env-default:"50"`
}

type Calendar struct {
	Addr        string        `env:"CALENDAR_GRPC_ADDR"`
	DialTimeout time.Duration `env:"CALENDAR_DIAL_TIMEOUT" env-default:"3s"`
}

type Stripe struct {
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
}

type SMTP struct {
	Host        string `env:"SMTP_HOST" env-default:"mailpit"`
	Port        string `env:"SMTP_PORT" env-default:"1025"`
	From        string `env:"SMTP_FROM" env-default:"no-reply@studiosched.local"`
	NotifyEmail string `env:"NOTIFY_EMAIL"`
}

type Booking struct {
	LockTTL           time.Duration `env:"BOOKING_LOCK_TTL" env-default:"10s"`
	SideEffectTimeout time.Duration `env:"SIDE_EFFECT_TIMEOUT" env-default:"5s"`
	ExpirySweepEvery  time.Duration `env:"PACKAGE_EXPIRY_SWEEP_EVERY" env-default:"1m"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := libconfig.Load(&cfg); err != nil {
		return nil, err
	}
	if _, err := libconfig.Port("PORT", cfg.Port); err != nil {
		return nil, err
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Location is the studio's wall-clock zone; all session dates and times are
// interpreted in it.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("STUDIO_TZ: %w", err)
	}
	return loc, nil
}
