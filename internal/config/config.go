package config

import (
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendKafka    = "kafka"
)

type Auth struct {
	IngestSecret string
	// Tokens maps an identity token to "admin" or "shop:<shopID>".
	Tokens map[string]string
}

type Cache struct {
	Backend  string
	Cap      int
	MaxShops int
}

type Redis struct {
	Addr     string
	Password string
	DB       int
	// TTL is refreshed on every write; zero keeps keys forever.
	TTL time.Duration
}

type Stream struct {
	KeepAlive       time.Duration
	QueueSize       int
	MaxConnsPerShop int
}

type Kafka struct {
	Brokers    []string
	Topic      string
	RetryTopic string
	Group      string
	Workers    int
	Partitions int
}

func (k Kafka) Enabled() bool { return len(k.Brokers) > 0 }

type Postgres struct {
	Host     string
	Port     string
	DB       string
	User     string
	Password string
	SSLMode  string
}

func (p Postgres) Enabled() bool { return p.Host != "" }

type RetryQueue struct {
	Backend       string
	DrainInterval time.Duration
	MaxAttempts   int
	Batch         int
}

type Breaker struct {
	Threshold   uint32
	OpenTimeout time.Duration
	MaxHalfOpen uint32
}

type Retry struct {
	Attempts     int
	Base         time.Duration
	Max          time.Duration
	JitterFactor float64
}

// Viewer configures cmd/viewer.
type Viewer struct {
	ServerURL string
	Token     string
	ShopID    string
}

type Config struct {
	Env      string
	HTTPAddr string

	// Shops is the static shop directory: display name -> shop id.
	Shops map[string]string

	Auth       Auth
	Cache      Cache
	Redis      Redis
	Stream     Stream
	Pg         Postgres
	Kafka      Kafka
	RetryQueue RetryQueue
	Breaker    Breaker
	Retry      Retry
	Viewer     Viewer
}

// Load keeps the original API and fatals on error for simplicity in main().
func Load() Config {
	cfg, err := load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	return cfg
}

// LoadViewer reads only the viewer settings, so cmd/viewer runs without the
// server's secrets.
func LoadViewer() (Viewer, error) {
	_ = godotenv.Load("env/.env")

	v := viewerFromEnv()
	var missing []string
	if v.Token == "" {
		missing = append(missing, "VIEWER_TOKEN")
	}
	if v.ShopID == "" {
		missing = append(missing, "VIEWER_SHOP_ID")
	}
	if len(missing) > 0 {
		return Viewer{}, &missingEnvError{Keys: missing}
	}
	return v, nil
}

func viewerFromEnv() Viewer {
	return Viewer{
		ServerURL: envDefault("VIEWER_SERVER", "http://localhost:8081"),
		Token:     strings.TrimSpace(os.Getenv("VIEWER_TOKEN")),
		ShopID:    strings.TrimSpace(os.Getenv("VIEWER_SHOP_ID")),
	}
}

func load() (Config, error) {
	_ = godotenv.Load("env/.env")

	cfg := Config{
		Env:      envDefault("APP_ENV", "production"),
		HTTPAddr: envDefault("HTTP_ADDR", ":8081"),
		Shops:    splitPairs(os.Getenv("SHOPS")),

		Auth: Auth{
			IngestSecret: strings.TrimSpace(os.Getenv("INGEST_SECRET")),
			Tokens:       splitPairs(os.Getenv("AUTH_TOKENS")),
		},

		Cache: Cache{
			Backend:  strings.ToLower(envDefault("CACHE_BACKEND", BackendMemory)),
			Cap:      envInt("CACHE_CAP", 1000),
			MaxShops: envInt("CACHE_MAX_SHOPS", 1024),
		},

		Redis: Redis{
			Addr:     envDefault("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envInt("REDIS_DB", 0),
			TTL:      envDurationMS("REDIS_TTL", 24*time.Hour),
		},

		Stream: Stream{
			KeepAlive:       envDurationMS("STREAM_KEEPALIVE", 30*time.Second),
			QueueSize:       envInt("STREAM_QUEUE_SIZE", 64),
			MaxConnsPerShop: envInt("STREAM_MAX_CONNS_PER_SHOP", 20),
		},

		Pg: Postgres{
			Host:     strings.TrimSpace(os.Getenv("PG_HOST")),
			Port:     strings.TrimSpace(envDefault("PG_PORT", "5432")),
			DB:       strings.TrimSpace(os.Getenv("PG_DB")),
			User:     strings.TrimSpace(os.Getenv("PG_USER")),
			Password: strings.TrimSpace(os.Getenv("PG_PASSWORD")),
			SSLMode:  strings.TrimSpace(envDefault("PG_SSLMODE", "disable")),
		},

		Kafka: Kafka{
			Brokers:    splitCSV(strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))),
			Topic:      envDefault("KAFKA_TOPIC", "orders"),
			RetryTopic: envDefault("KAFKA_RETRY_TOPIC", "orders_retry"),
			Group:      envDefault("KAFKA_GROUP", "orderfeed"),
			Workers:    envInt("KAFKA_WORKERS", 4),
			Partitions: envInt("KAFKA_PARTITIONS", 3),
		},

		RetryQueue: RetryQueue{
			Backend:       strings.ToLower(envDefault("RETRY_QUEUE_BACKEND", BackendMemory)),
			DrainInterval: envDurationMS("RETRY_QUEUE_DRAIN_INTERVAL", 30*time.Second),
			MaxAttempts:   envInt("RETRY_QUEUE_MAX_ATTEMPTS", 10),
			Batch:         envInt("RETRY_QUEUE_BATCH", 50),
		},

		Breaker: Breaker{
			Threshold:   envUint32("BREAKER_THRESHOLD", 5),
			OpenTimeout: envDurationMS("BREAKER_OPENTIMEOUT", 10*time.Second),
			MaxHalfOpen: envUint32("BREAKER_MAXHALFOPEN", 3),
		},

		Retry: Retry{
			Attempts:     envInt("RETRY_ATTEMPTS", 5),
			Base:         envDurationMS("RETRY_BASE", 100*time.Millisecond),
			Max:          envDurationMS("RETRY_MAX", 5*time.Second),
			JitterFactor: envFloat64("RETRY_JITTERFACTOR", 0.3),
		},

		Viewer: viewerFromEnv(),
	}

	// Validate required envs and basic sanity.
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	cfg.adjust()
	return cfg, nil
}

func (c Config) validate() error {
	var missing []string
	if c.Auth.IngestSecret == "" {
		missing = append(missing, "INGEST_SECRET")
	}
	if c.RetryQueue.Backend == BackendPostgres && !c.Pg.Enabled() {
		missing = append(missing, "PG_HOST")
	}
	if c.RetryQueue.Backend == BackendKafka && !c.Kafka.Enabled() {
		missing = append(missing, "KAFKA_BROKERS")
	}
	if c.Pg.Enabled() {
		req := map[string]string{
			"PG_DB":       c.Pg.DB,
			"PG_USER":     c.Pg.User,
			"PG_PASSWORD": c.Pg.Password,
		}
		for k, v := range req {
			if strings.TrimSpace(v) == "" {
				missing = append(missing, k)
			}
		}
	}
	if len(missing) > 0 {
		return &missingEnvError{Keys: missing}
	}

	switch c.Cache.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("CACHE_BACKEND %q is not one of memory, redis", c.Cache.Backend)
	}
	switch c.RetryQueue.Backend {
	case BackendMemory, BackendPostgres, BackendKafka:
	default:
		return fmt.Errorf("RETRY_QUEUE_BACKEND %q is not one of memory, postgres, kafka", c.RetryQueue.Backend)
	}
	for token, v := range c.Auth.Tokens {
		if v != "admin" && !strings.HasPrefix(v, "shop:") {
			return fmt.Errorf("AUTH_TOKENS: token %q has role %q, want admin or shop:<id>", mask(token), v)
		}
	}
	return nil
}

func (c *Config) adjust() {
	if c.Cache.Cap <= 0 {
		log.Printf("CACHE_CAP is %d, adjusting to 1", c.Cache.Cap)
		c.Cache.Cap = 1
	}
	if c.Stream.QueueSize <= 0 {
		log.Printf("STREAM_QUEUE_SIZE is %d, adjusting to 1", c.Stream.QueueSize)
		c.Stream.QueueSize = 1
	}
	if c.Stream.KeepAlive <= 0 {
		log.Printf("STREAM_KEEPALIVE is %v, adjusting to 30s", c.Stream.KeepAlive)
		c.Stream.KeepAlive = 30 * time.Second
	}
	if c.Retry.Attempts < 0 {
		log.Printf("RETRY_ATTEMPTS is %d, adjusting to 0", c.Retry.Attempts)
		c.Retry.Attempts = 0
	}
	if c.Retry.Base <= 0 {
		log.Printf("RETRY_BASE is %v, adjusting to 100ms", c.Retry.Base)
		c.Retry.Base = 100 * time.Millisecond
	}
	if c.Retry.Max < c.Retry.Base {
		log.Printf("RETRY_MAX (%v) < RETRY_BASE (%v), adjusting max to base", c.Retry.Max, c.Retry.Base)
		c.Retry.Max = c.Retry.Base
	}
	if c.RetryQueue.MaxAttempts <= 0 {
		log.Printf("RETRY_QUEUE_MAX_ATTEMPTS is %d, adjusting to 1", c.RetryQueue.MaxAttempts)
		c.RetryQueue.MaxAttempts = 1
	}
	if c.RetryQueue.Batch <= 0 {
		log.Printf("RETRY_QUEUE_BATCH is %d, adjusting to 50", c.RetryQueue.Batch)
		c.RetryQueue.Batch = 50
	}
	if c.RetryQueue.DrainInterval <= 0 {
		log.Printf("RETRY_QUEUE_DRAIN_INTERVAL is %v, adjusting to 30s", c.RetryQueue.DrainInterval)
		c.RetryQueue.DrainInterval = 30 * time.Second
	}
}

type missingEnvError struct{ Keys []string }

func (e *missingEnvError) Error() string {
	return "missing required envs: " + strings.Join(e.Keys, ", ")
}

// DSN builds a proper Postgres URL, safely escaping user/pass and query.
func (c Config) DSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Pg.User, c.Pg.Password),
		Host:   net.JoinHostPort(c.Pg.Host, c.Pg.Port),
		Path:   "/" + c.Pg.DB,
	}
	q := url.Values{}
	if c.Pg.SSLMode != "" {
		q.Set("sslmode", c.Pg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func envDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using default %d: %v", k, v, def, err)
		return def
	}
	return n
}

func envUint32(k string, def uint32) uint32 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	u, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		log.Printf("invalid %s=%q, using default %d: %v", k, v, def, err)
		return def
	}
	return uint32(u)
}

func envFloat64(k string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using default %.3f: %v", k, v, def, err)
		return def
	}
	return f
}

// envDurationMS supports either plain integer milliseconds ("1500") or
// Go duration strings ("1.5s", "250ms", "2m").
func envDurationMS(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if strings.IndexFunc(v, func(r rune) bool { return r < '0' || r > '9' }) != -1 {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Printf("invalid %s=%q, using default %v: %v", k, v, def, err)
			return def
		}
		return d
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using default %v: %v", k, v, def, err)
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// splitPairs parses "k1=v1,k2=v2". Entries without '=' are skipped.
func splitPairs(s string) map[string]string {
	out := make(map[string]string)
	for _, p := range splitCSV(strings.TrimSpace(s)) {
		k, v, ok := strings.Cut(p, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			log.Printf("skipping malformed pair %q", p)
			continue
		}
		out[k] = v
	}
	return out
}

func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}
