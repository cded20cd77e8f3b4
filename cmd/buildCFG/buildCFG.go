package buildCFG

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"

	"github.com/Eliezer-Jr/event-blossom/internal/payments"
	"github.com/Eliezer-Jr/event-blossom/internal/sms"
)

type ServerConfig struct {
	Port string
}

type RabbitConfig struct {
	Url      string
	Exchange string
	Queue    string
}

type RedisConfig struct {
	Addr     string
	DB       int
	CacheTTL time.Duration
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		port = "8080"
		log.Warn().Msg("server.port not set, defaulting to 8080")
	}
	return ServerConfig{Port: port}
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	masterDSN := cfg.GetString("database.master_dsn")
	if masterDSN == "" {
		return "", nil, nil, fmt.Errorf("database.master_dsn is required")
	}
	slaveDSNs := cfg.GetStringSlice("database.slave_dsns")

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.GetInt("database.max_open_conns"),
		MaxIdleConns:    cfg.GetInt("database.max_idle_conns"),
		ConnMaxLifetime: cfg.GetDuration("database.conn_max_lifetime"),
	}
	if opts.MaxOpenConns == 0 {
		opts.MaxOpenConns = 25
	}
	if opts.MaxIdleConns == 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime == 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}

	log.Info().Int("slaves", len(slaveDSNs)).Msg("database configuration loaded")
	return masterDSN, slaveDSNs, opts, nil
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	rc := RabbitConfig{
		Url:      cfg.GetString("rabbit.url"),
		Exchange: cfg.GetString("rabbit.exchange"),
		Queue:    cfg.GetString("rabbit.queue"),
	}
	if rc.Url == "" {
		return rc, fmt.Errorf("rabbit.url is required")
	}
	if rc.Exchange == "" {
		rc.Exchange = "registration.expiry"
	}
	if rc.Queue == "" {
		rc.Queue = "registration.expiry.queue"
	}
	log.Info().Str("exchange", rc.Exchange).Str("queue", rc.Queue).Msg("rabbit configuration loaded")
	return rc, nil
}

func BuildRedisConfig(cfg *config.Config, log *zerolog.Logger) RedisConfig {
	rc := RedisConfig{
		Addr:     cfg.GetString("redis.addr"),
		DB:       cfg.GetInt("redis.db"),
		CacheTTL: cfg.GetDuration("redis.cache_ttl"),
	}
	if rc.Addr == "" {
		rc.Addr = "localhost:6379"
		log.Warn().Msg("redis.addr not set, defaulting to localhost:6379")
	}
	if rc.CacheTTL == 0 {
		rc.CacheTTL = 30 * time.Second
	}
	return rc
}

func BuildMoolreConfig(cfg *config.Config, log *zerolog.Logger) (payments.Config, error) {
	pc := payments.Config{
		BaseURL: cfg.GetString("moolre.base_url"),
		APIUser: cfg.GetString("moolre.api_user"),
		APIKey:  cfg.GetString("moolre.api_key"),
		PubKey:  cfg.GetString("moolre.api_pubkey"),
		VASKey:  cfg.GetString("moolre.vas_key"),
	}
	if pc.BaseURL == "" {
		pc.BaseURL = "https://api.moolre.com"
	}
	if pc.APIUser == "" || pc.APIKey == "" || pc.PubKey == "" {
		return pc, fmt.Errorf("moolre api credentials are required")
	}
	log.Info().Str("base_url", pc.BaseURL).Msg("moolre configuration loaded")
	return pc, nil
}

func BuildSMSConfig(cfg *config.Config, log *zerolog.Logger) sms.Config {
	sc := sms.Config{
		BaseURL:       cfg.GetString("moolre.base_url"),
		APIUser:       cfg.GetString("moolre.api_user"),
		APIKey:        cfg.GetString("moolre.api_key"),
		PubKey:        cfg.GetString("moolre.api_pubkey"),
		VASKey:        cfg.GetString("moolre.vas_key"),
		SenderID:      cfg.GetString("sms.sender_id"),
		AccountNumber: cfg.GetString("sms.account_number"),
	}
	if sc.BaseURL == "" {
		sc.BaseURL = "https://api.moolre.com"
	}
	if sc.SenderID == "" {
		sc.SenderID = "EventBlsm"
	}
	if sc.VASKey == "" {
		log.Warn().Msg("moolre.vas_key not set, SMS notifications disabled")
	}
	return sc
}

func WebhookSecret(cfg *config.Config, log *zerolog.Logger) string {
	secret := cfg.GetString("moolre.webhook_secret")
	if secret == "" {
		log.Warn().Msg("moolre.webhook_secret not set, webhook signature check disabled")
	}
	return secret
}
