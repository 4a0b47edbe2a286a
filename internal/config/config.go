package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

type Config struct {
	AppHost  string
	HTTPPort string
	AppEnv   string
	LogLevel string

	// StoreDriver — postgres (по умолчанию) или mongo (совместимость со старой базой бота).
	StoreDriver string

	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}

	Mongo struct {
		URI      string
		Database string
	}

	Discord struct {
		Token                  string
		GuildID                string
		ModRoleIDs             []string
		AdminRoleIDs           []string
		ClosedTicketsChannelID string
		// TelegramCategoryID — категория для каналов тикетов из Telegram.
		TelegramCategoryID string
	}

	TelegramToken string

	VK struct {
		Token   string
		GroupID string
		AlbumID string
	}

	DownloadsDir         string
	DownloadsSweep       string
	MaxConcurrentUploads int
	CloseGrace           time.Duration

	BattleMetrics struct {
		Token string
		OrgID string
	}
	SteamAPIKey string
	AdminsCfg   string

	KafkaBrokers     []string
	KafkaTopicTicket string

	// SearchServiceURL — если задан, закрытые тикеты отправляются в search-service (POST /search/index/ticket).
	SearchServiceURL string
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		AppHost:          getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort:         firstEnv("APP_PORT", "HTTP_PORT", "8098"),
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		StoreDriver:      strings.ToLower(getEnv("STORE_DRIVER", StorePostgres)),
		TelegramToken:    getEnv("TELEGRAM_TOKEN", ""),
		DownloadsDir:     getEnv("DOWNLOADS_DIR", "./downloads"),
		DownloadsSweep:   getEnv("DOWNLOADS_SWEEP", "@every 30m"),
		SteamAPIKey:      getEnv("STEAM_API_KEY", ""),
		AdminsCfg:        getEnv("ADMINS_CFG", "./admins.cfg"),
		KafkaBrokers:     getList("KAFKA_BROKERS"),
		KafkaTopicTicket: getEnv("KAFKA_TOPIC_TICKET", ""),
		SearchServiceURL: getEnv("SEARCH_SERVICE_URL", ""),
	}
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "ticket_bridge")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Mongo.URI = getEnv("MONGO_URI", "")
	cfg.Mongo.Database = getEnv("MONGO_DATABASE", "ticketBotDB")

	cfg.Discord.Token = firstEnv("DISCORD_TOKEN", "CLIENT_TOKEN", "")
	cfg.Discord.GuildID = getEnv("GUILD_ID", "")
	cfg.Discord.ModRoleIDs = getList("MOD_ROLE_IDS")
	cfg.Discord.AdminRoleIDs = getList("ADMIN_ROLE_IDS")
	cfg.Discord.ClosedTicketsChannelID = getEnv("CLOSED_TICKETS_CHANNEL_ID", "")
	cfg.Discord.TelegramCategoryID = getEnv("TELEGRAM_TICKET_CATEGORY_ID", "")

	cfg.VK.Token = getEnv("VK_TOKEN", "")
	cfg.VK.GroupID = getEnv("VK_GROUP_ID", "")
	cfg.VK.AlbumID = getEnv("VK_ALBUM_ID", "")

	cfg.BattleMetrics.Token = getEnv("BATTLEMETRICS_API_TOKEN", "")
	cfg.BattleMetrics.OrgID = getEnv("BATTLEMETRICS_ORG_ID", "")

	var err error
	if cfg.MaxConcurrentUploads, err = getInt("MAX_CONCURRENT_UPLOADS", 4); err != nil {
		return nil, err
	}
	if cfg.CloseGrace, err = getDuration("CLOSE_GRACE", 5*time.Second); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет настройки хранилища (нужны всем командам).
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StorePostgres:
		if c.DB.Host == "" || c.DB.Database == "" {
			return errors.New("config: DB_HOST and DB_DATABASE are required")
		}
		if c.AppEnv == "production" && c.DB.Password == "" {
			return errors.New("config: in production DB_PASSWORD is required")
		}
	case StoreMongo:
		if c.Mongo.URI == "" {
			return errors.New("config: MONGO_URI is required for STORE_DRIVER=mongo")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.MaxConcurrentUploads < 1 {
		return errors.New("config: MAX_CONCURRENT_UPLOADS must be positive")
	}
	return nil
}

// ValidateBots проверяет то, без чего мост не стартует.
func (c *Config) ValidateBots() error {
	var missing []string
	if c.Discord.Token == "" {
		missing = append(missing, "DISCORD_TOKEN")
	}
	if c.Discord.GuildID == "" {
		missing = append(missing, "GUILD_ID")
	}
	if len(c.Discord.ModRoleIDs) == 0 {
		missing = append(missing, "MOD_ROLE_IDS")
	}
	if c.TelegramToken == "" {
		missing = append(missing, "TELEGRAM_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: required: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	for _, k := range keysAndDef[:len(keysAndDef)-1] {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getList разбивает "a, b,c" на слайс без пустых элементов.
func getList(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
