package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Telegram TelegramConfig `yaml:"telegram"`
	Chat     ChatConfig     `yaml:"chat"`
}

type HTTPConfig struct {
	Address string `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"DATABASE_DSN"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"TOKEN_TTL" env-default:"72h"`
}

type TelegramConfig struct {
	// BotToken enables the moderator notifier when set.
	BotToken        string `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
	ModeratorChatID int64  `yaml:"moderator_chat_id" env:"TELEGRAM_MODERATOR_CHAT_ID"`
}

// ChatConfig holds the matchmaking and ledger tuning knobs.
type ChatConfig struct {
	// RoomCapacity is the default member limit for rooms that set none.
	RoomCapacity int `yaml:"room_capacity" env:"ROOM_CAPACITY" env-default:"5"`
	// MessagesPerPage is the history page size.
	MessagesPerPage int `yaml:"messages_per_page" env:"MESSAGES_PER_PAGE" env-default:"10"`
	// TopChattyRooms is how many of a user's chattiest rooms contribute
	// partners to the affinity set.
	TopChattyRooms int `yaml:"top_chatty_rooms" env:"TOP_CHATTY_ROOMS" env-default:"5"`
	// MaxSuggestions bounds question suggestions and browse listings.
	MaxSuggestions int `yaml:"max_suggestions" env:"MAX_SUGGESTIONS" env-default:"10"`
	// TranscriptLength is how many recent messages a report snapshots.
	TranscriptLength int `yaml:"transcript_length" env:"TRANSCRIPT_LENGTH" env-default:"50"`
}

// MustLoad reads the config from -config / CONFIG_PATH, falling back to
// environment variables only when no file is present.
func MustLoad() *Config {
	configPath := fetchConfigPath()

	var cfg Config
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
				panic("cannot read config: " + err.Error())
			}
			return &cfg
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		panic("cannot read config from environment: " + err.Error())
	}
	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}
	return res
}
