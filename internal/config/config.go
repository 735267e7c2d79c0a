package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultCompletionBaseURL = "https://openrouter.ai/api/v1/chat/completions"
	DefaultCompletionModel   = "meta-llama/llama-3.1-8b-instruct:free"
	DefaultEmbeddingBaseURL  = "https://api.openai.com/v1/embeddings"
	DefaultEmbeddingModel    = "text-embedding-3-small"

	DefaultDBPath     = "prosa.db"
	DefaultRAGDBPath  = "prosa_rag.db"
	DefaultCollection = "base_conhecimento"

	DefaultHistoryLimit = 10
	DefaultRAGResults   = 2

	DefaultHTTPAddr = ":8080"
	DefaultLogFile  = "prosa.log"

	// Discord caps messages at 2000 characters.
	MessageLimit = 2000

	DefaultBufSize = 100
)

// SystemPrompt is the fixed assistant persona; RAG context is appended per turn.
const SystemPrompt = "Você é um assistente útil e amigável que responde em português. " +
	"Você mantém o contexto das conversas anteriores."

type Config struct {
	Discord    DiscordConfig
	Completion CompletionConfig
	Embedding  EmbeddingConfig
	Store      StoreConfig
	Bot        BotConfig
	Dashboard  DashboardConfig
	Log        LogConfig
}

type DiscordConfig struct {
	Token string
}

type CompletionConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type EmbeddingConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type StoreConfig struct {
	DBPath     string
	RAGDBPath  string
	Collection string
}

type BotConfig struct {
	HistoryLimit int
	RAGResults   int
}

type DashboardConfig struct {
	Addr          string
	AdminUser     string
	AdminPass     string
	SessionSecret string
}

type LogConfig struct {
	File  string
	Level slog.Level
}

// Load reads configuration from the environment, after loading an optional
// .env file. Missing API credentials are not fatal here: the completion and
// embedding clients degrade per call instead of crashing the process.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Discord: DiscordConfig{
			Token: getEnv("PROSA_DISCORD_TOKEN", ""),
		},
		Completion: CompletionConfig{
			APIKey:  getEnv("OPENROUTER_API_KEY", ""),
			BaseURL: getEnv("OPENROUTER_BASE_URL", DefaultCompletionBaseURL),
			Model:   getEnv("OPENROUTER_MODEL", DefaultCompletionModel),
		},
		Embedding: EmbeddingConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			BaseURL: getEnv("EMBEDDING_BASE_URL", DefaultEmbeddingBaseURL),
			Model:   getEnv("EMBEDDING_MODEL", DefaultEmbeddingModel),
		},
		Store: StoreConfig{
			DBPath:     getEnv("PROSA_DB_PATH", DefaultDBPath),
			RAGDBPath:  getEnv("PROSA_RAG_DB_PATH", DefaultRAGDBPath),
			Collection: getEnv("PROSA_COLLECTION", DefaultCollection),
		},
		Bot: BotConfig{
			HistoryLimit: getEnvAsInt("HISTORY_LIMIT", DefaultHistoryLimit),
			RAGResults:   getEnvAsInt("RAG_RESULTS", DefaultRAGResults),
		},
		Dashboard: DashboardConfig{
			Addr:          getEnv("PROSA_HTTP_ADDR", DefaultHTTPAddr),
			AdminUser:     getEnv("PROSA_ADMIN_USER", "admin"),
			AdminPass:     getEnv("PROSA_ADMIN_PASS", ""),
			SessionSecret: getEnv("PROSA_SESSION_SECRET", ""),
		},
		Log: LogConfig{
			File:  getEnv("PROSA_LOG_FILE", DefaultLogFile),
			Level: parseLogLevel(getEnv("PROSA_LOG_LEVEL", "INFO")),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
