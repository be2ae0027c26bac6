package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Gemini AI
	GeminiAPIKey         string
	GeminiModel          string
	GeminiConcurrentReqs int

	// Media tools
	FFmpegPath  string
	FFprobePath string

	// Storage (scratch space for the active session only)
	StoragePath string

	// Processing limits
	MaxVideoMB      int64
	MaxVideoSeconds float64
	MaxFrames       int
	ExtractWorkers  int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		Env:                  getEnvOrDefault("ENV", "development"),
		GeminiAPIKey:         mustGetEnv("GEMINI_API_KEY"),
		GeminiModel:          getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiConcurrentReqs: getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),
		FFmpegPath:           getEnvOrDefault("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:          getEnvOrDefault("FFPROBE_PATH", "ffprobe"),
		StoragePath:          getEnvOrDefault("STORAGE_PATH", "./uploads"),
		MaxVideoMB:           int64(getEnvAsIntOrDefault("MAX_VIDEO_MB", 200)),
		MaxVideoSeconds:      float64(getEnvAsIntOrDefault("MAX_VIDEO_SECONDS", 120)),
		MaxFrames:            getEnvAsIntOrDefault("MAX_FRAMES", 10),
		ExtractWorkers:       getEnvAsIntOrDefault("EXTRACT_WORKERS", 4),
		FrontendURL:          getEnvOrDefault("FRONTEND_URL", "http://localhost:9002"),
	}

	return cfg
}

// MaxVideoBytes is the upload size cap derived from MaxVideoMB.
func (c *Config) MaxVideoBytes() int64 {
	return c.MaxVideoMB * 1024 * 1024
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
