package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	StorageSupabase = "supabase"
	StorageS3       = "s3"
	StorageNone     = "none"
)

type Config struct {
	// Supabase
	SupabaseURL            string
	SupabasePublishableKey string
	SupabaseJWTSecret      string
	SupabaseJWTAudience    string
	SupabaseStorageBucket  string

	// Object storage
	StorageBackend string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3PublicURL    string

	// Language models
	VisionProvider     string
	CorrectionProvider string
	GoogleAPIKey       string
	GeminiVisionModel  string
	GeminiTextModel    string
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	OpenAIVisionModel  string
	OpenAITextModel    string
	AIRequestTimeout   time.Duration
	AIMaxAttempts      int

	// Billing and quotas
	TranscriptionCost    int
	CorrectionCost       int
	MaxExamPapersPerUser int
	MaxImageSizeBytes    int64
	MaxImagesPerUpload   int
	InitialCredits       int
	AIRateLimitPerMinute int

	// Database
	DatabaseURL string

	// Server
	Port               string
	Environment        string
	LogLevel           string
	CORSAllowedOrigins []string
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabasePublishableKey: getEnv("SUPABASE_PUBLISHABLE_KEY", ""),
		SupabaseJWTSecret:      getEnv("SUPABASE_JWT_SECRET", ""),
		SupabaseJWTAudience:    getEnv("SUPABASE_JWT_AUDIENCE", "authenticated"),
		SupabaseStorageBucket:  getEnv("SUPABASE_STORAGE_BUCKET", "exam-images"),

		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", StorageSupabase)),
		S3Bucket:       getEnv("S3_BUCKET", ""),
		S3Region:       getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3AccessKey:    getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("S3_SECRET_KEY", ""),
		S3PublicURL:    getEnv("S3_PUBLIC_URL", ""),

		VisionProvider:     strings.ToLower(getEnv("VISION_PROVIDER", ProviderGemini)),
		CorrectionProvider: strings.ToLower(getEnv("CORRECTION_PROVIDER", ProviderGemini)),
		GoogleAPIKey:       getEnv("GOOGLE_API_KEY", ""),
		GeminiVisionModel:  getEnv("GEMINI_VISION_MODEL", "gemini-1.5-flash"),
		GeminiTextModel:    getEnv("GEMINI_TEXT_MODEL", "gemini-1.5-flash"),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIVisionModel:  getEnv("OPENAI_VISION_MODEL", "gpt-4o-mini"),
		OpenAITextModel:    getEnv("OPENAI_TEXT_MODEL", "gpt-4o-mini"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		Port:               getEnv("PORT", "8080"),
		Environment:        getEnv("ENVIRONMENT", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
	}

	var err error
	if cfg.AIRequestTimeout, err = getDuration("AI_REQUEST_TIMEOUT", 90*time.Second); err != nil {
		return nil, err
	}
	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"AI_MAX_ATTEMPTS", 1, &cfg.AIMaxAttempts},
		{"TRANSCRIPTION_COST", 1, &cfg.TranscriptionCost},
		{"CORRECTION_COST", 1, &cfg.CorrectionCost},
		{"MAX_EXAM_PAPERS_PER_USER", 5, &cfg.MaxExamPapersPerUser},
		{"MAX_IMAGES_PER_UPLOAD", 10, &cfg.MaxImagesPerUpload},
		{"INITIAL_CREDITS", 0, &cfg.InitialCredits},
		{"AI_RATE_LIMIT_PER_MINUTE", 10, &cfg.AIRateLimitPerMinute},
	}
	for _, v := range ints {
		if *v.dst, err = getInt(v.key, v.def); err != nil {
			return nil, err
		}
	}
	maxSize, err := getInt("MAX_IMAGE_SIZE_BYTES", 10<<20)
	if err != nil {
		return nil, err
	}
	cfg.MaxImageSizeBytes = int64(maxSize)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.SupabaseJWTSecret == "" {
		return fmt.Errorf("SUPABASE_JWT_SECRET is required")
	}

	for _, p := range []string{c.VisionProvider, c.CorrectionProvider} {
		switch p {
		case ProviderGemini:
			if c.GoogleAPIKey == "" {
				return fmt.Errorf("GOOGLE_API_KEY is required for provider %q", p)
			}
		case ProviderOpenAI:
			if c.OpenAIAPIKey == "" {
				return fmt.Errorf("OPENAI_API_KEY is required for provider %q", p)
			}
		default:
			return fmt.Errorf("unsupported language model provider %q", p)
		}
	}

	switch c.StorageBackend {
	case StorageSupabase:
		if c.SupabaseURL == "" {
			return fmt.Errorf("SUPABASE_URL is required")
		}
		if c.SupabasePublishableKey == "" {
			return fmt.Errorf("SUPABASE_PUBLISHABLE_KEY is required")
		}
	case StorageS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required")
		}
	case StorageNone:
	default:
		return fmt.Errorf("unsupported storage backend %q", c.StorageBackend)
	}

	if c.TranscriptionCost < 0 || c.CorrectionCost < 0 {
		return fmt.Errorf("credit costs must not be negative")
	}
	if c.MaxExamPapersPerUser < 1 {
		return fmt.Errorf("MAX_EXAM_PAPERS_PER_USER must be at least 1")
	}
	if c.MaxImageSizeBytes < 1 || c.MaxImagesPerUpload < 1 {
		return fmt.Errorf("upload limits must be positive")
	}
	if c.AIMaxAttempts < 1 {
		return fmt.Errorf("AI_MAX_ATTEMPTS must be at least 1")
	}
	if c.InitialCredits < 0 {
		return fmt.Errorf("INITIAL_CREDITS must not be negative")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
