package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	CORSAllowOrigins       string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	RealtimeChannel        string
	JWTSecret              string
	JWTRefreshSecret       string
	AccessTokenTTL         time.Duration
	RefreshTokenTTL        time.Duration
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	MaterialMaxUploadMB    int
	LoginRateLimit         int
	LoginRateWindow        time.Duration
	NotificationKeepAlive  time.Duration
	OpenAIAPIKey           string
	OpenAIModel            string
	Progress               ProgressPolicy
	Exam                   ExamPolicy
	Finance                FinancePolicy
}

// ProgressPolicy tunes how weekly progress rows translate into scores and completion.
type ProgressPolicy struct {
	AttendanceWeight    float64
	AssignmentWeight    float64
	QuizWeight          float64
	ParticipationWeight float64
	// CompletionThreshold is the minimum weekly overall score that counts a week as completed.
	CompletionThreshold int
}

// ExamPolicy configures attempt limits.
type ExamPolicy struct {
	// MaxAttempts caps sequential attempts per student and exam. Zero means unlimited.
	MaxAttempts int
}

// FinancePolicy configures ledger side effects of other workflows.
type FinancePolicy struct {
	CaptureEnrollmentFees bool
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// DefaultProgressPolicy weighs every present component equally and counts a week from 50 points.
func DefaultProgressPolicy() ProgressPolicy {
	return ProgressPolicy{
		AttendanceWeight:    1,
		AssignmentWeight:    1,
		QuizWeight:          1,
		ParticipationWeight: 1,
		CompletionThreshold: 50,
	}
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("EDUPORTAL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "EduPortal API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("realtime.channel", "eduportal")
	v.SetDefault("jwt.access_ttl", "15m")
	v.SetDefault("jwt.refresh_ttl", "168h")
	v.SetDefault("cloudinary.folder", "eduportal/materials")
	v.SetDefault("materials.max_upload_mb", 25)
	v.SetDefault("auth.login_rate_limit", 10)
	v.SetDefault("auth.login_rate_window", "1m")
	v.SetDefault("notifications.keepalive", "30s")
	v.SetDefault("openai.model", "gpt-4o-mini")

	defaults := DefaultProgressPolicy()
	v.SetDefault("progress.weights.attendance", defaults.AttendanceWeight)
	v.SetDefault("progress.weights.assignment", defaults.AssignmentWeight)
	v.SetDefault("progress.weights.quiz", defaults.QuizWeight)
	v.SetDefault("progress.weights.participation", defaults.ParticipationWeight)
	v.SetDefault("progress.completion_threshold", defaults.CompletionThreshold)
	v.SetDefault("exam.max_attempts", 0)
	v.SetDefault("finance.capture_enrollment_fees", true)

	accessTTL, err := parseDuration(v, "jwt.access_ttl")
	if err != nil {
		return Config{}, err
	}
	refreshTTL, err := parseDuration(v, "jwt.refresh_ttl")
	if err != nil {
		return Config{}, err
	}
	loginWindow, err := parseDuration(v, "auth.login_rate_window")
	if err != nil {
		return Config{}, err
	}
	keepAlive, err := parseDuration(v, "notifications.keepalive")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		CORSAllowOrigins:       v.GetString("cors.allow_origins"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		RealtimeChannel:        v.GetString("realtime.channel"),
		JWTSecret:              v.GetString("jwt.secret"),
		JWTRefreshSecret:       v.GetString("jwt.refresh_secret"),
		AccessTokenTTL:         accessTTL,
		RefreshTokenTTL:        refreshTTL,
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		MaterialMaxUploadMB:    v.GetInt("materials.max_upload_mb"),
		LoginRateLimit:         v.GetInt("auth.login_rate_limit"),
		LoginRateWindow:        loginWindow,
		NotificationKeepAlive:  keepAlive,
		OpenAIAPIKey:           v.GetString("openai_api_key"),
		OpenAIModel:            v.GetString("openai.model"),
		Progress: ProgressPolicy{
			AttendanceWeight:    v.GetFloat64("progress.weights.attendance"),
			AssignmentWeight:    v.GetFloat64("progress.weights.assignment"),
			QuizWeight:          v.GetFloat64("progress.weights.quiz"),
			ParticipationWeight: v.GetFloat64("progress.weights.participation"),
			CompletionThreshold: v.GetInt("progress.completion_threshold"),
		},
		Exam: ExamPolicy{
			MaxAttempts: v.GetInt("exam.max_attempts"),
		},
		Finance: FinancePolicy{
			CaptureEnrollmentFees: v.GetBool("finance.capture_enrollment_fees"),
		},
	}

	if cfg.JWTSecret == "" || cfg.JWTRefreshSecret == "" {
		return Config{}, fmt.Errorf("jwt secrets must be provided")
	}

	if err := cfg.Progress.Validate(); err != nil {
		return Config{}, err
	}

	if cfg.Exam.MaxAttempts < 0 {
		cfg.Exam.MaxAttempts = 0
	}

	if cfg.MaterialMaxUploadMB <= 0 {
		cfg.MaterialMaxUploadMB = 25
	}

	return cfg, nil
}

// Validate rejects negative weights, an all-zero weight set and thresholds outside 0..100.
func (p ProgressPolicy) Validate() error {
	weights := []float64{p.AttendanceWeight, p.AssignmentWeight, p.QuizWeight, p.ParticipationWeight}
	total := 0.0
	for _, weight := range weights {
		if weight < 0 {
			return fmt.Errorf("progress weights must not be negative")
		}
		total += weight
	}
	if total == 0 {
		return fmt.Errorf("at least one progress weight must be positive")
	}
	if p.CompletionThreshold < 0 || p.CompletionThreshold > 100 {
		return fmt.Errorf("progress completion threshold must be between 0 and 100")
	}
	return nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
