// Package config loads council settings from environment variables.
// cmd/councild loads a .env file first (godotenv), so every knob can live
// either in the process environment or in .env. Defaults mirror a local
// four-backend deployment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Settings is the full configuration surface of the council service.
type Settings struct {
	// Server
	ListenAddr  string
	CORSOrigins []string

	// Local completion endpoints (llama.cpp style servers)
	Stage1LocalURL    string
	ParaphraseURL     string
	ReviewerAURL      string
	ReviewerBURL      string
	LocalModelTimeout time.Duration

	// Hosted inference endpoint (stage-1 remote)
	HostedAPIURL   string
	HostedAPIToken string
	HostedModel    string

	// Hosted chat endpoint (chairman)
	ChairmanAPIURL   string
	ChairmanAPIKey   string
	ChairmanModel    string
	ChairmanTemp     float64
	ChairmanMaxToken int

	// Model labels; claim ids derive from the stage-1 labels.
	Stage1LocalLabel  string
	Stage1HostedLabel string
	ParaphraseLabel   string
	ReviewerALabel    string
	ReviewerBLabel    string
	ChairmanLabel     string

	// Stage enable flags
	EnableStage1Local  bool
	EnableStage1Hosted bool
	EnableReviewerA    bool
	EnableReviewerB    bool
	EnableChairman     bool

	// Parallelism
	ParallelStage1    bool
	ParallelReviewers bool

	// Timeouts and retry
	RequestTimeout time.Duration // whole-request deadline default
	MaxRetries     int
	RetryDelay     time.Duration

	// Generation parameters per stage
	Stage1MaxTokens       int
	Stage1Temperature     float64
	ParaphraseMaxTokens   int
	ParaphraseTemperature float64
	ReviewerMaxTokens     int
	ReviewerTemperature   float64

	// Cache
	EnableCache bool
	CacheTTL    time.Duration
	CacheDir    string

	// Observability
	EnableMetrics    bool
	SaveDebugOutputs bool
	DebugOutputDir   string
	SkipFailedModels bool
}

// Load reads settings from the environment, applying defaults for anything
// unset. It never fails; malformed numeric/boolean values fall back to their
// defaults.
func Load() *Settings {
	return &Settings{
		ListenAddr:  getStr("COUNCIL_LISTEN_ADDR", ":8000"),
		CORSOrigins: []string{getStr("COUNCIL_CORS_ORIGIN", "*")},

		Stage1LocalURL:    getStr("STAGE1_LOCAL_URL", "http://localhost:8001"),
		ParaphraseURL:     getStr("PARAPHRASE_URL", "http://localhost:8002"),
		ReviewerAURL:      getStr("REVIEWER_A_URL", "http://localhost:8003"),
		ReviewerBURL:      getStr("REVIEWER_B_URL", "http://localhost:8004"),
		LocalModelTimeout: getDur("LOCAL_MODEL_TIMEOUT", 120*time.Second),

		HostedAPIURL:   getStr("HOSTED_API_URL", "https://api-inference.huggingface.co/models"),
		HostedAPIToken: getStr("HOSTED_API_TOKEN", ""),
		HostedModel:    getStr("HOSTED_MODEL", "EleutherAI/gpt-neo-20b"),

		ChairmanAPIURL:   getStr("CHAIRMAN_API_URL", ""),
		ChairmanAPIKey:   getStr("CHAIRMAN_API_KEY", ""),
		ChairmanModel:    getStr("CHAIRMAN_MODEL", "gemini-1.5-pro"),
		ChairmanTemp:     getFloat("CHAIRMAN_TEMPERATURE", 0.3),
		ChairmanMaxToken: getInt("CHAIRMAN_MAX_TOKENS", 4096),

		Stage1LocalLabel:  getStr("STAGE1_LOCAL_LABEL", "Llama-7B"),
		Stage1HostedLabel: getStr("STAGE1_HOSTED_LABEL", "GPT-OSS-20B"),
		ParaphraseLabel:   getStr("PARAPHRASE_LABEL", "GPT-J-6B"),
		ReviewerALabel:    getStr("REVIEWER_A_LABEL", "Reviewer_A"),
		ReviewerBLabel:    getStr("REVIEWER_B_LABEL", "Reviewer_B"),
		ChairmanLabel:     getStr("CHAIRMAN_LABEL", "Gemini-1.5-Pro"),

		EnableStage1Local:  getBool("ENABLE_STAGE1_LOCAL", true),
		EnableStage1Hosted: getBool("ENABLE_STAGE1_HOSTED", true),
		EnableReviewerA:    getBool("ENABLE_REVIEWER_A", true),
		EnableReviewerB:    getBool("ENABLE_REVIEWER_B", true),
		EnableChairman:     getBool("ENABLE_CHAIRMAN", true),

		ParallelStage1:    getBool("ENABLE_PARALLEL_STAGE1", true),
		ParallelReviewers: getBool("ENABLE_PARALLEL_REVIEWERS", true),

		RequestTimeout: getDur("REQUEST_TIMEOUT", 120*time.Second),
		MaxRetries:     getInt("MAX_RETRIES", 3),
		RetryDelay:     getDur("RETRY_DELAY", 2*time.Second),

		Stage1MaxTokens:       getInt("STAGE1_MAX_TOKENS", 1024),
		Stage1Temperature:     getFloat("STAGE1_TEMPERATURE", 0.7),
		ParaphraseMaxTokens:   getInt("PARAPHRASE_MAX_TOKENS", 512),
		ParaphraseTemperature: getFloat("PARAPHRASE_TEMPERATURE", 0.5),
		ReviewerMaxTokens:     getInt("REVIEWER_MAX_TOKENS", 1024),
		ReviewerTemperature:   getFloat("REVIEWER_TEMPERATURE", 0.3),

		EnableCache: getBool("ENABLE_CACHE", true),
		CacheTTL:    getDur("CACHE_TTL", time.Hour),
		CacheDir:    getStr("CACHE_DIR", "./cache"),

		EnableMetrics:    getBool("ENABLE_METRICS", true),
		SaveDebugOutputs: getBool("SAVE_DEBUG_OUTPUTS", false),
		DebugOutputDir:   getStr("DEBUG_OUTPUT_DIR", "./debug_outputs"),
		SkipFailedModels: getBool("SKIP_FAILED_MODELS", true),
	}
}

func getStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// getDur reads a duration in whole seconds (matching the original deployment
// convention) or any Go duration string.
func getDur(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return fallback
}
