package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./data/dripfeed.db" description:"Path to the SQLite database file"`

	// Application configuration
	ChannelsDir       string `long:"channels-dir" env:"CHANNELS_DIR" default:"./channels" description:"Directory containing channel configuration files"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"900" description:"Scheduler interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Delay gate configuration
	DelayDays     int `long:"delay-days" env:"DELAY_DAYS" default:"7" description:"Days to hold a discovered item before processing"`
	RetentionDays int `long:"retention-days" env:"RETENTION_DAYS" default:"7" description:"Days to keep completed/failed items past their scheduled date"`

	// Slot allocation configuration
	MaxSlotsPerDay  int `long:"max-slots-per-day" env:"MAX_SLOTS_PER_DAY" default:"4" description:"Maximum publishing slots per destination channel per day"`
	SlotHorizonDays int `long:"slot-horizon-days" env:"SLOT_HORIZON_DAYS" default:"30" description:"Maximum days to look ahead when allocating a slot"`

	// Transcript provider configuration
	TranscriptAPIURL  string   `long:"transcript-api-url" env:"TRANSCRIPT_API_URL" default:"https://api.supadata.ai" description:"Base URL of the transcript provider"`
	TranscriptAPIKeys []string `long:"transcript-api-key" env:"TRANSCRIPT_API_KEYS" env-delim:"," description:"Transcript provider API keys, rotated under quota pressure"`
	KeyUsageCap       int      `long:"key-usage-cap" env:"KEY_USAGE_CAP" default:"95" description:"Maximum uses per transcript API key"`
	PacingInterval    int      `long:"pacing-interval" env:"PACING_INTERVAL" default:"5" description:"Minimum seconds between transcript provider calls"`

	// Transform provider configuration
	GeminiAPIKey     string `long:"gemini-api-key" env:"GEMINI_API_KEY" description:"Gemini API key (required)" required:"true"`
	GeminiModel      string `long:"gemini-model" env:"GEMINI_MODEL" default:"gemini-2.0-flash" description:"Gemini model identifier"`
	MaxChunkChars    int    `long:"max-chunk-chars" env:"MAX_CHUNK_CHARS" default:"12000" description:"Maximum characters per transform chunk"`
	ChunkTimeout     int    `long:"chunk-timeout" env:"CHUNK_TIMEOUT" default:"300" description:"Timeout per transform chunk in seconds"`
	ChunkCooldown    int    `long:"chunk-cooldown" env:"CHUNK_COOLDOWN" default:"10" description:"Cooldown between transform chunks in seconds"`
	TitleCandidates  int    `long:"title-candidates" env:"TITLE_CANDIDATES" default:"3" description:"Number of candidate titles generated per item"`
	ItemDelaySeconds int    `long:"item-delay" env:"ITEM_DELAY" default:"30" description:"Delay between successive items in a sweep, in seconds"`

	// Job queue configuration
	JobQueueURL string `long:"job-queue-url" env:"JOB_QUEUE_URL" default:"http://localhost:8000" description:"Base URL of the downstream job queue"`
	JobQueueKey string `long:"job-queue-key" env:"JOB_QUEUE_KEY" description:"API key for the downstream job queue"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Dripfeed/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:            raw.DBPath,
		ChannelsDir:       raw.ChannelsDir,
		Port:              raw.Port,
		SchedulerInterval: raw.SchedulerInterval,
		APIAccessKey:      raw.APIAccessKey,
		DelayDays:         raw.DelayDays,
		RetentionDays:     raw.RetentionDays,
		MaxSlotsPerDay:    raw.MaxSlotsPerDay,
		SlotHorizonDays:   raw.SlotHorizonDays,
		TranscriptAPIURL:  raw.TranscriptAPIURL,
		TranscriptAPIKeys: raw.TranscriptAPIKeys,
		KeyUsageCap:       raw.KeyUsageCap,
		PacingInterval:    raw.PacingInterval,
		GeminiAPIKey:      raw.GeminiAPIKey,
		GeminiModel:       raw.GeminiModel,
		MaxChunkChars:     raw.MaxChunkChars,
		ChunkTimeout:      raw.ChunkTimeout,
		ChunkCooldown:     raw.ChunkCooldown,
		TitleCandidates:   raw.TitleCandidates,
		ItemDelaySeconds:  raw.ItemDelaySeconds,
		JobQueueURL:       raw.JobQueueURL,
		JobQueueKey:       raw.JobQueueKey,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// SetForTesting replaces the global configuration. Tests only.
func SetForTesting(cfg *Cfg) {
	globalCfg = cfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
