package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// Application configuration
	ChannelsDir       string
	Port              string
	SchedulerInterval int
	APIAccessKey      string

	// Delay gate configuration
	DelayDays     int
	RetentionDays int

	// Slot allocation configuration
	MaxSlotsPerDay  int
	SlotHorizonDays int

	// Transcript provider configuration
	TranscriptAPIURL  string
	TranscriptAPIKeys []string
	KeyUsageCap       int
	PacingInterval    int

	// Transform provider configuration
	GeminiAPIKey     string
	GeminiModel      string
	MaxChunkChars    int
	ChunkTimeout     int
	ChunkCooldown    int
	TitleCandidates  int
	ItemDelaySeconds int

	// Job queue configuration
	JobQueueURL string
	JobQueueKey string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
