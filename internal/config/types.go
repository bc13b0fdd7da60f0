// Package config resolves, parses, validates, and defaults rehearse configuration.
package config

// Config is the fully materialized runtime configuration used by rehearse.
type Config struct {
	Services  ServicesConfig
	Audio     AudioConfig
	Video     VideoConfig
	STT       STTConfig
	Speaker   SpeakerConfig
	Recording RecordingConfig
	Indicator IndicatorConfig
	Store     StoreConfig
	Archive   ArchiveConfig
	Live      LiveConfig
	Serve     ServeConfig
	Debug     DebugConfig
	Secrets   Secrets
}

// ServicesConfig locates the remote interview, analysis, and resume services.
type ServicesConfig struct {
	InterviewURL string
	AnalysisURL  string
	ResumeURL    string
	TimeoutMS    int
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string
	Fallback string
}

// VideoConfig controls camera capture through an external encoder command.
type VideoConfig struct {
	Device  string
	Encoder CommandConfig
}

// STTConfig controls the streaming speech recognizer.
type STTConfig struct {
	Enable     bool
	URL        string
	SampleRate int
}

// SpeakerConfig controls interviewer speech synthesis.
type SpeakerConfig struct {
	Enable  bool
	Command CommandConfig
}

// RecordingConfig controls the video-interview capture pipeline.
type RecordingConfig struct {
	MinRecommendedSeconds int
	SimulateDelays        bool
}

// IndicatorConfig controls status surfaces and audio cue behavior.
type IndicatorConfig struct {
	Enable         bool
	Backend        string
	DesktopAppName string
	SoundEnable    bool
	ErrorTimeoutMS int
}

// StoreConfig selects where bookings and resume analyses persist.
type StoreConfig struct {
	Backend     string
	Path        string
	RedisAddr   string
	RedisDB     int
	RedisPrefix string
}

// ArchiveConfig controls optional object-storage archival of recordings.
type ArchiveConfig struct {
	Enable            bool
	Endpoint          string
	Bucket            string
	UseSSL            bool
	PresignTTLMinutes int
}

// LiveConfig controls live-interview rooms.
type LiveConfig struct {
	URL             string
	Mock            bool
	TokenTTLMinutes int
}

// ServeConfig controls the local REST surface.
type ServeConfig struct {
	Addr           string
	AllowedOrigins []string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump bool
}

// Secrets are read from the environment (and .env) only, never from the config file.
type Secrets struct {
	STTAPIKey        string `envconfig:"STT_API_KEY"`
	LiveKitAPIKey    string `envconfig:"LIVEKIT_API_KEY"`
	LiveKitAPISecret string `envconfig:"LIVEKIT_API_SECRET"`
	ArchiveAccessKey string `envconfig:"ARCHIVE_ACCESS_KEY"`
	ArchiveSecretKey string `envconfig:"ARCHIVE_SECRET_KEY"`
	RedisPassword    string `envconfig:"REDIS_PASSWORD"`
	AuthToken        string `envconfig:"AUTH_TOKEN"`
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
