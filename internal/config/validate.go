package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	for _, service := range []struct{ key, raw string }{
		{"services.interview_url", cfg.Services.InterviewURL},
		{"services.analysis_url", cfg.Services.AnalysisURL},
		{"services.resume_url", cfg.Services.ResumeURL},
	} {
		if err := validateHTTPURL(service.key, service.raw); err != nil {
			return nil, err
		}
	}
	if cfg.Services.TimeoutMS <= 0 {
		return nil, fmt.Errorf("services.timeout_ms must be > 0")
	}

	if strings.TrimSpace(cfg.Video.Device) == "" {
		return nil, fmt.Errorf("video.device must not be empty")
	}
	if cfg.Video.Encoder.Empty() {
		return nil, fmt.Errorf("video.encoder_cmd must not be empty")
	}
	if err := checkPlaceholders("video.encoder_cmd", cfg.Video.Encoder, "device", "audio"); err != nil {
		return nil, err
	}

	if cfg.STT.Enable {
		parsed, err := url.Parse(strings.TrimSpace(cfg.STT.URL))
		if err != nil || (parsed.Scheme != "ws" && parsed.Scheme != "wss") || parsed.Host == "" {
			return nil, fmt.Errorf("stt.url must be a ws:// or wss:// URL")
		}
		if cfg.STT.SampleRate != 8000 && cfg.STT.SampleRate != 16000 {
			return nil, fmt.Errorf("stt.sample_rate must be 8000 or 16000")
		}
	}

	if cfg.Speaker.Enable && cfg.Speaker.Command.Empty() {
		return nil, fmt.Errorf("speaker.cmd must not be empty when speaker.enable=true")
	}
	if err := checkPlaceholders("speaker.cmd", cfg.Speaker.Command); err != nil {
		return nil, err
	}

	if cfg.Recording.MinRecommendedSeconds < 0 {
		return nil, fmt.Errorf("recording.min_recommended_seconds must be >= 0")
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Indicator.Backend))
	if backend != "terminal" && backend != "desktop" {
		return nil, fmt.Errorf("indicator.backend must be one of: terminal, desktop")
	}
	if backend == "desktop" && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Store.Backend)) {
	case "file":
	case "redis":
		if strings.TrimSpace(cfg.Store.RedisAddr) == "" {
			return nil, fmt.Errorf("store.redis_addr must not be empty when store.backend=redis")
		}
		if cfg.Store.RedisDB < 0 {
			return nil, fmt.Errorf("store.redis_db must be >= 0")
		}
	default:
		return nil, fmt.Errorf("store.backend must be one of: file, redis")
	}

	if cfg.Archive.Enable {
		if strings.TrimSpace(cfg.Archive.Endpoint) == "" {
			return nil, fmt.Errorf("archive.endpoint must not be empty when archive.enable=true")
		}
		if strings.TrimSpace(cfg.Archive.Bucket) == "" {
			return nil, fmt.Errorf("archive.bucket must not be empty when archive.enable=true")
		}
		if cfg.Archive.PresignTTLMinutes <= 0 {
			return nil, fmt.Errorf("archive.presign_ttl_minutes must be > 0")
		}
	}

	if !cfg.Live.Mock {
		if err := validateHTTPURL("live.url", cfg.Live.URL); err != nil {
			return nil, err
		}
	}
	if cfg.Live.TokenTTLMinutes <= 0 {
		return nil, fmt.Errorf("live.token_ttl_minutes must be > 0")
	}

	if strings.TrimSpace(cfg.Serve.Addr) == "" {
		return nil, fmt.Errorf("serve.addr must not be empty")
	}
	if len(cfg.Serve.AllowedOrigins) == 0 {
		warnings = append(warnings, Warning{Message: "serve.allowed_origins is empty; browsers will be refused by CORS"})
	}

	return warnings, nil
}

// SecretWarnings reports missing secrets for features that are switched on.
func SecretWarnings(cfg Config) []Warning {
	warnings := make([]Warning, 0)
	if cfg.STT.Enable && strings.TrimSpace(cfg.Secrets.STTAPIKey) == "" {
		warnings = append(warnings, Warning{Message: "REHEARSE_STT_API_KEY is not set; speech transcription is disabled and answers must be typed"})
	}
	if cfg.Archive.Enable && (cfg.Secrets.ArchiveAccessKey == "" || cfg.Secrets.ArchiveSecretKey == "") {
		warnings = append(warnings, Warning{Message: "archive is enabled but REHEARSE_ARCHIVE_ACCESS_KEY/REHEARSE_ARCHIVE_SECRET_KEY are not both set"})
	}
	if !cfg.Live.Mock && (cfg.Secrets.LiveKitAPIKey == "" || cfg.Secrets.LiveKitAPISecret == "") {
		warnings = append(warnings, Warning{Message: "REHEARSE_LIVEKIT_API_KEY/REHEARSE_LIVEKIT_API_SECRET are not set; live rooms need live.mock=true"})
	}
	return warnings
}

func validateHTTPURL(key string, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%s must not be empty", key)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%s must be an http:// or https:// URL", key)
	}
	return nil
}
