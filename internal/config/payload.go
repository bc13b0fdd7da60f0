package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// filePayload is the on-disk shape shared by the JSONC and YAML decoders.
// Every field is a pointer so absent keys keep their defaults.
type filePayload struct {
	Services  *filePayloadServices  `json:"services" yaml:"services"`
	Audio     *filePayloadAudio     `json:"audio" yaml:"audio"`
	Video     *filePayloadVideo     `json:"video" yaml:"video"`
	STT       *filePayloadSTT       `json:"stt" yaml:"stt"`
	Speaker   *filePayloadSpeaker   `json:"speaker" yaml:"speaker"`
	Recording *filePayloadRecording `json:"recording" yaml:"recording"`
	Indicator *filePayloadIndicator `json:"indicator" yaml:"indicator"`
	Store     *filePayloadStore     `json:"store" yaml:"store"`
	Archive   *filePayloadArchive   `json:"archive" yaml:"archive"`
	Live      *filePayloadLive      `json:"live" yaml:"live"`
	Serve     *filePayloadServe     `json:"serve" yaml:"serve"`
	Debug     *filePayloadDebug     `json:"debug" yaml:"debug"`
}

type filePayloadServices struct {
	InterviewURL *string `json:"interview_url" yaml:"interview_url"`
	AnalysisURL  *string `json:"analysis_url" yaml:"analysis_url"`
	ResumeURL    *string `json:"resume_url" yaml:"resume_url"`
	TimeoutMS    *int    `json:"timeout_ms" yaml:"timeout_ms"`
}

type filePayloadAudio struct {
	Input    *string `json:"input" yaml:"input"`
	Fallback *string `json:"fallback" yaml:"fallback"`
}

type filePayloadVideo struct {
	Device     *string `json:"device" yaml:"device"`
	EncoderCmd *string `json:"encoder_cmd" yaml:"encoder_cmd"`
}

type filePayloadSTT struct {
	Enable     *bool   `json:"enable" yaml:"enable"`
	URL        *string `json:"url" yaml:"url"`
	SampleRate *int    `json:"sample_rate" yaml:"sample_rate"`
}

type filePayloadSpeaker struct {
	Enable *bool   `json:"enable" yaml:"enable"`
	Cmd    *string `json:"cmd" yaml:"cmd"`
}

type filePayloadRecording struct {
	MinRecommendedSeconds *int  `json:"min_recommended_seconds" yaml:"min_recommended_seconds"`
	SimulateDelays        *bool `json:"simulate_delays" yaml:"simulate_delays"`
}

type filePayloadIndicator struct {
	Enable         *bool   `json:"enable" yaml:"enable"`
	Backend        *string `json:"backend" yaml:"backend"`
	DesktopAppName *string `json:"desktop_app_name" yaml:"desktop_app_name"`
	SoundEnable    *bool   `json:"sound_enable" yaml:"sound_enable"`
	ErrorTimeoutMS *int    `json:"error_timeout_ms" yaml:"error_timeout_ms"`
}

type filePayloadStore struct {
	Backend     *string `json:"backend" yaml:"backend"`
	Path        *string `json:"path" yaml:"path"`
	RedisAddr   *string `json:"redis_addr" yaml:"redis_addr"`
	RedisDB     *int    `json:"redis_db" yaml:"redis_db"`
	RedisPrefix *string `json:"redis_prefix" yaml:"redis_prefix"`
}

type filePayloadArchive struct {
	Enable            *bool   `json:"enable" yaml:"enable"`
	Endpoint          *string `json:"endpoint" yaml:"endpoint"`
	Bucket            *string `json:"bucket" yaml:"bucket"`
	UseSSL            *bool   `json:"use_ssl" yaml:"use_ssl"`
	PresignTTLMinutes *int    `json:"presign_ttl_minutes" yaml:"presign_ttl_minutes"`
}

type filePayloadLive struct {
	URL             *string `json:"url" yaml:"url"`
	Mock            *bool   `json:"mock" yaml:"mock"`
	TokenTTLMinutes *int    `json:"token_ttl_minutes" yaml:"token_ttl_minutes"`
}

type filePayloadServe struct {
	Addr           *string     `json:"addr" yaml:"addr"`
	AllowedOrigins *stringList `json:"allowed_origins" yaml:"allowed_origins"`
}

type filePayloadDebug struct {
	AudioDump *bool `json:"audio_dump" yaml:"audio_dump"`
}

// stringList accepts either a list or a comma-delimited string.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = splitCommaList(single)
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*l = list
		return nil
	case yaml.ScalarNode:
		*l = splitCommaList(node.Value)
		return nil
	default:
		return fmt.Errorf("line %d: expected string list or comma-delimited string", node.Line)
	}
}

func splitCommaList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func (payload filePayload) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if s := payload.Services; s != nil {
		setString(&cfg.Services.InterviewURL, s.InterviewURL)
		setString(&cfg.Services.AnalysisURL, s.AnalysisURL)
		setString(&cfg.Services.ResumeURL, s.ResumeURL)
		setInt(&cfg.Services.TimeoutMS, s.TimeoutMS)
	}

	if a := payload.Audio; a != nil {
		setString(&cfg.Audio.Input, a.Input)
		setString(&cfg.Audio.Fallback, a.Fallback)
	}

	if v := payload.Video; v != nil {
		setString(&cfg.Video.Device, v.Device)
		if v.EncoderCmd != nil {
			command, err := commandFrom(*v.EncoderCmd, "video.encoder_cmd")
			if err != nil {
				return nil, err
			}
			cfg.Video.Encoder = command
		}
	}

	if s := payload.STT; s != nil {
		setBool(&cfg.STT.Enable, s.Enable)
		setString(&cfg.STT.URL, s.URL)
		setInt(&cfg.STT.SampleRate, s.SampleRate)
	}

	if s := payload.Speaker; s != nil {
		setBool(&cfg.Speaker.Enable, s.Enable)
		if s.Cmd != nil {
			command, err := commandFrom(*s.Cmd, "speaker.cmd")
			if err != nil {
				return nil, err
			}
			cfg.Speaker.Command = command
		}
	}

	if r := payload.Recording; r != nil {
		setInt(&cfg.Recording.MinRecommendedSeconds, r.MinRecommendedSeconds)
		setBool(&cfg.Recording.SimulateDelays, r.SimulateDelays)
		if r.SimulateDelays != nil && !*r.SimulateDelays {
			warnings = append(warnings, Warning{Message: "recording.simulate_delays=false; analysis checklist will advance without pauses"})
		}
	}

	if i := payload.Indicator; i != nil {
		setBool(&cfg.Indicator.Enable, i.Enable)
		if i.Backend != nil {
			cfg.Indicator.Backend = strings.ToLower(strings.TrimSpace(*i.Backend))
		}
		if i.DesktopAppName != nil {
			cfg.Indicator.DesktopAppName = strings.TrimSpace(*i.DesktopAppName)
		}
		setBool(&cfg.Indicator.SoundEnable, i.SoundEnable)
		setInt(&cfg.Indicator.ErrorTimeoutMS, i.ErrorTimeoutMS)
	}

	if s := payload.Store; s != nil {
		if s.Backend != nil {
			cfg.Store.Backend = strings.ToLower(strings.TrimSpace(*s.Backend))
		}
		setString(&cfg.Store.Path, s.Path)
		setString(&cfg.Store.RedisAddr, s.RedisAddr)
		setInt(&cfg.Store.RedisDB, s.RedisDB)
		setString(&cfg.Store.RedisPrefix, s.RedisPrefix)
	}

	if a := payload.Archive; a != nil {
		setBool(&cfg.Archive.Enable, a.Enable)
		setString(&cfg.Archive.Endpoint, a.Endpoint)
		setString(&cfg.Archive.Bucket, a.Bucket)
		setBool(&cfg.Archive.UseSSL, a.UseSSL)
		setInt(&cfg.Archive.PresignTTLMinutes, a.PresignTTLMinutes)
	}

	if l := payload.Live; l != nil {
		setString(&cfg.Live.URL, l.URL)
		setBool(&cfg.Live.Mock, l.Mock)
		setInt(&cfg.Live.TokenTTLMinutes, l.TokenTTLMinutes)
	}

	if s := payload.Serve; s != nil {
		setString(&cfg.Serve.Addr, s.Addr)
		if s.AllowedOrigins != nil {
			cfg.Serve.AllowedOrigins = append([]string(nil), (*s.AllowedOrigins)...)
		}
	}

	if d := payload.Debug; d != nil {
		setBool(&cfg.Debug.EnableAudioDump, d.AudioDump)
	}

	return warnings, nil
}

func commandFrom(raw string, key string) (CommandConfig, error) {
	command, err := ParseCommand(raw)
	if err != nil {
		return CommandConfig{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return command, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
