package config

const defaultEncoderCmd = "ffmpeg -hide_banner -loglevel error -f v4l2 -i {device} -f pulse -i {audio} " +
	"-c:v libvpx-vp9 -deadline realtime -cpu-used 8 -c:a libopus -f webm pipe:1"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	speaker := "espeak-ng --stdin"

	return Config{
		Services: ServicesConfig{
			InterviewURL: "http://localhost:8080",
			AnalysisURL:  "http://localhost:5000",
			ResumeURL:    "http://localhost:8000",
			TimeoutMS:    120000,
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Video: VideoConfig{
			Device:  "/dev/video0",
			Encoder: mustCommand(defaultEncoderCmd),
		},
		STT: STTConfig{
			Enable:     true,
			URL:        "wss://streaming.assemblyai.com/v3/ws",
			SampleRate: 16000,
		},
		Speaker: SpeakerConfig{
			Enable:  true,
			Command: mustCommand(speaker),
		},
		Recording: RecordingConfig{
			MinRecommendedSeconds: 30,
			SimulateDelays:        true,
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        "terminal",
			DesktopAppName: "rehearse",
			SoundEnable:    true,
			ErrorTimeoutMS: 1600,
		},
		Store: StoreConfig{
			Backend:     "file",
			RedisAddr:   "127.0.0.1:6379",
			RedisPrefix: "rehearse:",
		},
		Archive: ArchiveConfig{
			Bucket:            "rehearse-recordings",
			PresignTTLMinutes: 60,
		},
		Live: LiveConfig{
			URL:             "http://localhost:7880",
			TokenTTLMinutes: 120,
		},
		Serve: ServeConfig{
			Addr:           "127.0.0.1:8787",
			AllowedOrigins: []string{"http://localhost:5173"},
		},
	}
}
