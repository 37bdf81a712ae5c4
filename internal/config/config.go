package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Node        NodeConfig       `yaml:"node"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Languages   LanguagesConfig  `yaml:"languages"`
	Audio       AudioConfig      `yaml:"audio"`
	VAD         VADConfig        `yaml:"vad"`
	STT         STTConfig        `yaml:"stt"`
	Translate   TranslateConfig  `yaml:"translate"`
	TTS         TTSConfig        `yaml:"tts"`
	Google      GoogleConfig     `yaml:"google"`
	Camera      CameraConfig     `yaml:"camera"`
	Pose        PoseConfig       `yaml:"pose"`
	Classifier  ClassifierConfig `yaml:"classifier"`
	Gesture     GestureConfig    `yaml:"gesture"`
	Buttons     ButtonsConfig    `yaml:"buttons"`
	Volume      VolumeConfig     `yaml:"volume"`
	Transcript  TranscriptConfig `yaml:"transcript"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type NodeConfig struct {
	ID                string `yaml:"id"`
	HeartbeatInterval int    `yaml:"heartbeat_interval_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type LanguagesConfig struct {
	Base      string   `yaml:"base"`
	Supported []string `yaml:"supported"`
	Gender    string   `yaml:"gender"`
}

type AudioConfig struct {
	Mode            string `yaml:"mode"` // mock, exec
	CaptureCommand  string `yaml:"capture_command"`
	PlaybackCommand string `yaml:"playback_command"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	FrameDurationMS int    `yaml:"frame_duration_ms"`
}

type VADConfig struct {
	PaddingDurationMS int     `yaml:"padding_duration_ms"`
	EnergyThreshold   float64 `yaml:"energy_threshold"`
	ResetGuardMS      int     `yaml:"reset_guard_ms"`
	MinReplyBytes     int     `yaml:"min_reply_bytes"`
	ReplyTimeoutMS    int     `yaml:"reply_timeout_ms"`
}

type STTConfig struct {
	Mode      string `yaml:"mode"` // mock, exec, google
	Command   string `yaml:"command"`
	ModelPath string `yaml:"model_path"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type TranslateConfig struct {
	Mode      string `yaml:"mode"` // mock, google
	TimeoutMS int    `yaml:"timeout_ms"`
}

type TTSConfig struct {
	Mode       string `yaml:"mode"` // mock, exec, google
	Command    string `yaml:"command"`
	VoiceType  string `yaml:"voice_type"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	TimeoutMS  int    `yaml:"timeout_ms"`
}

type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	APIKey          string `yaml:"api_key"`
}

type CameraConfig struct {
	Backend  string `yaml:"backend"` // mock, gocv
	DeviceID int    `yaml:"device_id"`
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
}

type PoseConfig struct {
	Mode      string `yaml:"mode"` // mock, exec
	Command   string `yaml:"command"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type ClassifierConfig struct {
	Mode      string   `yaml:"mode"` // mock, exec
	Command   string   `yaml:"command"`
	Labels    []string `yaml:"labels"`
	TimeoutMS int      `yaml:"timeout_ms"`
}

type GestureConfig struct {
	WindowSize          int     `yaml:"window_size"`
	QueueCapacity       int     `yaml:"queue_capacity"`
	TickIntervalMS      int     `yaml:"tick_interval_ms"`
	PollTimeoutMS       int     `yaml:"poll_timeout_ms"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	HistoryLength       int     `yaml:"history_length"`
	MinConsistent       int     `yaml:"min_consistent"`
	MinIntervalMS       int     `yaml:"min_interval_ms"`
	NothingLabel        string  `yaml:"nothing_label"`
	FinalizeStreak      int     `yaml:"finalize_streak"`
	CooldownMS          int     `yaml:"cooldown_ms"`
}

type ButtonsConfig struct {
	DebounceMS int `yaml:"debounce_ms"`
}

type VolumeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Command string `yaml:"command"`
	Control string `yaml:"control"`
	Step    int    `yaml:"step"`
	Max     int    `yaml:"max"`
}

type TranscriptConfig struct {
	Path string `yaml:"path"`
}

var validGenders = map[string]bool{"MALE": true, "FEMALE": true, "NEUTRAL": true}

// ValidGender reports whether gender is one of MALE, FEMALE or NEUTRAL.
func ValidGender(gender string) bool {
	return validGenders[gender]
}

func Default() Config {
	return Config{
		RuntimeName: "signbridge",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 5000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Enabled:        true,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Node: NodeConfig{
			ID:                "signbridge-1",
			HeartbeatInterval: 5000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/signbridge-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Languages: LanguagesConfig{
			Base:      "en-US",
			Supported: []string{"en-US", "es-US", "ko-KR"},
			Gender:    "NEUTRAL",
		},
		Audio: AudioConfig{
			Mode:            "mock",
			CaptureCommand:  "arecord -q -t raw -f S16_LE -r 16000 -c 1",
			PlaybackCommand: "aplay -q",
			SampleRate:      16000,
			Channels:        1,
			FrameDurationMS: 30,
		},
		VAD: VADConfig{
			PaddingDurationMS: 300,
			EnergyThreshold:   0.02,
			ResetGuardMS:      500,
			MinReplyBytes:     1000,
			ReplyTimeoutMS:    30000,
		},
		STT: STTConfig{
			Mode:      "mock",
			TimeoutMS: 15000,
		},
		Translate: TranslateConfig{
			Mode:      "mock",
			TimeoutMS: 10000,
		},
		TTS: TTSConfig{
			Mode:       "mock",
			VoiceType:  "Standard",
			SampleRate: 24000,
			Channels:   1,
			TimeoutMS:  15000,
		},
		Camera: CameraConfig{
			Backend:  "mock",
			DeviceID: 0,
			Width:    640,
			Height:   400,
		},
		Pose: PoseConfig{
			Mode:      "mock",
			TimeoutMS: 200,
		},
		Classifier: ClassifierConfig{
			Mode:      "mock",
			Labels:    []string{"hello", "thanks", "nothing", "help", "yes", "bathroom"},
			TimeoutMS: 1000,
		},
		Gesture: GestureConfig{
			WindowSize:          30,
			QueueCapacity:       5,
			TickIntervalMS:      30,
			PollTimeoutMS:       1000,
			ConfidenceThreshold: 0.9,
			HistoryLength:       4,
			MinConsistent:       3,
			MinIntervalMS:       500,
			NothingLabel:        "nothing",
			FinalizeStreak:      2,
			CooldownMS:          3000,
		},
		Buttons: ButtonsConfig{
			DebounceMS: 200,
		},
		Volume: VolumeConfig{
			Enabled: false,
			Command: "amixer -D pulse",
			Control: "Master",
			Step:    5,
			Max:     90,
		},
		Transcript: TranscriptConfig{
			Path: "./data/transcript.txt",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "SIGNBRIDGE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "SIGNBRIDGE_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "SIGNBRIDGE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "SIGNBRIDGE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "SIGNBRIDGE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SIGNBRIDGE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "SIGNBRIDGE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "SIGNBRIDGE_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "SIGNBRIDGE_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "SIGNBRIDGE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "SIGNBRIDGE_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "SIGNBRIDGE_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "SIGNBRIDGE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "SIGNBRIDGE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "SIGNBRIDGE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "SIGNBRIDGE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "SIGNBRIDGE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "SIGNBRIDGE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Node.ID, "SIGNBRIDGE_NODE_ID")
	overrideInt(&cfg.Node.HeartbeatInterval, "SIGNBRIDGE_NODE_HEARTBEAT_INTERVAL_MS")
	overrideString(&cfg.EventStore.Path, "SIGNBRIDGE_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "SIGNBRIDGE_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "SIGNBRIDGE_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "SIGNBRIDGE_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "SIGNBRIDGE_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Languages.Base, "SIGNBRIDGE_LANGUAGES_BASE")
	overrideStringSlice(&cfg.Languages.Supported, "SIGNBRIDGE_LANGUAGES_SUPPORTED")
	overrideString(&cfg.Languages.Gender, "SIGNBRIDGE_LANGUAGES_GENDER")
	overrideString(&cfg.Audio.Mode, "SIGNBRIDGE_AUDIO_MODE")
	overrideString(&cfg.Audio.CaptureCommand, "SIGNBRIDGE_AUDIO_CAPTURE_COMMAND")
	overrideString(&cfg.Audio.PlaybackCommand, "SIGNBRIDGE_AUDIO_PLAYBACK_COMMAND")
	overrideInt(&cfg.Audio.SampleRate, "SIGNBRIDGE_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "SIGNBRIDGE_AUDIO_CHANNELS")
	overrideInt(&cfg.Audio.FrameDurationMS, "SIGNBRIDGE_AUDIO_FRAME_DURATION_MS")
	overrideInt(&cfg.VAD.PaddingDurationMS, "SIGNBRIDGE_VAD_PADDING_DURATION_MS")
	overrideFloat(&cfg.VAD.EnergyThreshold, "SIGNBRIDGE_VAD_ENERGY_THRESHOLD")
	overrideInt(&cfg.VAD.ResetGuardMS, "SIGNBRIDGE_VAD_RESET_GUARD_MS")
	overrideInt(&cfg.VAD.MinReplyBytes, "SIGNBRIDGE_VAD_MIN_REPLY_BYTES")
	overrideInt(&cfg.VAD.ReplyTimeoutMS, "SIGNBRIDGE_VAD_REPLY_TIMEOUT_MS")
	overrideString(&cfg.STT.Mode, "SIGNBRIDGE_STT_MODE")
	overrideString(&cfg.STT.Command, "SIGNBRIDGE_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "SIGNBRIDGE_STT_MODEL_PATH")
	overrideInt(&cfg.STT.TimeoutMS, "SIGNBRIDGE_STT_TIMEOUT_MS")
	overrideString(&cfg.Translate.Mode, "SIGNBRIDGE_TRANSLATE_MODE")
	overrideInt(&cfg.Translate.TimeoutMS, "SIGNBRIDGE_TRANSLATE_TIMEOUT_MS")
	overrideString(&cfg.TTS.Mode, "SIGNBRIDGE_TTS_MODE")
	overrideString(&cfg.TTS.Command, "SIGNBRIDGE_TTS_COMMAND")
	overrideString(&cfg.TTS.VoiceType, "SIGNBRIDGE_TTS_VOICE_TYPE")
	overrideInt(&cfg.TTS.SampleRate, "SIGNBRIDGE_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "SIGNBRIDGE_TTS_CHANNELS")
	overrideInt(&cfg.TTS.TimeoutMS, "SIGNBRIDGE_TTS_TIMEOUT_MS")
	overrideString(&cfg.Google.CredentialsFile, "SIGNBRIDGE_GOOGLE_CREDENTIALS_FILE")
	overrideString(&cfg.Google.APIKey, "SIGNBRIDGE_GOOGLE_API_KEY")
	overrideString(&cfg.Camera.Backend, "SIGNBRIDGE_CAMERA_BACKEND")
	overrideInt(&cfg.Camera.DeviceID, "SIGNBRIDGE_CAMERA_DEVICE_ID")
	overrideInt(&cfg.Camera.Width, "SIGNBRIDGE_CAMERA_WIDTH")
	overrideInt(&cfg.Camera.Height, "SIGNBRIDGE_CAMERA_HEIGHT")
	overrideString(&cfg.Pose.Mode, "SIGNBRIDGE_POSE_MODE")
	overrideString(&cfg.Pose.Command, "SIGNBRIDGE_POSE_COMMAND")
	overrideInt(&cfg.Pose.TimeoutMS, "SIGNBRIDGE_POSE_TIMEOUT_MS")
	overrideString(&cfg.Classifier.Mode, "SIGNBRIDGE_CLASSIFIER_MODE")
	overrideString(&cfg.Classifier.Command, "SIGNBRIDGE_CLASSIFIER_COMMAND")
	overrideStringSlice(&cfg.Classifier.Labels, "SIGNBRIDGE_CLASSIFIER_LABELS")
	overrideInt(&cfg.Classifier.TimeoutMS, "SIGNBRIDGE_CLASSIFIER_TIMEOUT_MS")
	overrideInt(&cfg.Gesture.WindowSize, "SIGNBRIDGE_GESTURE_WINDOW_SIZE")
	overrideInt(&cfg.Gesture.QueueCapacity, "SIGNBRIDGE_GESTURE_QUEUE_CAPACITY")
	overrideInt(&cfg.Gesture.TickIntervalMS, "SIGNBRIDGE_GESTURE_TICK_INTERVAL_MS")
	overrideInt(&cfg.Gesture.PollTimeoutMS, "SIGNBRIDGE_GESTURE_POLL_TIMEOUT_MS")
	overrideFloat(&cfg.Gesture.ConfidenceThreshold, "SIGNBRIDGE_GESTURE_CONFIDENCE_THRESHOLD")
	overrideInt(&cfg.Gesture.HistoryLength, "SIGNBRIDGE_GESTURE_HISTORY_LENGTH")
	overrideInt(&cfg.Gesture.MinConsistent, "SIGNBRIDGE_GESTURE_MIN_CONSISTENT")
	overrideInt(&cfg.Gesture.MinIntervalMS, "SIGNBRIDGE_GESTURE_MIN_INTERVAL_MS")
	overrideString(&cfg.Gesture.NothingLabel, "SIGNBRIDGE_GESTURE_NOTHING_LABEL")
	overrideInt(&cfg.Gesture.FinalizeStreak, "SIGNBRIDGE_GESTURE_FINALIZE_STREAK")
	overrideInt(&cfg.Gesture.CooldownMS, "SIGNBRIDGE_GESTURE_COOLDOWN_MS")
	overrideInt(&cfg.Buttons.DebounceMS, "SIGNBRIDGE_BUTTONS_DEBOUNCE_MS")
	overrideBool(&cfg.Volume.Enabled, "SIGNBRIDGE_VOLUME_ENABLED")
	overrideString(&cfg.Volume.Command, "SIGNBRIDGE_VOLUME_COMMAND")
	overrideString(&cfg.Volume.Control, "SIGNBRIDGE_VOLUME_CONTROL")
	overrideInt(&cfg.Volume.Step, "SIGNBRIDGE_VOLUME_STEP")
	overrideInt(&cfg.Volume.Max, "SIGNBRIDGE_VOLUME_MAX")
	overrideString(&cfg.Transcript.Path, "SIGNBRIDGE_TRANSCRIPT_PATH")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Node.ID == "" {
		return errors.New("node.id must not be empty")
	}
	if cfg.Node.HeartbeatInterval <= 0 {
		return errors.New("node.heartbeat_interval_ms must be positive")
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if err := validateLanguages(cfg.Languages); err != nil {
		return err
	}
	switch cfg.Audio.Mode {
	case "mock", "exec":
	default:
		return errors.New("audio.mode must be one of mock|exec")
	}
	if cfg.Audio.Mode == "exec" && (cfg.Audio.CaptureCommand == "" || cfg.Audio.PlaybackCommand == "") {
		return errors.New("audio.capture_command and audio.playback_command must be set when mode=exec")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels <= 0 {
		return errors.New("audio.channels must be positive")
	}
	switch cfg.Audio.FrameDurationMS {
	case 10, 20, 30:
	default:
		return errors.New("audio.frame_duration_ms must be one of 10|20|30")
	}
	if cfg.VAD.PaddingDurationMS < cfg.Audio.FrameDurationMS {
		return errors.New("vad.padding_duration_ms must be at least one audio frame")
	}
	if cfg.VAD.EnergyThreshold <= 0 || cfg.VAD.EnergyThreshold >= 1 {
		return errors.New("vad.energy_threshold must be between 0 and 1")
	}
	if cfg.VAD.ResetGuardMS < 0 || cfg.VAD.MinReplyBytes < 0 || cfg.VAD.ReplyTimeoutMS < 0 {
		return errors.New("vad durations and sizes must be >= 0")
	}
	switch cfg.STT.Mode {
	case "mock", "google":
	case "exec":
		if cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
	default:
		return errors.New("stt.mode must be one of mock|exec|google")
	}
	switch cfg.Translate.Mode {
	case "mock", "google":
	default:
		return errors.New("translate.mode must be one of mock|google")
	}
	switch cfg.TTS.Mode {
	case "mock", "google":
	case "exec":
		if cfg.TTS.Command == "" {
			return errors.New("tts.command must be set when mode=exec")
		}
	default:
		return errors.New("tts.mode must be one of mock|exec|google")
	}
	if cfg.TTS.SampleRate <= 0 || cfg.TTS.Channels <= 0 {
		return errors.New("tts.sample_rate and tts.channels must be positive")
	}
	switch cfg.Camera.Backend {
	case "mock", "gocv":
	default:
		return errors.New("camera.backend must be one of mock|gocv")
	}
	if cfg.Camera.Width <= 0 || cfg.Camera.Height <= 0 {
		return errors.New("camera.width and camera.height must be positive")
	}
	switch cfg.Pose.Mode {
	case "mock":
	case "exec":
		if cfg.Pose.Command == "" {
			return errors.New("pose.command must be set when mode=exec")
		}
	default:
		return errors.New("pose.mode must be one of mock|exec")
	}
	switch cfg.Classifier.Mode {
	case "mock":
	case "exec":
		if cfg.Classifier.Command == "" {
			return errors.New("classifier.command must be set when mode=exec")
		}
	default:
		return errors.New("classifier.mode must be one of mock|exec")
	}
	if len(cfg.Classifier.Labels) == 0 {
		return errors.New("classifier.labels must not be empty")
	}
	if err := validateGesture(cfg.Gesture, cfg.Classifier.Labels); err != nil {
		return err
	}
	if cfg.Buttons.DebounceMS < 0 {
		return errors.New("buttons.debounce_ms must be >= 0")
	}
	if cfg.Volume.Enabled {
		if cfg.Volume.Command == "" {
			return errors.New("volume.command must be set when volume is enabled")
		}
		if cfg.Volume.Step <= 0 || cfg.Volume.Max <= 0 || cfg.Volume.Max > 100 {
			return errors.New("volume.step must be positive and volume.max between 1 and 100")
		}
	}
	if cfg.Transcript.Path == "" {
		return errors.New("transcript.path must not be empty")
	}
	return nil
}

func validateLanguages(cfg LanguagesConfig) error {
	if len(cfg.Supported) < 2 {
		return errors.New("languages.supported must list at least two languages")
	}
	found := false
	for _, lang := range cfg.Supported {
		if lang == cfg.Base {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("languages.base %q must be one of languages.supported", cfg.Base)
	}
	if !ValidGender(cfg.Gender) {
		return errors.New("languages.gender must be one of MALE|FEMALE|NEUTRAL")
	}
	return nil
}

func validateGesture(cfg GestureConfig, labels []string) error {
	if cfg.WindowSize <= 0 {
		return errors.New("gesture.window_size must be positive")
	}
	if cfg.QueueCapacity <= 0 {
		return errors.New("gesture.queue_capacity must be positive")
	}
	if cfg.TickIntervalMS <= 0 || cfg.PollTimeoutMS <= 0 {
		return errors.New("gesture.tick_interval_ms and gesture.poll_timeout_ms must be positive")
	}
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return errors.New("gesture.confidence_threshold must be between 0 and 1")
	}
	if cfg.HistoryLength <= 0 || cfg.MinConsistent <= 0 || cfg.MinConsistent > cfg.HistoryLength {
		return errors.New("gesture.min_consistent must be between 1 and gesture.history_length")
	}
	if cfg.MinIntervalMS < 0 || cfg.CooldownMS < 0 {
		return errors.New("gesture.min_interval_ms and gesture.cooldown_ms must be >= 0")
	}
	if cfg.FinalizeStreak <= 0 {
		return errors.New("gesture.finalize_streak must be positive")
	}
	for _, label := range labels {
		if label == cfg.NothingLabel {
			return nil
		}
	}
	return fmt.Errorf("gesture.nothing_label %q must be one of classifier.labels", cfg.NothingLabel)
}
