package config

const (
	defaultWorkDir             = "~/.local/share/sublingo/work"
	defaultLogDir              = "~/.local/share/sublingo/logs"
	defaultLexiconCSV          = "~/.local/share/sublingo/lexicon.csv"
	defaultAPIBind             = "127.0.0.1:7519"
	defaultUserRef             = "default"
	defaultWhisperBinary       = "whisperx"
	defaultWhisperModel        = "whisper-base"
	defaultWhisperConcurrency  = 1
	defaultWhisperTimeout      = 600
	defaultTranslatorBaseURL   = "https://openrouter.ai/api/v1/chat/completions"
	defaultTranslatorModel     = "google/gemini-3-flash-preview"
	defaultTranslatorLimit     = 4
	defaultTranslatorTimeout   = 60
	defaultChunkSizeSeconds    = 300
	defaultWorkers             = 4
	defaultStageTimeout        = 300
	defaultTaskTimeout         = 3600
	defaultMaxAttempts         = 3
	defaultRetryBaseDelayMS    = 500
	defaultRetryMaxDelayMS     = 10000
	defaultQueuePollInterval   = 2
	defaultWatchdogInterval    = 15
	defaultTaskRetentionHours  = 168
	defaultSourceLanguage      = "en"
	defaultTargetLanguage      = "de"
	defaultProgressBuffer      = 512
	defaultHeartbeatInterval   = 15
	defaultMissedHeartbeats    = 3
	defaultDifficultyThreshold = 0.6
	defaultEaseFloor           = 1.3
	defaultEaseCeiling         = 2.5
	defaultMaxIntervalDays     = 180
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:     defaultWorkDir,
			LogDir:      defaultLogDir,
			LexiconCSV:  defaultLexiconCSV,
			APIBind:     defaultAPIBind,
			DefaultUser: defaultUserRef,
		},
		Transcription: Transcription{
			Binary:           defaultWhisperBinary,
			Model:            defaultWhisperModel,
			ConcurrencyLimit: defaultWhisperConcurrency,
			TimeoutSeconds:   defaultWhisperTimeout,
		},
		Translation: Translation{
			BaseURL:          defaultTranslatorBaseURL,
			Model:            defaultTranslatorModel,
			ConcurrencyLimit: defaultTranslatorLimit,
			TimeoutSeconds:   defaultTranslatorTimeout,
		},
		Pipeline: Pipeline{
			ChunkSizeSeconds:   defaultChunkSizeSeconds,
			Workers:            defaultWorkers,
			StageTimeout:       defaultStageTimeout,
			TaskTimeout:        defaultTaskTimeout,
			MaxAttempts:        defaultMaxAttempts,
			RetryBaseDelayMS:   defaultRetryBaseDelayMS,
			RetryMaxDelayMS:    defaultRetryMaxDelayMS,
			QueuePollInterval:  defaultQueuePollInterval,
			WatchdogInterval:   defaultWatchdogInterval,
			TaskRetentionHours: defaultTaskRetentionHours,
			SourceLanguage:     defaultSourceLanguage,
			TargetLanguage:     defaultTargetLanguage,
		},
		Progress: Progress{
			BufferSize:        defaultProgressBuffer,
			HeartbeatInterval: defaultHeartbeatInterval,
			MissedHeartbeats:  defaultMissedHeartbeats,
		},
		Review: Review{
			DifficultyThreshold: defaultDifficultyThreshold,
			EaseFloor:           defaultEaseFloor,
			EaseCeiling:         defaultEaseCeiling,
			MaxIntervalDays:     defaultMaxIntervalDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Completion:     true,
			Errors:         true,
			Stalls:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
