package config

const (
	defaultShareRoot              = "~/remux/share"
	defaultOutputDir              = "~/remux/library"
	defaultLogDir                 = "~/.local/share/remuxd/logs"
	defaultAPIBind                = "127.0.0.1:7937"
	defaultWorkerRequestTimeout   = 30
	defaultWorkerMaxConcurrent    = 1
	defaultQueuePollInterval      = 5
	defaultErrorRetryInterval     = 10
	defaultMaxAttempts            = 3
	defaultStaleAfter             = 7200
	defaultRetentionDays          = 60
	defaultScannerSchedule        = "*/15 * * * *"
	defaultScannerCleanupSchedule = "30 3 * * *"
	defaultScannerPriority        = 5
	defaultScannerMinSizeMB       = 100
	defaultNotifyRequestTimeout   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ShareRoot: defaultShareRoot,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Worker: Worker{
			RequestTimeout: defaultWorkerRequestTimeout,
			MaxConcurrent:  defaultWorkerMaxConcurrent,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			MaxAttempts:        defaultMaxAttempts,
			StaleAfter:         defaultStaleAfter,
			RetentionDays:      defaultRetentionDays,
		},
		Scanner: Scanner{
			Enabled:         true,
			Schedule:        defaultScannerSchedule,
			CleanupSchedule: defaultScannerCleanupSchedule,
			DefaultPriority: defaultScannerPriority,
			MinSizeMB:       defaultScannerMinSizeMB,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completion:     true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
