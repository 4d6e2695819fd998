package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWorker()
	c.normalizeWorkflow()
	c.normalizeScanner()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.ShareRoot, err = expandPath(c.Paths.ShareRoot); err != nil {
		return fmt.Errorf("paths.share_root: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("REMUXD_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeWorker() {
	c.Worker.BaseURL = strings.TrimSpace(c.Worker.BaseURL)
	if c.Worker.BaseURL == "" {
		if value, ok := os.LookupEnv("REMUXD_WORKER_URL"); ok {
			c.Worker.BaseURL = strings.TrimSpace(value)
		}
	}
	c.Worker.BaseURL = strings.TrimRight(c.Worker.BaseURL, "/")
	c.Worker.Token = strings.TrimSpace(c.Worker.Token)
	if c.Worker.Token == "" {
		if value, ok := os.LookupEnv("REMUXD_WORKER_TOKEN"); ok {
			c.Worker.Token = strings.TrimSpace(value)
		}
	}
	if c.Worker.RequestTimeout <= 0 {
		c.Worker.RequestTimeout = defaultWorkerRequestTimeout
	}
	if c.Worker.MaxConcurrent <= 0 {
		c.Worker.MaxConcurrent = defaultWorkerMaxConcurrent
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.MaxAttempts <= 0 {
		c.Workflow.MaxAttempts = defaultMaxAttempts
	}
	if c.Workflow.StaleAfter <= 0 {
		c.Workflow.StaleAfter = defaultStaleAfter
	}
	if c.Workflow.RetentionDays <= 0 {
		c.Workflow.RetentionDays = defaultRetentionDays
	}
}

func (c *Config) normalizeScanner() {
	c.Scanner.Schedule = strings.TrimSpace(c.Scanner.Schedule)
	if c.Scanner.Schedule == "" {
		c.Scanner.Schedule = defaultScannerSchedule
	}
	c.Scanner.CleanupSchedule = strings.TrimSpace(c.Scanner.CleanupSchedule)
	if c.Scanner.CleanupSchedule == "" {
		c.Scanner.CleanupSchedule = defaultScannerCleanupSchedule
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
