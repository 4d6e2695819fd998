package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateScanner(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.ShareRoot) == "" {
		return errors.New("paths.share_root must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	return nil
}

func (c *Config) validateWorker() error {
	if c.Worker.BaseURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/remuxd/config.toml"
		}
		return fmt.Errorf("worker.base_url is required. Edit %s (create with 'remuxctl config init')", defaultPath)
	}
	parsed, err := url.Parse(c.Worker.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("worker.base_url %q must be an absolute http(s) URL", c.Worker.BaseURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("worker.base_url %q must use http or https", c.Worker.BaseURL)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"worker.request_timeout":        c.Worker.RequestTimeout,
		"worker.max_concurrent":         c.Worker.MaxConcurrent,
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.max_attempts":         c.Workflow.MaxAttempts,
		"workflow.stale_after":          c.Workflow.StaleAfter,
		"workflow.retention_days":       c.Workflow.RetentionDays,
	}); err != nil {
		return err
	}
	if c.Workflow.StaleAfter <= c.Workflow.QueuePollInterval {
		return errors.New("workflow.stale_after must be greater than workflow.queue_poll_interval")
	}
	return nil
}

func (c *Config) validateScanner() error {
	if !c.Scanner.Enabled {
		return nil
	}
	if c.Scanner.Schedule == "" {
		return errors.New("scanner.schedule must be set when scanner.enabled is true")
	}
	if c.Scanner.DefaultPriority < 0 || c.Scanner.DefaultPriority > 10 {
		return errors.New("scanner.default_priority must be between 0 and 10")
	}
	if c.Scanner.MinSizeMB < 0 {
		return errors.New("scanner.min_size_mb must not be negative")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
