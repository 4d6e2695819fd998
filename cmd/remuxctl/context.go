package main

import (
	"fmt"
	"strings"
	"sync"

	"remuxd/internal/config"
)

// commandContext lazily loads configuration and builds the API client so
// commands that never touch the daemon (config init) stay independent of
// a usable config file.
type commandContext struct {
	serverFlag *string
	configFlag *string

	once   sync.Once
	cfg    *config.Config
	cfgErr error
}

func newCommandContext(serverFlag, configFlag *string) *commandContext {
	return &commandContext{serverFlag: serverFlag, configFlag: configFlag}
}

func (c *commandContext) loadConfig() (*config.Config, error) {
	c.once.Do(func() {
		path := ""
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.cfg, _, _, c.cfgErr = config.Load(path)
	})
	return c.cfg, c.cfgErr
}

func (c *commandContext) client() (*apiClient, error) {
	server := ""
	if c.serverFlag != nil {
		server = strings.TrimSpace(*c.serverFlag)
	}

	token := ""
	if cfg, err := c.loadConfig(); err == nil {
		token = cfg.Paths.APIToken
		if server == "" {
			server = "http://" + cfg.Paths.APIBind
		}
	} else if server == "" {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return newAPIClient(server, token), nil
}
