package main

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dcshock/datamux/config"
	"github.com/dcshock/datamux/logging"
	"github.com/dcshock/datamux/stream"
)

type commandContext struct {
	configPath string
	logLevel   string
	logFormat  string
}

func (c *commandContext) setupLogger(cmd *cobra.Command) error {
	logger, err := logging.New(logging.Options{
		Level:  c.logLevel,
		Format: c.logFormat,
		Writer: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(logging.WithLogger(ctx, logger))
	return nil
}

func (c *commandContext) loadConfig() (*config.DataConfig, error) {
	path := strings.TrimSpace(c.configPath)
	if path == "" {
		return nil, errors.New("no data configuration given (use --config)")
	}
	return config.LoadFile(path)
}

// build loads the configuration and resolves it into one stream.
func (c *commandContext) build(ctx context.Context, obs stream.Observer) (*config.DataConfig, *stream.Stream, bool, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, false, err
	}
	s, tarred, err := config.Build(ctx, cfg, config.BuildOptions{Observer: obs})
	if err != nil {
		return nil, nil, false, err
	}
	return cfg, s, tarred, nil
}
