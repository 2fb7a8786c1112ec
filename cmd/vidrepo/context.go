package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"vidrepo/internal/blobstore"
	"vidrepo/internal/config"
	"vidrepo/internal/logging"
	"vidrepo/internal/media/extract"
	"vidrepo/internal/metrics"
	"vidrepo/internal/mirror"
	"vidrepo/internal/repository"
	"vidrepo/internal/services"
	"vidrepo/internal/services/transcribe"
	"vidrepo/internal/services/vision"
	"vidrepo/internal/store"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	app *app
}

// app holds the opened backends for one command invocation.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	hub     *logging.StreamHub
	metrics *metrics.Metrics
	store   *store.Store
	blobs   blobstore.Store
	svc     *repository.Service
	lock    *flock.Flock
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// open wires every backend. The data directory is guarded by a process lock
// because the blob store and database are single-writer.
func (c *commandContext) open() (*app, error) {
	if c.app != nil {
		return c.app, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire data lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("data directory %s is in use by another vidrepo process (is `vidrepo serve` running?)", cfg.Paths.DataDir)
	}

	a := &app{cfg: cfg, lock: lock, hub: logging.NewStreamHub(4096), metrics: metrics.New()}
	fail := func(err error) (*app, error) {
		a.close()
		return nil, err
	}

	a.logger, err = logging.NewFromConfig(cfg, a.hub)
	if err != nil {
		return fail(fmt.Errorf("init logger: %w", err))
	}
	a.store, err = store.Open(cfg)
	if err != nil {
		return fail(fmt.Errorf("open store: %w", err))
	}
	a.blobs, err = blobstore.Open(cfg, a.logger)
	if err != nil {
		return fail(fmt.Errorf("open blob store: %w", err))
	}
	transcriber, err := transcribe.New(cfg, a.logger)
	if err != nil {
		return fail(fmt.Errorf("init transcriber: %w", err))
	}
	var gitMirror *mirror.Mirror
	if cfg.Mirror.Enabled {
		gitMirror = mirror.New(cfg.Paths.MirrorDir, a.logger)
	}

	a.svc = repository.New(cfg, repository.Dependencies{
		Store:       a.store,
		Blobs:       a.blobs,
		Extractor:   extract.NewFFmpeg(cfg, a.logger),
		Transcriber: transcriber,
		Analyzer:    vision.NewClient(vision.ConfigFromApp(cfg), a.logger),
		Mirror:      gitMirror,
		Metrics:     a.metrics,
		Logger:      a.logger,
	})
	c.app = a
	return a, nil
}

func (c *commandContext) close() {
	if c.app != nil {
		c.app.close()
		c.app = nil
	}
}

func (a *app) close() {
	if a.svc != nil {
		a.svc.Close()
	}
	if a.blobs != nil {
		_ = a.blobs.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.lock != nil {
		_ = a.lock.Unlock()
	}
}

func (c *commandContext) withService(fn func(*repository.Service) error) error {
	a, err := c.open()
	if err != nil {
		return err
	}
	defer c.close()
	return fn(a.svc)
}

func parseRepoID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, services.Wrap(services.ErrValidation, "cli", "args", fmt.Sprintf("invalid repository id %q", raw), nil)
	}
	return id, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
