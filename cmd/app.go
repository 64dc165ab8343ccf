package cmd

import (
	"fmt"
	"os"

	"mediagrab/internal/config"
	"mediagrab/internal/download"
	"mediagrab/internal/extract"
	"mediagrab/internal/fshare"
	"mediagrab/internal/history"
	"mediagrab/internal/httputil"
	"mediagrab/internal/metrics"
	"mediagrab/internal/notify"
	"mediagrab/internal/quota"
	"mediagrab/internal/retention"
	"mediagrab/internal/runner"
	"mediagrab/internal/service"
)

// app is the wired object graph shared by the subcommands.
type app struct {
	dir     string
	store   *history.Store
	quota   *quota.Manager
	service *service.Service
	sweeper *retention.Sweeper
}

func newApp(c *config.Config, rec metrics.Recorder) (*app, error) {
	if rec == nil {
		rec = metrics.Noop{}
	}
	dir, err := c.ExpandDataDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	debugf("data dir: %s", dir)

	store, err := history.Open(dir, history.Options{
		MaxPerIdentity: c.Retention.MaxHistory,
		Retention:      c.Retention.MaxAge,
		Log:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	qm, err := quota.Open(dir, store, quota.Options{
		DefaultLimit: c.Quota.DefaultLimit,
		Admins:       c.Quota.Admins,
		Log:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening quota settings: %w", err)
	}

	tool := download.New(runner.New(logger), download.Options{
		Binary:       c.Tool.Binary,
		Dir:          dir,
		FetchTimeout: c.Tool.Timeout,
		ProbeTimeout: c.Tool.ProbeTimeout,
		CacheTTL:     c.Tool.ProbeCacheTTL,
	}, logger)

	page := httputil.NewClient(c.Scrape.Timeout)
	fs := fshare.New(fshare.Config{
		BaseURL:    c.Fshare.BaseURL,
		Email:      c.Fshare.Email,
		Password:   c.Fshare.Password,
		AppKey:     c.Fshare.AppKey,
		UserAgent:  c.Fshare.UserAgent,
		SessionTTL: c.Fshare.SessionTTL,
	}, page, logger)

	reg := extract.NewRegistry(extract.Deps{
		Tool:   tool,
		Fshare: fs,
		Remote: &extract.Remote{
			Page:            page,
			Transfer:        httputil.NewDownloadClient(),
			Dir:             dir,
			MaxBytes:        c.Scrape.MaxBytes,
			TransferTimeout: c.Scrape.TransferTimeout,
		},
		AudioBitrates: c.Tool.AudioBitrates,
		Endpoints: extract.Endpoints{
			TikWM:     c.Scrape.TikWM,
			Tiklydown: c.Scrape.Tiklydown,
			Instagram: c.Scrape.Instagram,
			OGProxy:   c.Scrape.OGProxy,
		},
		Log:     logger,
		Metrics: rec,
	})

	var n service.Notifier
	if c.NotifyWebhook != "" {
		n = notify.NewWebhook(c.NotifyWebhook, nil)
	}

	return &app{
		dir:   dir,
		store: store,
		quota: qm,
		service: service.New(service.Deps{
			Store:    store,
			Quota:    qm,
			Chains:   reg,
			Notifier: n,
			Metrics:  rec,
			Log:      logger,
		}),
		sweeper: retention.New(dir, store, retention.Options{
			MaxAge:   c.Retention.MaxAge,
			Interval: c.Retention.SweepInterval,
			Keep:     []string{history.FileName, quota.FileName},
			Log:      logger,
			Metrics:  rec,
		}),
	}, nil
}
