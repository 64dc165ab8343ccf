package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mediagrab/internal/media"
	"mediagrab/internal/service"
)

func fetchRun(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}

	req := service.Request{
		URL:         args[0],
		Quality:     cfg.Quality,
		Password:    flagPassword,
		TargetEmail: flagEmail,
		Identity:    cfg.Identity,
		AudioOnly:   flagAudio,
	}
	debugf("fetching %s as %s (quality %s, audio %v)", req.URL, req.Identity, req.Quality, req.AudioOnly)

	resp, err := a.service.Fetch(ctx, req)
	if err != nil {
		return describe(err)
	}

	out := stdout()
	if flagJSON {
		return out.json(resp)
	}
	out.response(a.dir, resp)
	return nil
}

// describe turns core errors into messages meant for a person.
func describe(err error) error {
	var qe *media.QuotaError
	var ex *media.ExhaustedError
	switch {
	case errors.As(err, &qe):
		limit := formatLimit(qe.Limit)
		return fmt.Errorf("storage quota exceeded: %s is using %s of %s and the file needs %s",
			qe.Identity, formatBytes(qe.Usage), limit, formatBytes(qe.Candidate))
	case errors.As(err, &ex):
		for _, at := range ex.Attempts {
			debugf("attempt %s: %s %s", at.Strategy, at.Outcome, at.Message)
		}
		return err
	case errors.Is(err, media.ErrUnsupportedPlatform):
		return fmt.Errorf("%w (supported: YouTube, TikTok, Instagram, Facebook, Twitter/X, Fshare)", err)
	}
	return err
}
