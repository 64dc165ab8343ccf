// Package service runs a fetch request end to end: classify the URL, serve
// it from the artifact store when possible, otherwise run the platform's
// extraction chain and record the result under the caller's quota.
package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"mediagrab/internal/extract"
	"mediagrab/internal/history"
	"mediagrab/internal/httputil"
	"mediagrab/internal/media"
	"mediagrab/internal/metrics"
	"mediagrab/internal/platform"
	"mediagrab/internal/quality"
	"mediagrab/internal/quota"
)

// Request is one fetch request.
type Request struct {
	URL         string
	Quality     string
	Password    string
	TargetEmail string
	Identity    string
	AudioOnly   bool
}

// Notifier delivers a finished response to an e-mail address. Delivery
// failures are logged and never fail the request.
type Notifier interface {
	Notify(ctx context.Context, email string, resp *media.Response) error
}

// Chains selects the extraction chain for a URL.
type Chains interface {
	ChainFor(p media.Platform, url string) *extract.Chain
}

// Deps are the collaborators of a Service.
type Deps struct {
	Store    *history.Store
	Quota    *quota.Manager
	Chains   Chains
	Notifier Notifier
	Metrics  metrics.Recorder
	Log      zerolog.Logger
}

// Service is safe for concurrent use. Concurrent misses for the same URL
// share one extraction.
type Service struct {
	store    *history.Store
	quota    *quota.Manager
	chains   Chains
	notifier Notifier
	metrics  metrics.Recorder
	log      zerolog.Logger

	flights singleflight.Group
}

// New creates a Service.
func New(d Deps) *Service {
	if d.Metrics == nil {
		d.Metrics = metrics.Noop{}
	}
	return &Service{
		store:    d.Store,
		quota:    d.Quota,
		chains:   d.Chains,
		notifier: d.Notifier,
		metrics:  d.Metrics,
		log:      d.Log.With().Str("component", "service").Logger(),
	}
}

// Fetch serves req from the store or by extraction. Exhausted chains on
// platforms with a manual fallback yield an instructions response instead
// of an error.
func (s *Service) Fetch(ctx context.Context, req Request) (*media.Response, error) {
	if req.Identity == "" {
		return nil, errors.New("request has no identity")
	}
	p := platform.Classify(req.URL)
	if !platform.Supported(p) {
		return nil, fmt.Errorf("%s: %w", req.URL, media.ErrUnsupportedPlatform)
	}
	req.Quality = quality.Normalize(req.Quality)

	log := s.log.With().Str("platform", p.String()).Str("url", req.URL).Str("identity", req.Identity).Logger()

	key := req.URL
	if req.AudioOnly {
		key += "\x00audio"
	}
	leader := false
	v, err, _ := s.flights.Do(key, func() (any, error) {
		leader = true
		return s.serve(ctx, req, p)
	})
	if !leader && err != nil {
		// The leader failed, possibly for reasons of its own (quota,
		// cancellation); try again on our own behalf.
		log.Debug().Err(err).Msg("coalesced extraction failed, retrying")
		leader = true
		v, err = s.serve(ctx, req, p)
	}
	if err != nil {
		log.Warn().Err(err).Msg("fetch failed")
		return nil, err
	}

	resp := copyResponse(v.(*media.Response))
	if !leader && resp.Kind != media.Instructions {
		s.metrics.IncCache("coalesced")
		resp.FromCache = true
		resp.RequestedQuality = req.Quality
		resp.Attempts = nil
	}
	if resp.FromCache {
		log.Info().Str("id", resp.ID).Msg("served from cache")
	}
	s.notify(ctx, req, resp)
	return resp, nil
}

// serve answers from the store when possible and extracts otherwise. Only
// a stored artifact of the requested mode (audio only or not) is reused.
func (s *Service) serve(ctx context.Context, req Request, p media.Platform) (*media.Response, error) {
	if a, ok := s.store.Lookup(req.URL, req.AudioOnly); ok {
		s.metrics.IncCache("hit")
		resp := responseFor(a)
		resp.FromCache = true
		resp.RequestedQuality = req.Quality
		return resp, nil
	}
	s.metrics.IncCache("miss")
	return s.extract(ctx, req, p)
}

func (s *Service) extract(ctx context.Context, req Request, p media.Platform) (*media.Response, error) {
	chain := s.chains.ChainFor(p, req.URL)
	if chain == nil {
		return nil, fmt.Errorf("%s: %w", p, media.ErrUnsupportedPlatform)
	}

	res, attempts, err := chain.Run(ctx, extract.Request{
		URL:       req.URL,
		Platform:  p,
		Quality:   req.Quality,
		Password:  req.Password,
		AudioOnly: req.AudioOnly,
	})
	if err != nil {
		if errors.Is(err, media.ErrExtractionExhausted) && extract.ManualFallback(p, req.URL) {
			m := extract.Instructions(p, req.URL, attempts)
			return &media.Response{
				SourceURL:        req.URL,
				Platform:         p,
				Kind:             media.Instructions,
				RequestedQuality: req.Quality,
				Instructions:     m.Text,
				ProcessingReason: m.Reason,
				Attempts:         attempts,
			}, nil
		}
		return nil, err
	}

	a := artifactFor(req, p, res)
	err = s.quota.Commit(req.Identity, a.SizeBytes, func() error {
		return s.store.Record(a)
	})
	if err != nil {
		res.Discard()
		if errors.Is(err, media.ErrQuotaExceeded) {
			s.metrics.IncQuotaDenied()
		}
		return nil, err
	}

	resp := responseFor(a)
	resp.AvailableQualities = res.AvailableQualities
	resp.Attempts = attempts
	return resp, nil
}

func (s *Service) notify(ctx context.Context, req Request, resp *media.Response) {
	if s.notifier == nil || req.TargetEmail == "" {
		return
	}
	if err := s.notifier.Notify(ctx, req.TargetEmail, resp); err != nil {
		s.log.Warn().Err(err).Str("email", req.TargetEmail).Msg("notification failed")
	}
}

// Delete removes one of identity's artifacts.
func (s *Service) Delete(id, identity string) error {
	return s.store.Delete(id, identity)
}

// History returns identity's artifacts, newest first.
func (s *Service) History(identity string) []media.Artifact {
	return s.store.List(identity)
}

// Quota returns identity's quota record.
func (s *Service) Quota(identity string) quota.Record {
	return s.quota.Get(identity)
}

func artifactFor(req Request, p media.Platform, res *extract.Result) *media.Artifact {
	primary := res.Files[0]
	a := &media.Artifact{
		Title:            res.Title,
		SourceURL:        req.URL,
		Platform:         p,
		Kind:             res.Kind,
		PrimaryFile:      media.FileRef{Path: primary.Path, MIME: primary.MIME},
		RequestedQuality: req.Quality,
		ResolvedQuality:  res.ResolvedQuality,
		WatermarkFree:    res.WatermarkFree,
		SizeBytes:        res.Size(),
		OwnerIdentity:    req.Identity,
		Status:           media.Completed,
		Strategy:         res.Strategy,
	}
	for _, f := range res.Files[1:] {
		a.AlternateFiles = append(a.AlternateFiles, media.AltFile{Label: f.Label, Path: f.Path, Purpose: f.Purpose})
	}
	return a
}

func responseFor(a *media.Artifact) *media.Response {
	ref := filepath.Base(a.PrimaryFile.Path)
	resp := &media.Response{
		ID:               a.ID,
		Title:            a.Title,
		SourceURL:        a.SourceURL,
		Platform:         a.Platform,
		Kind:             a.Kind,
		DownloadRef:      &ref,
		Filename:         displayName(a.Title, ref),
		ResolvedQuality:  a.ResolvedQuality,
		RequestedQuality: a.RequestedQuality,
		WatermarkFree:    a.WatermarkFree,
		SizeBytes:        a.SizeBytes,
	}
	for _, alt := range a.AlternateFiles {
		resp.AlternateFiles = append(resp.AlternateFiles, media.AltFile{
			Label:   alt.Label,
			Path:    filepath.Base(alt.Path),
			Purpose: alt.Purpose,
		})
	}
	return resp
}

// displayName is the suggested download name: the title with the stored
// file's extension.
func displayName(title, stored string) string {
	ext := filepath.Ext(stored)
	title = strings.TrimSpace(title)
	if title == "" {
		return stored
	}
	name := httputil.SanitizeFilename(title)
	if strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext)) {
		return name
	}
	return name + ext
}

func copyResponse(r *media.Response) *media.Response {
	c := *r
	c.AlternateFiles = append([]media.AltFile(nil), r.AlternateFiles...)
	c.AvailableQualities = append([]string(nil), r.AvailableQualities...)
	c.Attempts = append([]media.Attempt(nil), r.Attempts...)
	if r.DownloadRef != nil {
		ref := *r.DownloadRef
		c.DownloadRef = &ref
	}
	return &c
}
