package extract

import (
	"github.com/rs/zerolog"

	"mediagrab/internal/download"
	"mediagrab/internal/fshare"
	"mediagrab/internal/media"
	"mediagrab/internal/metrics"
)

// Endpoints are the third-party services used by the fallback strategies.
type Endpoints struct {
	TikWM     string
	Tiklydown string
	Instagram string // format string taking the post shortcode
	OGProxy   string // empty fetches pages directly
}

// DefaultEndpoints returns the public service locations.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		TikWM:     "https://www.tikwm.com/api/",
		Tiklydown: "https://api.tiklydown.eu.org/api/download",
		Instagram: "https://www.instagram.com/p/%s/?__a=1&__d=dis",
	}
}

// Deps are the collaborators shared by every chain.
type Deps struct {
	Tool          *download.Tool
	Fshare        *fshare.Client
	Remote        *Remote
	AudioBitrates []string
	Endpoints     Endpoints
	Log           zerolog.Logger
	Metrics       metrics.Recorder
}

// Registry builds the ordered chain for a platform. Strategy instances
// are stateless and shared between chains.
type Registry struct {
	deps    Deps
	tool    *Tool
	toolWMF *Tool
	tiktok  []Extractor
	insta   Extractor
	fbPhoto []Extractor
	fshare  Extractor
}

// NewRegistry wires strategies from deps.
func NewRegistry(deps Deps) *Registry {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Noop{}
	}
	r := &Registry{
		deps:    deps,
		tool:    NewTool(deps.Tool, false, deps.AudioBitrates, deps.Log),
		toolWMF: NewTool(deps.Tool, true, deps.AudioBitrates, deps.Log),
		insta:   &InstagramAPI{Endpoint: deps.Endpoints.Instagram, Remote: deps.Remote},
		fshare:  &Fshare{Client: deps.Fshare, Remote: deps.Remote},
	}
	r.tiktok = []Extractor{
		r.toolWMF,
		&TikWM{Endpoint: deps.Endpoints.TikWM, Remote: deps.Remote},
		&Tiklydown{Endpoint: deps.Endpoints.Tiklydown, Remote: deps.Remote},
		&TikTokPage{Remote: deps.Remote},
	}
	r.fbPhoto = []Extractor{r.tool}
	for i, tmpl := range PhotoTemplates {
		r.fbPhoto = append(r.fbPhoto, &PhotoCDN{Template: tmpl, Index: i, Remote: deps.Remote})
	}
	r.fbPhoto = append(r.fbPhoto,
		&PhotoPage{Remote: deps.Remote},
		&OpenGraph{Proxy: deps.Endpoints.OGProxy, Remote: deps.Remote},
	)
	return r
}

// ChainFor returns the chain for p. The URL selects between sub-chains
// where a platform has more than one. Unsupported platforms get nil.
func (r *Registry) ChainFor(p media.Platform, url string) *Chain {
	var steps []Extractor
	switch p {
	case media.YouTube, media.Twitter:
		steps = []Extractor{r.tool}
	case media.TikTok:
		steps = r.tiktok
	case media.Instagram:
		steps = []Extractor{r.tool, r.insta}
	case media.Facebook:
		if IsFacebookPhoto(url) {
			steps = r.fbPhoto
		} else {
			steps = []Extractor{r.tool}
		}
	case media.Fshare:
		steps = []Extractor{r.fshare}
	default:
		return nil
	}
	return NewChain(p, r.deps.Log, r.deps.Metrics, steps...)
}
