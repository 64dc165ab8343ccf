// Package media defines shared types for the mediagrab application.
package media

import (
	"strings"
	"time"
)

// Platform identifies the site a source URL belongs to.
type Platform string

const (
	YouTube   Platform = "youtube"
	TikTok    Platform = "tiktok"
	Instagram Platform = "instagram"
	Facebook  Platform = "facebook"
	Twitter   Platform = "twitter"
	Fshare    Platform = "fshare"
	Unknown   Platform = "unknown"
)

func (p Platform) String() string { return string(p) }

// Kind describes what an artifact holds.
type Kind string

const (
	Video        Kind = "video"
	Audio        Kind = "audio"
	Image        Kind = "image"
	FileGeneric  Kind = "file"
	Instructions Kind = "instructions"
)

// KindForMIME maps a sniffed MIME type to an artifact kind.
func KindForMIME(mime string) Kind {
	switch {
	case strings.HasPrefix(mime, "video/"):
		return Video
	case strings.HasPrefix(mime, "audio/"):
		return Audio
	case strings.HasPrefix(mime, "image/"):
		return Image
	default:
		return FileGeneric
	}
}

// Status is the lifecycle state of a stored artifact.
type Status string

const (
	Completed  Status = "completed"
	Processing Status = "processing"
	Deleted    Status = "deleted"
)

// Purpose tells why an alternate file exists next to the primary one.
type Purpose string

const (
	PurposeAudioBitrate Purpose = "audio-bitrate"
	PurposeAltItem      Purpose = "alt-item"
)

// FileRef points at a produced file inside the managed directory.
type FileRef struct {
	Path string `json:"path"`
	MIME string `json:"mime"`
}

// AltFile is an additional file produced alongside the primary one.
type AltFile struct {
	Label   string  `json:"label"`
	Path    string  `json:"path"`
	Purpose Purpose `json:"purpose"`
}

// Artifact is a produced, locally stored result tied to a source URL.
type Artifact struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	SourceURL        string    `json:"sourceUrl"`
	Platform         Platform  `json:"platform"`
	Kind             Kind      `json:"kind"`
	PrimaryFile      FileRef   `json:"primaryFile"`
	AlternateFiles   []AltFile `json:"alternateFiles,omitempty"`
	RequestedQuality string    `json:"requestedQuality"`
	ResolvedQuality  string    `json:"resolvedQuality"`
	WatermarkFree    bool      `json:"watermarkFree"`
	SizeBytes        uint64    `json:"sizeBytes"`
	CreatedAt        time.Time `json:"createdAt"`
	LastAccessedAt   time.Time `json:"lastAccessedAt"`
	ExpiresAt        time.Time `json:"expiresAt"`
	OwnerIdentity    string    `json:"ownerIdentity"`
	Status           Status    `json:"status"`
	Strategy         string    `json:"strategy,omitempty"`
}

// Files returns the primary path followed by every alternate path.
func (a *Artifact) Files() []string {
	paths := make([]string, 0, 1+len(a.AlternateFiles))
	if a.PrimaryFile.Path != "" {
		paths = append(paths, a.PrimaryFile.Path)
	}
	for _, alt := range a.AlternateFiles {
		paths = append(paths, alt.Path)
	}
	return paths
}

// Outcome classifies a single strategy attempt.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeTimeout       Outcome = "timeout"
	OutcomeUpstreamError Outcome = "upstream_error"
	OutcomeNoContent     Outcome = "no_content"
)

// Attempt records one strategy invocation. It is never persisted.
type Attempt struct {
	Strategy string        `json:"strategy"`
	Elapsed  time.Duration `json:"elapsed"`
	Outcome  Outcome       `json:"outcome"`
	Message  string        `json:"message,omitempty"`
	Reason   string        `json:"reason,omitempty"`
}

// Response is what the core hands back to its caller.
type Response struct {
	ID                 string    `json:"id,omitempty"`
	Title              string    `json:"title"`
	SourceURL          string    `json:"sourceUrl"`
	Platform           Platform  `json:"platform"`
	Kind               Kind      `json:"kind"`
	DownloadRef        *string   `json:"downloadRef"`
	Filename           string    `json:"filename,omitempty"`
	AlternateFiles     []AltFile `json:"alternateFiles,omitempty"`
	ResolvedQuality    string    `json:"resolvedQuality,omitempty"`
	RequestedQuality   string    `json:"requestedQuality"`
	AvailableQualities []string  `json:"availableQualities,omitempty"`
	WatermarkFree      bool      `json:"watermarkFree"`
	SizeBytes          uint64    `json:"sizeBytes"`
	FromCache          bool      `json:"fromCache"`
	Instructions       string    `json:"instructions,omitempty"`
	ProcessingReason   string    `json:"processingReason,omitempty"`
	Attempts           []Attempt `json:"attempts,omitempty"`
}
