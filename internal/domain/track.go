package domain

import (
	"errors"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrBadTrackURL = errors.New("track url must be http or https")

// SourceKind is inferred from the hostname: a known embeddable provider
// or a generic direct-file link.
type SourceKind string

const (
	SourceYouTube SourceKind = "youtube"
	SourceFile    SourceKind = "file"
)

type TrackID string

// Track is one queued media reference. Immutable once constructed,
// except for DurationSeconds which may be back-filled once.
type Track struct {
	ID              TrackID    `json:"id"`
	URL             string     `json:"url"`
	Title           string     `json:"title"`
	Kind            SourceKind `json:"kind"`
	CoverURL        string     `json:"coverUrl,omitempty"`
	DurationSeconds float64    `json:"durationSeconds,omitempty"`
	RequestedBy     UserID     `json:"requestedBy"`
	RequesterName   string     `json:"requesterName"`
	AddedAt         time.Time  `json:"addedAt"`
}

// NewTrack normalizes a raw URL into a Track. Title, cover and duration
// are optional and derived when absent.
func NewTrack(rawURL, title, coverURL string, durationSeconds float64, by *User, now time.Time) (Track, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Track{}, ErrBadTrackURL
	}

	kind := SourceFile
	if ytID := YouTubeID(u); ytID != "" {
		kind = SourceYouTube
		if coverURL == "" {
			coverURL = "https://i.ytimg.com/vi/" + ytID + "/hqdefault.jpg"
		}
	}
	if title == "" {
		title = titleFromURL(u)
	}

	return Track{
		ID:              TrackID(uuid.NewString()),
		URL:             u.String(),
		Title:           title,
		Kind:            kind,
		CoverURL:        coverURL,
		DurationSeconds: durationSeconds,
		RequestedBy:     by.ID,
		RequesterName:   by.Username,
		AddedAt:         now,
	}, nil
}

// YouTubeID extracts the canonical item id from the URL shapes the
// provider serves: youtu.be/<id>, watch?v=<id> and /embed/<id>.
func YouTubeID(u *url.URL) string {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtu.be":
		return strings.Trim(u.Path, "/")
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if id := u.Query().Get("v"); id != "" {
			return id
		}
		if rest, ok := strings.CutPrefix(u.Path, "/embed/"); ok {
			return strings.Trim(rest, "/")
		}
		if rest, ok := strings.CutPrefix(u.Path, "/shorts/"); ok {
			return strings.Trim(rest, "/")
		}
	}
	return ""
}

// titleFromURL falls back to the last path segment, without extension,
// with separators turned into spaces.
func titleFromURL(u *url.URL) string {
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return u.Hostname()
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ", "+", " ").Replace(base)
	if decoded, err := url.PathUnescape(base); err == nil {
		base = decoded
	}
	base = strings.TrimSpace(base)
	if base == "" {
		return u.Hostname()
	}
	return base
}
