// SPDX-License-Identifier: AGPL-3.0-only
package store

import (
	"time"

	"github.com/IvanTran-2001/Instagram-Logging/internal/helpers"
)

// RecordType tags one conversation entry. Kinds outside the known set keep
// the raw thread item type as their tag.
type RecordType string

const (
	TypeText          RecordType = "text"
	TypePhoto         RecordType = "photo"
	TypeVideo         RecordType = "video"
	TypeMultiMedia    RecordType = "multi_media"
	TypeAlbum         RecordType = "album"
	TypeSharedAlbum   RecordType = "shared_album"
	TypeSharedPhoto   RecordType = "shared_photo"
	TypeSharedMedia   RecordType = "shared_media"
	TypeLink          RecordType = "link"
	TypeAnimatedMedia RecordType = "animated_media"
	TypeVoiceMedia    RecordType = "voice_media"
	TypeStoryShare    RecordType = "story_share"
	TypeFelixShare    RecordType = "felix_share"
	TypeClip          RecordType = "clip"
	TypePlaceholder   RecordType = "placeholder"
)

type MediaItem struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// Record is one logged message. Optional fields are populated per type:
// text carries Content, photo/video a single path, bursts and albums carry
// path lists. The field names are the on-disk schema, older files must keep
// loading.
type Record struct {
	Timestamp  string      `json:"timestamp"`
	User       string      `json:"user"`
	Type       RecordType  `json:"type"`
	Content    string      `json:"content,omitempty"`
	URL        string      `json:"url,omitempty"`
	PhotoPath  string      `json:"photo_path,omitempty"`
	VideoPath  string      `json:"video_path,omitempty"`
	PhotoPaths []string    `json:"photo_paths,omitempty"`
	MediaItems []MediaItem `json:"media_items,omitempty"`
	ItemCount  int         `json:"item_count,omitempty"`
}

// Fingerprint identifies a record for dedup. Text records key on the first
// 50 characters of their content, everything else on the type tag, so a
// failed download (placeholder content, type unchanged) still matches its
// successful twin from an earlier run.
func Fingerprint(r Record) string {
	key := "media_" + string(r.Type)
	if r.Type == TypeText {
		key = clipRunes(r.Content, 50)
	}
	return r.Timestamp + "_" + r.User + "_" + key
}

func clipRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// FingerprintIndex is the per-run dedup set, built once from the loaded
// records and extended as new ones are accepted.
type FingerprintIndex map[string]struct{}

func NewFingerprintIndex(records []Record) FingerprintIndex {
	idx := make(FingerprintIndex, len(records))
	for _, r := range records {
		idx[Fingerprint(r)] = struct{}{}
	}
	return idx
}

func (idx FingerprintIndex) Has(r Record) bool {
	_, ok := idx[Fingerprint(r)]
	return ok
}

func (idx FingerprintIndex) Add(r Record) {
	idx[Fingerprint(r)] = struct{}{}
}

// NewestSeen returns the most recent timestamp across records. When nothing
// parses, ok is false and callers should compare against raw, the
// lexicographic maximum of the stored strings.
func NewestSeen(records []Record) (newest time.Time, raw string, ok bool) {
	for _, r := range records {
		if r.Timestamp == "" {
			continue
		}
		if r.Timestamp > raw {
			raw = r.Timestamp
		}
		ts, err := helpers.ParseTimestamp(r.Timestamp)
		if err != nil {
			continue
		}
		if !ok || ts.After(newest) {
			newest = ts
			ok = true
		}
	}
	return newest, raw, ok
}
