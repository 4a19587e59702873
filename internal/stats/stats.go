package stats

import (
	"github.com/IvanTran-2001/Instagram-Logging/internal/store"
)

type Stats struct {
	Total     int            `json:"total"`
	Text      int            `json:"text"`
	Media     int            `json:"media"`
	Other     int            `json:"other"`
	PerSender map[string]int `json:"per_sender"`
	Oldest    string         `json:"oldest"`
	Newest    string         `json:"newest"`
}

// shared_media placeholders carry no files and count as other.
var mediaTypes = map[store.RecordType]struct{}{
	store.TypePhoto:       {},
	store.TypeVideo:       {},
	store.TypeMultiMedia:  {},
	store.TypeAlbum:       {},
	store.TypeSharedAlbum: {},
	store.TypeSharedPhoto: {},
}

// Collect tallies a conversation. Records arrive newest first, so the first
// timestamp is the newest and the last one the oldest.
func Collect(records []store.Record) Stats {
	s := Stats{PerSender: make(map[string]int)}

	for _, r := range records {
		s.Total++
		s.PerSender[r.User]++

		if r.Type == store.TypeText {
			s.Text++
		} else if _, ok := mediaTypes[r.Type]; ok {
			s.Media++
		} else {
			s.Other++
		}
	}

	if len(records) > 0 {
		s.Newest = records[0].Timestamp
		s.Oldest = records[len(records)-1].Timestamp
	}

	return s
}
