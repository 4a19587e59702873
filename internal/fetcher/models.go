package fetcher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"

	"github.com/IvanTran-2001/Instagram-Logging/internal/instagram"
	"github.com/IvanTran-2001/Instagram-Logging/internal/store"
)

// ThreadClient is the slice of the Instagram client the synchronizer needs.
type ThreadClient interface {
	DirectThreads(ctx context.Context, limit int) ([]instagram.Thread, error)
	DirectThread(ctx context.Context, threadID string, amount int) ([]instagram.Message, error)
	ThreadChunk(ctx context.Context, threadID, cursor string, limit int) (instagram.Chunk, error)
}

// MediaFetcher downloads one attachment and returns its stored relative path.
type MediaFetcher interface {
	FetchPhoto(ctx context.Context, url string, ts time.Time, label string) (string, error)
	FetchVideo(ctx context.Context, url string, ts time.Time, label string) (string, error)
}

// Config carries the pagination limits and delays for one sync run.
type Config struct {
	BatchSize       int
	MaxBatches      int
	FirstRunBatches int
	FirstRunLimit   int
	PageDelay       time.Duration
	FirstRunDelay   time.Duration
	Location        *time.Location
}

// Result summarises one completed sync run.
type Result struct {
	NewRecords int
	NewMedia   int
	Total      int
}

type mediaRef struct {
	kind string
	url  string
}

// Classified is the download plan for one message: the record skeleton plus
// the attachments that still have to be fetched.
type Classified struct {
	Record store.Record
	Media  []mediaRef
	Time   time.Time
}

// RawItems indexes raw thread items by item id so classification can reach
// fields the typed message drops.
type RawItems map[string]gjson.Result

func (r RawItems) Put(item json.RawMessage) {
	parsed := gjson.ParseBytes(item)
	if id := parsed.Get("item_id").String(); id != "" {
		r[id] = parsed
	}
}

func (r RawItems) Lookup(id string) gjson.Result {
	return r[id]
}
