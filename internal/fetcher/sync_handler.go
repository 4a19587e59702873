// SPDX-License-Identifier: AGPL-3.0-only
package fetcher

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/IvanTran-2001/Instagram-Logging/internal/helpers"
	"github.com/IvanTran-2001/Instagram-Logging/internal/instagram"
	"github.com/IvanTran-2001/Instagram-Logging/internal/store"
)

const (
	inboxLimit       = 20
	rawFallbackLimit = 100
	progressEvery    = 50
	batchLogEvery    = 100
)

// Synchronizer runs incremental sync passes of one direct thread into a
// Conversation.
type Synchronizer struct {
	client ThreadClient
	media  MediaFetcher
	conv   *store.Conversation
	cfg    Config
	log    zerolog.Logger
}

func NewSynchronizer(client ThreadClient, media MediaFetcher, conv *store.Conversation, cfg Config, log zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		client: client,
		media:  media,
		conv:   conv,
		cfg:    cfg,
		log:    log.With().Str("component", "sync").Logger(),
	}
}

// Sync fetches whatever is new in the thread shared with friendPK, downloads
// attachments and prepends the new records to the conversation file. The
// first run against an empty conversation pulls the full history.
func (s *Synchronizer) Sync(ctx context.Context, friendPK int64) (Result, error) {
	started := time.Now()

	existing, err := s.conv.Load()
	if err != nil {
		return Result{}, err
	}
	firstRun := len(existing) == 0
	index := store.NewFingerprintIndex(existing)
	newest, rawNewest, hasNewest := store.NewestSeen(existing)
	if !hasNewest && rawNewest != "" {
		s.log.Warn().Str("timestamp", rawNewest).Msg("stored newest timestamp unparsable, keeping all fetched messages")
	}

	threadID, err := FindThread(ctx, s.client, friendPK)
	if err != nil {
		return Result{}, err
	}

	fetchStart := time.Now()
	var (
		messages []instagram.Message
		raw      RawItems
	)
	if firstRun {
		messages, raw, err = s.fetchAll(ctx, threadID)
	} else {
		messages, raw, err = s.fetchSince(ctx, threadID, newest, hasNewest)
	}
	if err != nil {
		return Result{}, err
	}
	s.ensureRaw(ctx, threadID, raw)
	s.log.Info().Int("messages", len(messages)).Dur("took", time.Since(fetchStart)).Msg("fetch complete")

	entries := make([]store.Record, 0, len(messages))
	mediaCount := 0
	for idx, msg := range messages {
		classified := Classify(msg, raw.Lookup(msg.ID), s.cfg.Location)
		if classified.Record.Timestamp != "" && index.Has(classified.Record) {
			continue
		}

		rec, downloaded := s.materialize(ctx, classified, len(existing)+idx)
		entries = append(entries, rec)
		mediaCount += downloaded
		if rec.Timestamp != "" {
			index.Add(rec)
		}

		if (idx+1)%progressEvery == 0 {
			s.log.Info().Int("done", idx+1).Int("of", len(messages)).Msg("processing messages")
		}
	}

	// The first run writes the file even when the thread is empty, so later
	// runs see a valid conversation.
	if len(entries) > 0 || firstRun {
		if err := s.conv.Save(existing, entries); err != nil {
			return Result{}, err
		}
	} else {
		s.log.Info().Msg("no new messages to save")
	}

	res := Result{
		NewRecords: len(entries),
		NewMedia:   mediaCount,
		Total:      len(existing) + len(entries),
	}
	s.log.Info().
		Int("new_messages", res.NewRecords).
		Int("new_media", res.NewMedia).
		Int("total", res.Total).
		Dur("took", time.Since(started)).
		Msg("sync complete")

	return res, nil
}

// FindThread picks the one-to-one thread whose only other participant is
// friendPK. Group threads never match.
func FindThread(ctx context.Context, client ThreadClient, friendPK int64) (string, error) {
	threads, err := client.DirectThreads(ctx, inboxLimit)
	if err != nil {
		return "", fmt.Errorf("listing inbox threads: %w", err)
	}

	for _, thread := range threads {
		if thread.IsGroup || len(thread.Users) != 1 {
			continue
		}
		if thread.Users[0].PK == friendPK {
			return thread.ThreadID, nil
		}
	}

	return "", fmt.Errorf("%w: no one-to-one thread with user %v", instagram.ErrThreadNotFound, friendPK)
}

// fetchAll pulls the full thread history plus the raw pages that burst and
// album parsing need. First runs only.
func (s *Synchronizer) fetchAll(ctx context.Context, threadID string) ([]instagram.Message, RawItems, error) {
	s.log.Info().Int("limit", s.cfg.FirstRunLimit).Msg("first run, fetching full history")

	messages, err := s.client.DirectThread(ctx, threadID, s.cfg.FirstRunLimit)
	if err != nil {
		if len(messages) == 0 {
			return nil, nil, fmt.Errorf("fetching thread history: %w", err)
		}
		s.log.Warn().Err(err).Int("messages", len(messages)).Msg("history fetch stopped early, keeping what was collected")
	}

	raw := RawItems{}
	cursor := ""
	for batch := 0; batch < s.cfg.FirstRunBatches; batch++ {
		chunk, err := s.client.ThreadChunk(ctx, threadID, cursor, s.cfg.BatchSize)
		if err != nil {
			s.log.Warn().Err(err).Int("batch", batch+1).Msg("raw batch failed, stopping early")
			break
		}
		if len(chunk.Items) == 0 {
			break
		}
		for _, item := range chunk.Items {
			raw.Put(item)
		}

		if (batch+1)%batchLogEvery == 0 {
			s.log.Info().Int("batch", batch+1).Int("raw_items", len(raw)).Msg("fetching raw batches")
		}

		if chunk.OldestCursor == "" {
			break
		}
		cursor = chunk.OldestCursor
		if err := s.sleep(ctx, s.cfg.FirstRunDelay); err != nil {
			return messages, raw, err
		}
	}
	s.log.Info().Int("raw_items", len(raw)).Msg("raw history loaded")

	return messages, raw, nil
}

// fetchSince scans raw pages newest-first until it meets a message at or
// before the newest stored one, then resolves the collected ids to typed
// messages. Items with unparsable timestamps are kept to be safe.
func (s *Synchronizer) fetchSince(ctx context.Context, threadID string, newest time.Time, hasNewest bool) ([]instagram.Message, RawItems, error) {
	raw := RawItems{}
	newIDs := make(map[string]struct{})
	cursor := ""
	batches := 0
	stop := false

	for !stop && batches < s.cfg.MaxBatches {
		chunk, err := s.client.ThreadChunk(ctx, threadID, cursor, s.cfg.BatchSize)
		if err != nil {
			s.log.Warn().Err(err).Int("batch", batches+1).Msg("page fetch failed, stopping early")
			break
		}
		batches++
		s.log.Debug().Int("batch", batches).Int("items", len(chunk.Items)).Msg("scanning page")

		for _, item := range chunk.Items {
			parsed := gjson.ParseBytes(item)
			id := parsed.Get("item_id").String()
			if id == "" {
				continue
			}

			if ts := parsed.Get("timestamp"); present(ts) && hasNewest {
				when, err := itemTime(ts)
				if err != nil {
					s.log.Warn().Err(err).Str("item_id", id).Msg("unparsable item timestamp, keeping message")
				} else if !when.After(newest) {
					s.log.Info().Time("item", when).Time("newest", newest).Msg("found overlap with stored messages")
					stop = true
					break
				}
			}

			newIDs[id] = struct{}{}
			raw[id] = parsed
		}

		if chunk.OldestCursor == "" {
			break
		}
		cursor = chunk.OldestCursor
		if !stop {
			if err := s.sleep(ctx, s.cfg.PageDelay); err != nil {
				return nil, nil, err
			}
		}
	}
	s.log.Info().Int("new_items", len(newIDs)).Int("batches", batches).Msg("scan complete")

	if len(newIDs) == 0 {
		return nil, raw, nil
	}

	messages, err := s.client.DirectThread(ctx, threadID, s.cfg.BatchSize*batches)
	if err != nil {
		if len(messages) == 0 {
			return nil, nil, fmt.Errorf("resolving new messages: %w", err)
		}
		s.log.Warn().Err(err).Msg("typed fetch stopped early, keeping what was collected")
	}

	var fresh []instagram.Message
	for _, msg := range messages {
		if _, ok := newIDs[msg.ID]; ok {
			fresh = append(fresh, msg)
		}
	}
	s.log.Info().Int("messages", len(fresh)).Msg("filtered to new messages")

	return fresh, raw, nil
}

// ensureRaw fetches one raw page when pagination produced none, so album
// parsing still has raw items to work with. Failures are not fatal.
func (s *Synchronizer) ensureRaw(ctx context.Context, threadID string, raw RawItems) {
	if len(raw) > 0 {
		return
	}

	chunk, err := s.client.ThreadChunk(ctx, threadID, "", rawFallbackLimit)
	if err != nil {
		s.log.Warn().Err(err).Msg("could not fetch raw items for album parsing")
		return
	}
	for _, item := range chunk.Items {
		raw.Put(item)
	}
}

// materialize downloads the planned attachments and fills in the record
// paths. Failed downloads degrade the content to a placeholder, the record
// type never changes.
func (s *Synchronizer) materialize(ctx context.Context, c Classified, index int) (store.Record, int) {
	rec := c.Record
	downloaded := 0

	switch rec.Type {
	case store.TypeMultiMedia:
		for i, ref := range c.Media {
			path, err := s.fetchRef(ctx, ref, c.Time, fmt.Sprintf("multi%v_%v", index, i))
			if err != nil {
				s.log.Warn().Err(err).Str("url", ref.url).Msg("media item download failed")
				continue
			}
			rec.MediaItems = append(rec.MediaItems, store.MediaItem{Type: ref.kind, Path: path})
			downloaded++
		}
		if len(rec.MediaItems) > 0 {
			rec.ItemCount = len(rec.MediaItems)
		} else if len(c.Media) > 0 {
			rec.Content = "[media messages - download failed]"
		}

	case store.TypeAlbum, store.TypeSharedAlbum:
		prefix := "album"
		if rec.Type == store.TypeSharedAlbum {
			prefix = "share"
		}
		for i, ref := range c.Media {
			path, err := s.fetchRef(ctx, ref, c.Time, fmt.Sprintf("%v%v_%v", prefix, index, i))
			if err != nil {
				s.log.Warn().Err(err).Str("url", ref.url).Msg("album photo download failed")
				continue
			}
			rec.PhotoPaths = append(rec.PhotoPaths, path)
			downloaded++
		}
		if len(rec.PhotoPaths) > 0 {
			rec.ItemCount = len(rec.PhotoPaths)
		} else if len(c.Media) > 0 {
			rec.Content = "[album - download failed]"
		}

	case store.TypePhoto, store.TypeSharedPhoto:
		if len(c.Media) == 0 {
			break
		}
		path, err := s.fetchRef(ctx, c.Media[0], c.Time, strconv.Itoa(index))
		if err != nil {
			s.log.Warn().Err(err).Str("url", c.Media[0].url).Msg("photo download failed")
			rec.Content = "[photo - download failed]"
			break
		}
		rec.PhotoPath = path
		downloaded++

	case store.TypeVideo:
		if len(c.Media) == 0 {
			break
		}
		path, err := s.fetchRef(ctx, c.Media[0], c.Time, strconv.Itoa(index))
		if err != nil {
			s.log.Warn().Err(err).Str("url", c.Media[0].url).Msg("video download failed")
			rec.Content = "[video - download failed]"
			break
		}
		rec.VideoPath = path
		downloaded++
	}

	return rec, downloaded
}

func (s *Synchronizer) fetchRef(ctx context.Context, ref mediaRef, ts time.Time, label string) (string, error) {
	if ref.kind == "video" {
		return s.media.FetchVideo(ctx, ref.url, ts, label)
	}
	return s.media.FetchPhoto(ctx, ref.url, ts, label)
}

func (s *Synchronizer) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// itemTime reads a raw item timestamp, either microseconds since epoch or a
// formatted string.
func itemTime(v gjson.Result) (time.Time, error) {
	if v.Type == gjson.Number {
		return time.UnixMicro(v.Int()).UTC(), nil
	}
	return helpers.ParseTimestamp(v.String())
}
