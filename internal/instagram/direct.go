package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const chunkSize = 20

// media_type values the API tags attachments with.
const (
	MediaTypePhoto = 1
	MediaTypeVideo = 2
)

type Thread struct {
	ThreadID string `json:"thread_id"`
	IsGroup  bool   `json:"is_group"`
	Users    []User `json:"users"`
}

// Message is the typed view of one thread item. Raw keeps the original JSON
// for media shapes the typed fields cannot express.
type Message struct {
	ID        string
	UserID    int64
	Timestamp time.Time
	ItemType  string
	Text      string
	MediaType int
	PhotoURL  string
	VideoURL  string
	LinkText  string
	LinkURL   string
	Raw       json.RawMessage
}

// Chunk is one raw pagination page of a thread, newest item first.
type Chunk struct {
	Items        []json.RawMessage
	OldestCursor string
	HasOlder     bool
}

// DirectThreads lists inbox threads with their participants.
func (c *Client) DirectThreads(ctx context.Context, limit int) ([]Thread, error) {
	query := url.Values{
		"visual_message_return_type": {"unseen"},
		"thread_message_limit":       {"10"},
		"persistentBadging":          {"true"},
		"limit":                      {strconv.Itoa(limit)},
	}

	data, _, err := c.request(ctx, http.MethodGet, "/direct_v2/inbox/", query, nil)
	if err != nil {
		return nil, fmt.Errorf("listing inbox: %w", err)
	}

	var out struct {
		Inbox struct {
			Threads []Thread `json:"threads"`
		} `json:"inbox"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing inbox response: %w", err)
	}

	return out.Inbox.Threads, nil
}

// ThreadChunk fetches one raw page. An empty cursor starts from the newest
// end, the returned cursor continues towards older history.
func (c *Client) ThreadChunk(ctx context.Context, threadID, cursor string, limit int) (Chunk, error) {
	query := url.Values{
		"visual_message_return_type": {"unseen"},
		"direction":                  {"older"},
		"limit":                      {strconv.Itoa(limit)},
	}
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	data, _, err := c.request(ctx, http.MethodGet, "/direct_v2/threads/"+threadID+"/", query, nil)
	if err != nil {
		return Chunk{}, fmt.Errorf("fetching thread chunk: %w", err)
	}

	var out struct {
		Thread struct {
			Items        []json.RawMessage `json:"items"`
			OldestCursor string            `json:"oldest_cursor"`
			HasOlder     bool              `json:"has_older"`
		} `json:"thread"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return Chunk{}, fmt.Errorf("parsing thread response: %w", err)
	}

	return Chunk{
		Items:        out.Thread.Items,
		OldestCursor: out.Thread.OldestCursor,
		HasOlder:     out.Thread.HasOlder,
	}, nil
}

// DirectThread collects up to amount typed messages, newest first, walking
// the cursor towards older history.
func (c *Client) DirectThread(ctx context.Context, threadID string, amount int) ([]Message, error) {
	var messages []Message
	cursor := ""

	for len(messages) < amount {
		chunk, err := c.ThreadChunk(ctx, threadID, cursor, chunkSize)
		if err != nil {
			return messages, err
		}

		for _, raw := range chunk.Items {
			msg, err := ParseMessage(raw)
			if err != nil {
				c.log.Warn().Err(err).Msg("skipping unparsable thread item")
				continue
			}
			messages = append(messages, msg)
			if len(messages) == amount {
				return messages, nil
			}
		}

		if !chunk.HasOlder || chunk.OldestCursor == "" {
			break
		}
		cursor = chunk.OldestCursor

		if c.cfg.PageDelay > 0 {
			select {
			case <-ctx.Done():
				return messages, ctx.Err()
			case <-time.After(c.cfg.PageDelay):
			}
		}
	}

	return messages, nil
}

// ParseMessage lifts the typed fields out of a raw thread item. A missing
// timestamp leaves the zero time, callers treat those conservatively.
func ParseMessage(raw json.RawMessage) (Message, error) {
	var item struct {
		ItemID    string `json:"item_id"`
		UserID    int64  `json:"user_id"`
		Timestamp int64  `json:"timestamp"`
		ItemType  string `json:"item_type"`
		Text      string `json:"text"`
		Media     struct {
			MediaType      int `json:"media_type"`
			ImageVersions2 struct {
				Candidates []struct {
					URL string `json:"url"`
				} `json:"candidates"`
			} `json:"image_versions2"`
			VideoVersions []struct {
				URL string `json:"url"`
			} `json:"video_versions"`
		} `json:"media"`
		Link struct {
			Text        string `json:"text"`
			LinkContext struct {
				LinkURL string `json:"link_url"`
			} `json:"link_context"`
		} `json:"link"`
	}

	if err := json.Unmarshal(raw, &item); err != nil {
		return Message{}, fmt.Errorf("parsing thread item: %w", err)
	}

	msg := Message{
		ID:        item.ItemID,
		UserID:    item.UserID,
		ItemType:  item.ItemType,
		Text:      item.Text,
		MediaType: item.Media.MediaType,
		LinkText:  item.Link.Text,
		LinkURL:   item.Link.LinkContext.LinkURL,
		Raw:       raw,
	}

	if item.Timestamp > 0 {
		msg.Timestamp = time.UnixMicro(item.Timestamp).UTC()
	}
	if len(item.Media.ImageVersions2.Candidates) > 0 {
		msg.PhotoURL = item.Media.ImageVersions2.Candidates[0].URL
	}
	if len(item.Media.VideoVersions) > 0 {
		msg.VideoURL = item.Media.VideoVersions[0].URL
	}

	return msg, nil
}
