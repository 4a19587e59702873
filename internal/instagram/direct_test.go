package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectThreadsParsesInbox(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/direct_v2/inbox/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "unseen", r.URL.Query().Get("visual_message_return_type"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		fmt.Fprint(w, `{"status":"ok","inbox":{"threads":[
			{"thread_id":"t1","is_group":false,"users":[{"pk":7788,"username":"some.friend"}]},
			{"thread_id":"t2","is_group":true,"users":[{"pk":7788,"username":"some.friend"},{"pk":9,"username":"other"}]}
		]}}`)
	})

	c := newTestClient(t, mux, Config{})

	threads, err := c.DirectThreads(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, "t1", threads[0].ThreadID)
	assert.False(t, threads[0].IsGroup)
	assert.Equal(t, int64(7788), threads[0].Users[0].PK)
	assert.True(t, threads[1].IsGroup)
}

func TestThreadChunkPassesCursor(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/direct_v2/threads/t1/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "older", r.URL.Query().Get("direction"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "cur123", r.URL.Query().Get("cursor"))
		fmt.Fprint(w, `{"status":"ok","thread":{"items":[{"item_id":"a"}],"oldest_cursor":"cur124","has_older":true}}`)
	})

	c := newTestClient(t, mux, Config{})

	chunk, err := c.ThreadChunk(context.Background(), "t1", "cur123", 5)
	require.NoError(t, err)
	assert.Len(t, chunk.Items, 1)
	assert.Equal(t, "cur124", chunk.OldestCursor)
	assert.True(t, chunk.HasOlder)
}

func TestDirectThreadPaginatesUntilAmount(t *testing.T) {
	pages := map[string]string{
		"": `{"status":"ok","thread":{"items":[
			{"item_id":"a","user_id":7,"timestamp":1706676301000000,"item_type":"text","text":"newest"},
			{"item_id":"b","user_id":7,"timestamp":1706676300000000,"item_type":"text","text":"second"}
		],"oldest_cursor":"c1","has_older":true}}`,
		"c1": `{"status":"ok","thread":{"items":[
			{"item_id":"c","user_id":8,"timestamp":1706676299000000,"item_type":"text","text":"third"},
			{"item_id":"d","user_id":8,"timestamp":1706676298000000,"item_type":"text","text":"fourth"}
		],"oldest_cursor":"","has_older":false}}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/direct_v2/threads/t1/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pages[r.URL.Query().Get("cursor")])
	})

	c := newTestClient(t, mux, Config{})

	messages, err := c.DirectThread(context.Background(), "t1", 3)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "a", messages[0].ID)
	assert.Equal(t, "c", messages[2].ID)
	assert.Equal(t, "third", messages[2].Text)
}

func TestDirectThreadStopsWhenHistoryEnds(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/direct_v2/threads/t1/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok","thread":{"items":[
			{"item_id":"a","user_id":7,"timestamp":1706676301000000,"item_type":"text","text":"only"}
		],"oldest_cursor":"","has_older":false}}`)
	})

	c := newTestClient(t, mux, Config{})

	messages, err := c.DirectThread(context.Background(), "t1", 500)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestParseMessageText(t *testing.T) {
	raw := json.RawMessage(`{"item_id":"a","user_id":7,"timestamp":1706676301000000,"item_type":"text","text":"hi there"}`)

	msg, err := ParseMessage(raw)
	require.NoError(t, err)

	assert.Equal(t, "a", msg.ID)
	assert.Equal(t, int64(7), msg.UserID)
	assert.Equal(t, "text", msg.ItemType)
	assert.Equal(t, "hi there", msg.Text)
	assert.True(t, msg.Timestamp.Equal(time.UnixMicro(1706676301000000)))
	assert.Equal(t, raw, msg.Raw)
}

func TestParseMessagePhoto(t *testing.T) {
	raw := json.RawMessage(`{"item_id":"p","user_id":7,"timestamp":1,"item_type":"media","media":{"media_type":1,"image_versions2":{"candidates":[{"url":"https://cdn.example/a.jpg"},{"url":"https://cdn.example/small.jpg"}]}}}`)

	msg, err := ParseMessage(raw)
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example/a.jpg", msg.PhotoURL)
	assert.Empty(t, msg.VideoURL)
}

func TestParseMessageVideo(t *testing.T) {
	raw := json.RawMessage(`{"item_id":"v","user_id":7,"timestamp":1,"item_type":"media","media":{"media_type":2,"image_versions2":{"candidates":[{"url":"https://cdn.example/thumb.jpg"}]},"video_versions":[{"url":"https://cdn.example/v.mp4"}]}}`)

	msg, err := ParseMessage(raw)
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example/v.mp4", msg.VideoURL)
	assert.Equal(t, "https://cdn.example/thumb.jpg", msg.PhotoURL)
}

func TestParseMessageLink(t *testing.T) {
	raw := json.RawMessage(`{"item_id":"l","user_id":7,"timestamp":1,"item_type":"link","link":{"text":"see this","link_context":{"link_url":"https://example.com"}}}`)

	msg, err := ParseMessage(raw)
	require.NoError(t, err)

	assert.Equal(t, "see this", msg.LinkText)
	assert.Equal(t, "https://example.com", msg.LinkURL)
}

func TestParseMessageMissingTimestamp(t *testing.T) {
	msg, err := ParseMessage(json.RawMessage(`{"item_id":"x","user_id":7,"item_type":"text","text":"no ts"}`))
	require.NoError(t, err)
	assert.True(t, msg.Timestamp.IsZero())
}

func TestParseMessageGarbage(t *testing.T) {
	_, err := ParseMessage(json.RawMessage(`{"item_id":`))
	assert.Error(t, err)
}
