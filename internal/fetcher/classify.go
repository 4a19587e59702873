// SPDX-License-Identifier: AGPL-3.0-only
package fetcher

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/IvanTran-2001/Instagram-Logging/internal/helpers"
	"github.com/IvanTran-2001/Instagram-Logging/internal/instagram"
	"github.com/IvanTran-2001/Instagram-Logging/internal/store"
)

// Classify maps one thread message onto a record skeleton and a list of
// attachments to download. The record type is final here: download failures
// later may degrade the content but never the type.
func Classify(msg instagram.Message, raw gjson.Result, loc *time.Location) Classified {
	if !raw.Exists() && len(msg.Raw) > 0 {
		raw = gjson.ParseBytes(msg.Raw)
	}

	c := Classified{Record: store.Record{User: senderKey(msg.UserID)}}
	if !msg.Timestamp.IsZero() {
		c.Time = msg.Timestamp.In(location(loc))
		c.Record.Timestamp = helpers.FormatTimestamp(c.Time)
	}

	// Burst of photos and videos sent as a single message.
	if visual := raw.Get("visual_media"); len(visual.Array()) > 0 {
		c.Record.Type = store.TypeMultiMedia
		for _, item := range visual.Array() {
			media := item.Get("media")
			if videos := media.Get("video_versions"); len(videos.Array()) > 0 {
				if url := videos.Array()[0].Get("url").String(); url != "" {
					c.Media = append(c.Media, mediaRef{kind: "video", url: url})
				}
				continue
			}
			if url := media.Get("image_versions2.candidates.0.url").String(); url != "" {
				c.Media = append(c.Media, mediaRef{kind: "photo", url: url})
			}
		}
		if len(c.Media) == 0 {
			c.Record.Content = "[media messages - could not extract]"
		}
		return c
	}

	if msg.Text != "" {
		c.Record.Type = store.TypeText
		c.Record.Content = msg.Text
		return c
	}

	if msg.ItemType == "generic_xma" {
		c.Record.Type = store.TypeAlbum
		if xma := raw.Get("generic_xma"); xma.IsArray() {
			for _, entry := range xma.Array() {
				if url := entry.Get("preview_url_info.url").String(); url != "" {
					c.Media = append(c.Media, mediaRef{kind: "photo", url: url})
				}
			}
		}
		if len(c.Media) == 0 {
			c.Record.Content = "[album - could not extract photos]"
		}
		return c
	}

	if msg.ItemType == "media_share" {
		return classifyShare(c, raw.Get("media_share"))
	}

	switch {
	case msg.VideoURL != "" && msg.MediaType == instagram.MediaTypeVideo:
		c.Record.Type = store.TypeVideo
		c.Media = append(c.Media, mediaRef{kind: "video", url: msg.VideoURL})
		return c
	case msg.PhotoURL != "":
		c.Record.Type = store.TypePhoto
		c.Media = append(c.Media, mediaRef{kind: "photo", url: msg.PhotoURL})
		return c
	case msg.VideoURL != "":
		c.Record.Type = store.TypeVideo
		c.Media = append(c.Media, mediaRef{kind: "video", url: msg.VideoURL})
		return c
	}

	return classifyRemainder(c, msg, raw)
}

// classifyShare handles media_share items: carousels become shared albums,
// single posts shared photos, anything else keeps a placeholder.
func classifyShare(c Classified, share gjson.Result) Classified {
	if carousel := share.Get("carousel_media"); len(carousel.Array()) > 0 {
		for _, item := range carousel.Array() {
			if url := item.Get("image_versions2.candidates.0.url").String(); url != "" {
				c.Media = append(c.Media, mediaRef{kind: "photo", url: url})
			}
		}
		if len(c.Media) > 0 {
			c.Record.Type = store.TypeSharedAlbum
			return c
		}
	} else if present(share.Get("image_versions2")) {
		if url := share.Get("image_versions2.candidates.0.url").String(); url != "" {
			c.Record.Type = store.TypeSharedPhoto
			c.Media = append(c.Media, mediaRef{kind: "photo", url: url})
			return c
		}
	}

	c.Record.Type = store.TypeSharedMedia
	c.Record.Content = "[shared media - could not extract]"
	return c
}

// classifyRemainder covers the item types that carry no downloadable media.
// The stored type is the raw item type tag, even for tags this code does not
// know about.
func classifyRemainder(c Classified, msg instagram.Message, raw gjson.Result) Classified {
	itemType := msg.ItemType
	if itemType == "" {
		itemType = "unknown"
	}
	c.Record.Type = store.RecordType(itemType)

	switch {
	case msg.LinkURL != "" || msg.LinkText != "" || present(raw.Get("link")):
		text := msg.LinkText
		if text == "" {
			text = "link"
		}
		c.Record.Content = fmt.Sprintf("[link: %v]", text)
		c.Record.URL = msg.LinkURL
	case present(raw.Get("animated_media")):
		c.Record.Content = "[animated media/GIF]"
	case present(raw.Get("voice_media")):
		c.Record.Content = "[voice message]"
	case present(raw.Get("story_share")):
		c.Record.Content = "[story share]"
	case present(raw.Get("felix_share")):
		c.Record.Content = "[reel share]"
	case present(raw.Get("clip")):
		c.Record.Content = "[clip/reel]"
	case present(raw.Get("placeholder")):
		text := raw.Get("placeholder.message").String()
		if text == "" {
			text = "placeholder"
		}
		c.Record.Content = "[" + text + "]"
	default:
		c.Record.Content = "[" + itemType + "]"
	}

	return c
}

func senderKey(userID int64) string {
	if userID == 0 {
		return "unknown"
	}
	return fmt.Sprintf("user_%v", userID)
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// present reports whether a raw field exists and is not JSON null.
func present(v gjson.Result) bool {
	return v.Exists() && v.Type != gjson.Null
}
