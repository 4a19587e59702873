// SPDX-License-Identifier: AGPL-3.0-only
package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/IvanTran-2001/Instagram-Logging/internal/helpers"
)

// Downloader saves message media into a conversation's photos folder.
// Photos and videos get separate clients, video CDN urls are slower and
// deserve the longer timeout.
type Downloader struct {
	photosDir   string
	photoClient http.Client
	videoClient http.Client
	log         zerolog.Logger
}

func NewDownloader(photosDir string, photoTimeout, videoTimeout time.Duration, log zerolog.Logger) *Downloader {
	return &Downloader{
		photosDir:   photosDir,
		photoClient: http.Client{Timeout: photoTimeout},
		videoClient: http.Client{Timeout: videoTimeout},
		log:         log.With().Str("component", "media").Logger(),
	}
}

// FetchPhoto downloads url and stores it as a jpg, converting WEBP payloads
// on the way. It returns the path relative to the conversation folder, the
// form recorded in conversation.json.
func (d *Downloader) FetchPhoto(ctx context.Context, url string, ts time.Time, label string) (string, error) {
	data, err := d.fetch(ctx, &d.photoClient, url)
	if err != nil {
		return "", err
	}

	data, err = EnsureJPEG(data)
	if err != nil {
		return "", err
	}

	return d.write(data, ts, label, "jpg")
}

// FetchVideo downloads url and stores it as an mp4.
func (d *Downloader) FetchVideo(ctx context.Context, url string, ts time.Time, label string) (string, error) {
	data, err := d.fetch(ctx, &d.videoClient, url)
	if err != nil {
		return "", err
	}

	return d.write(data, ts, label, "mp4")
}

func (d *Downloader) fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building media request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching media: unexpected status %v", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading media body: %w", err)
	}

	return data, nil
}

func (d *Downloader) write(data []byte, ts time.Time, label, ext string) (string, error) {
	if ts.IsZero() {
		ts = time.Now()
	}

	name := fmt.Sprintf("%v_%v_%v.%v", ts.Format(helpers.SortableStamp), ts.Format(helpers.ReadableStamp), label, ext)
	if err := os.WriteFile(filepath.Join(d.photosDir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("writing %v: %w", name, err)
	}

	d.log.Info().Str("file", name).Msg("downloaded")
	return "photos/" + name, nil
}
