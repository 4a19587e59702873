// SPDX-License-Identifier: AGPL-3.0-only
package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/gen2brain/webp"
	"golang.org/x/image/draw"
)

// EnsureJPEG converts WEBP photo payloads to JPEG. Instagram CDN serves webp
// for some photo urls regardless of the .jpg extension they carry.
func EnsureJPEG(data []byte) ([]byte, error) {
	if !isWEBP(data) {
		return data, nil
	}

	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding webp: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}

	return buf.Bytes(), nil
}

func isWEBP(data []byte) bool {
	return len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}

// SaveAvatar downloads the counterpart's profile picture, center crops it
// and stores a 512x512 webp thumbnail in the conversation folder.
func (d *Downloader) SaveAvatar(ctx context.Context, url, dir string) (string, error) {
	data, err := d.fetch(ctx, &d.photoClient, url)
	if err != nil {
		return "", err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decoding avatar: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	minDim := width
	if height < width {
		minDim = height
	}
	x0 := (width - minDim) / 2
	y0 := (height - minDim) / 2
	cropRect := image.Rect(x0, y0, x0+minDim, y0+minDim)

	dst := image.NewRGBA(image.Rect(0, 0, 512, 512))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, cropRect, draw.Over, nil)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, dst, webp.Options{Lossless: false, Quality: 85}); err != nil {
		return "", fmt.Errorf("encoding avatar: %w", err)
	}

	path := filepath.Join(dir, "avatar.webp")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("writing avatar: %w", err)
	}

	d.log.Info().Str("file", path).Msg("avatar saved")
	return path, nil
}
