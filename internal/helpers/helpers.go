package helpers

import (
	"fmt"
	"time"
)

// Filename stamps used for downloaded media, e.g.
// 20240131_154501_31-Jan-2024_15-45-01_12.jpg.
const (
	SortableStamp = "20060102_150405"
	ReadableStamp = "02-Jan-2006_15-04-05"
)

// Layouts older conversation files may have been written with, newest first.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05-07:00",
}

func ParseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp %v does not match any known layout", value)
}

func FormatTimestamp(ts time.Time) string {
	return ts.Format(time.RFC3339)
}

func ProfileURL(username string) string {
	return "https://instagram.com/" + username
}
