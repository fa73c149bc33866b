// Package storage persists fetched bulletin files and archive members.
// Keys follow a date-partitioned layout so a day's files can be listed
// with a single prefix.
package storage

import (
	"context"
	"fmt"
	"time"
)

// ObjectStore is the write/read surface the pipeline uses for bulletin
// files. Implementations must make Put atomic: a key either holds a
// complete object or does not exist.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// EntryKey builds the storage key for a downloaded file:
// {year}/{month}/{day}/{category}/{filename}.
func EntryKey(date time.Time, category, filename string) string {
	return fmt.Sprintf("%04d/%02d/%02d/%s/%s", date.Year(), date.Month(), date.Day(), category, filename)
}

// ExtractedKey builds the storage key for a file recovered from an
// archive: extracted/{year}/{month}/{day}/{filename}.
func ExtractedKey(date time.Time, filename string) string {
	return fmt.Sprintf("extracted/%04d/%02d/%02d/%s", date.Year(), date.Month(), date.Day(), filename)
}
