package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nl2sqlchat/nl2sqlchat/internal/observability"
	"github.com/nl2sqlchat/nl2sqlchat/internal/storage"
)

const defaultURLExpiry = 15 * time.Minute

var ErrStoreNotConfigured = errors.New("export object store is not configured")

type Receipt struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	ETag        string    `json:"etag,omitempty"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Exporter uploads assistant results to the object store as parquet files
// and hands back a presigned download link.
type Exporter struct {
	Store     storage.ObjectStore
	URLExpiry time.Duration
	Now       func() time.Time
}

func (e *Exporter) Export(ctx context.Context, sessionID string, turn int, columns []string, rows [][]any) (Receipt, error) {
	if e == nil || e.Store == nil {
		return Receipt{}, ErrStoreNotConfigured
	}
	now := time.Now().UTC()
	if e.Now != nil {
		now = e.Now().UTC()
	}
	key, err := storage.BuildExportPath(sessionID, turn, now)
	if err != nil {
		return Receipt{}, err
	}

	info, err := e.Store.Stat(ctx, key)
	switch {
	case err == nil:
		// Transcript turns never change, so an earlier upload is still valid.
	case errors.Is(err, storage.ErrObjectNotFound):
		payload, encodeErr := EncodeParquet(columns, rows)
		if encodeErr != nil {
			return Receipt{}, encodeErr
		}
		info, err = e.Store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{
			ContentType: ContentType,
			Metadata: map[string]string{
				"session-id": sessionID,
				"turn":       strconv.Itoa(turn),
				"rows":       strconv.Itoa(len(rows)),
			},
		})
		if err != nil {
			return Receipt{}, fmt.Errorf("upload export: %w", err)
		}
		if info.Size == 0 {
			info.Size = int64(len(payload))
		}
	default:
		return Receipt{}, fmt.Errorf("check existing export: %w", err)
	}

	expiry := e.URLExpiry
	if expiry <= 0 {
		expiry = defaultURLExpiry
	}
	url, err := e.Store.PresignGet(ctx, key, expiry)
	if err != nil {
		return Receipt{}, err
	}
	observability.ObserveExport("object_store")
	return Receipt{
		Key:         key,
		Size:        info.Size,
		ETag:        info.ETag,
		DownloadURL: url,
		ExpiresAt:   now.Add(expiry),
	}, nil
}
