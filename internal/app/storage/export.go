package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hichat/internal/app/store"
	"hichat/internal/app/user"
)

const (
	// DownloadLinkDuration is how long an export link stays valid.
	DownloadLinkDuration = 15 * time.Minute

	transcriptContentType = "application/x-ndjson"
)

// Export describes an uploaded transcript.
type Export struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Messages  int       `json:"messages"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// transcriptLine is one message in the exported file.
type transcriptLine struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sentAt"`
}

// Exporter writes the recent history window to object storage as newline-delimited JSON.
type Exporter struct {
	objects ObjectStore
	store   store.Gateway
	limit   int
	now     func() time.Time
}

func NewExporter(objects ObjectStore, gw store.Gateway, limit int) *Exporter {
	return &Exporter{objects: objects, store: gw, limit: limit, now: time.Now}
}

// ExportHistory uploads the visible history for requester and returns a download link.
func (e *Exporter) ExportHistory(ctx context.Context, requester user.Identity) (Export, error) {
	msgs, err := e.store.RecentMessages(ctx, e.limit)
	if err != nil {
		return Export{}, fmt.Errorf("storage: load history: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, m := range msgs {
		line := transcriptLine{
			ID:       m.ID,
			Username: m.Author,
			Text:     m.Text,
			SentAt:   time.UnixMilli(m.Timestamp).UTC(),
		}
		if err := enc.Encode(line); err != nil {
			return Export{}, fmt.Errorf("storage: encode transcript: %w", err)
		}
	}

	now := e.now().UTC()
	key := fmt.Sprintf("exports/%s/%s.ndjson", requester.ID, now.Format("20060102T150405.000Z"))

	if err := e.objects.Put(ctx, key, transcriptContentType, &buf); err != nil {
		return Export{}, err
	}

	url, err := e.objects.PresignDownload(ctx, key, DownloadLinkDuration)
	if err != nil {
		// Nobody can fetch the object without a link.
		if delErr := e.objects.Delete(ctx, key); delErr != nil {
			return Export{}, errors.Join(err, delErr)
		}
		return Export{}, err
	}

	return Export{
		Key:       key,
		URL:       url,
		Messages:  len(msgs),
		ExpiresAt: now.Add(DownloadLinkDuration),
	}, nil
}
