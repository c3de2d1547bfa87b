package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"intervue/internal/common/storage"

	"github.com/klauspost/compress/zstd"
)

const archiveContentType = "application/zstd"

// Archiver writes a compressed copy of the finished interview to object
// storage, one object per session.
type Archiver struct {
	storage storage.ObjectStorage
	bucket  string
	encoder *zstd.Encoder
}

type archiveDocument struct {
	SessionID  string          `json:"session_id"`
	ArchivedAt time.Time       `json:"archived_at"`
	Transcript string          `json:"transcript"`
	FinalCode  string          `json:"final_code"`
	Events     json.RawMessage `json:"events"`
}

// NewArchiver creates an archiver targeting the given bucket.
func NewArchiver(objectStorage storage.ObjectStorage, bucket string) (*Archiver, error) {
	if objectStorage == nil {
		return nil, fmt.Errorf("object storage is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder failed: %w", err)
	}
	return &Archiver{storage: objectStorage, bucket: bucket, encoder: encoder}, nil
}

// Archive compresses and uploads the session's report material.
func (a *Archiver) Archive(ctx context.Context, sessionID, transcript, finalCode, events string) error {
	document := archiveDocument{
		SessionID:  sessionID,
		ArchivedAt: time.Now().UTC(),
		Transcript: transcript,
		FinalCode:  finalCode,
		Events:     json.RawMessage(events),
	}
	payload, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("marshal archive document failed: %w", err)
	}

	compressed := a.encoder.EncodeAll(payload, nil)
	key := archiveKey(sessionID)
	if err := a.storage.PutObject(ctx, a.bucket, key, bytes.NewReader(compressed), int64(len(compressed)), archiveContentType); err != nil {
		return fmt.Errorf("upload archive %s failed: %w", key, err)
	}
	return nil
}

func archiveKey(sessionID string) string {
	return "sessions/" + sessionID + "/report.json.zst"
}
