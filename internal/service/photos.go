package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"crewshift-bot/internal/metrics"
	"crewshift-bot/internal/model"
	"crewshift-bot/internal/photostore"
)

// PhotoPipeline fetches worker photos, stores them under the session and forwards them to supervisors.
// Each photo succeeds or fails on its own.
type PhotoPipeline struct {
	mm       Messenger
	sessions SessionStore
	storage  PhotoStorage
	maxDim   int
}

// NewPhotoPipeline builds the pipeline. A nil storage forwards photos without keeping them.
func NewPhotoPipeline(mm Messenger, sessions SessionStore, storage PhotoStorage, maxDim int) *PhotoPipeline {
	return &PhotoPipeline{mm: mm, sessions: sessions, storage: storage, maxDim: maxDim}
}

// Process handles every file id and returns how many were processed without error.
func (p *PhotoPipeline) Process(ctx context.Context, sess *model.ShiftSession, fileIDs, channels []string, caption string) int {
	ok := 0
	for _, fileID := range fileIDs {
		err := p.processOne(ctx, sess, fileID, channels, caption)
		metrics.Photos.WithLabelValues(metrics.Result(err)).Inc()
		if err != nil {
			log.Printf("ERROR photo %s for session %s: %v", fileID, sess.ID.Hex(), err)
			continue
		}
		ok++
	}
	return ok
}

func (p *PhotoPipeline) processOne(ctx context.Context, sess *model.ShiftSession, fileID string, channels []string, caption string) error {
	data, mimeType, err := p.mm.FetchPhoto(ctx, fileID)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if normalized, err := photostore.Normalize(data, p.maxDim); err != nil {
		log.Printf("WARN photo %s kept as uploaded: %v", fileID, err)
	} else {
		data, mimeType = normalized, "image/jpeg"
	}

	photo := &model.ShiftPhoto{
		SessionID: sess.ID,
		WorkerID:  sess.WorkerID,
		ObjectID:  sess.ObjectID,
		Kind:      model.PhotoKindEnd,
		SourceID:  fileID,
	}
	var errs []error
	if p.storage != nil {
		key := fmt.Sprintf("sessions/%s/%s%s", sess.ID.Hex(), uuid.NewString(), extension(mimeType))
		if url, err := p.storage.Put(ctx, key, data, mimeType); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		} else {
			photo.StorageKey, photo.URL = key, url
		}
	}
	if err := p.sessions.AddPhoto(ctx, photo); err != nil {
		errs = append(errs, fmt.Errorf("record: %w", err))
	}

	filename := fileID + extension(mimeType)
	for _, ch := range channels {
		if err := p.mm.SendPhoto(ctx, ch, data, filename, caption); err != nil {
			log.Printf("ERROR forward photo %s to %s: %v", fileID, ch, err)
		}
	}
	return errors.Join(errs...)
}

func extension(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
