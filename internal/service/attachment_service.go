package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/rs/zerolog"

	"chatdeck/api/internal/ids"
	"chatdeck/api/internal/models"
	"chatdeck/api/internal/repository"
)

var ErrEmptyFile = errors.New("file is empty")

type attachmentGateway interface {
	UploadFile(ctx context.Context, fileName string, data []byte) (string, error)
	BuildAssistant(ctx context.Context, fileIDs []string) (string, error)
	DeleteFile(ctx context.Context, fileID string) error
	DeleteAssistant(ctx context.Context, assistantRef string) error
}

type attachmentStore interface {
	GetSession(ctx context.Context, userID, sessionID string) (models.ChatSession, error)
	AddAttachment(ctx context.Context, userID, sessionID string, att models.Attachment, rebind repository.Rebind) error
	RemoveAttachment(ctx context.Context, userID, sessionID, fileName string, rebind repository.Rebind) (models.Attachment, error)
}

type attachmentObjects interface {
	PutAttachment(ctx context.Context, objectKey string, r io.Reader, size int64, contentType string) error
	RemoveAttachment(ctx context.Context, objectKey string) error
}

// AttachmentService keeps a session's file set, its object-store copies and
// its provider-side assistant in step. The assistant reference is rebuilt
// over the full current file-id set on every change.
type AttachmentService struct {
	store   attachmentStore
	gateway attachmentGateway
	objects attachmentObjects
	log     zerolog.Logger
}

func NewAttachmentService(store attachmentStore, gateway attachmentGateway, objects attachmentObjects, log zerolog.Logger) *AttachmentService {
	return &AttachmentService{
		store:   store,
		gateway: gateway,
		objects: objects,
		log:     log,
	}
}

// Attach registers the file under the session. Attaching a file name that is
// already present is a no-op: the file set has set semantics.
func (s *AttachmentService) Attach(ctx context.Context, userID, sessionID, fileName string, data []byte, contentType string) (models.ChatSession, error) {
	if len(data) == 0 {
		return models.ChatSession{}, ErrEmptyFile
	}

	session, err := s.store.GetSession(ctx, userID, sessionID)
	if err != nil {
		return models.ChatSession{}, err
	}

	for _, att := range session.Attachments {
		if att.FileName == fileName {
			return session, nil
		}
	}

	objectKey := path.Join(sessionID, ids.New()+"-"+fileName)
	if err := s.objects.PutAttachment(ctx, objectKey, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return models.ChatSession{}, err
	}

	fileID, err := s.gateway.UploadFile(ctx, fileName, data)
	if err != nil {
		return models.ChatSession{}, fmt.Errorf("provider upload: %w", err)
	}

	fileIDs := make([]string, 0, len(session.Attachments)+1)
	for _, att := range session.Attachments {
		fileIDs = append(fileIDs, att.ProviderFileID)
	}
	fileIDs = append(fileIDs, fileID)

	assistantRef, err := s.gateway.BuildAssistant(ctx, fileIDs)
	if err != nil {
		return models.ChatSession{}, fmt.Errorf("build assistant: %w", err)
	}

	attachment := models.Attachment{
		SessionID:      sessionID,
		FileName:       fileName,
		ProviderFileID: fileID,
		ObjectKey:      objectKey,
	}
	rebind := repository.Rebind{Mode: models.ModeAssistant, AssistantRef: assistantRef}
	if err := s.store.AddAttachment(ctx, userID, sessionID, attachment, rebind); err != nil {
		return models.ChatSession{}, err
	}

	s.dropAssistant(ctx, session.AssistantRef)

	return s.store.GetSession(ctx, userID, sessionID)
}

// Detach removes the named file. When it was the last one the session drops
// back to freeform mode; otherwise the assistant is rebuilt over the rest.
func (s *AttachmentService) Detach(ctx context.Context, userID, sessionID, fileName string) (models.ChatSession, error) {
	session, err := s.store.GetSession(ctx, userID, sessionID)
	if err != nil {
		return models.ChatSession{}, err
	}

	var remaining []string
	found := false
	for _, att := range session.Attachments {
		if att.FileName == fileName {
			found = true
			continue
		}
		remaining = append(remaining, att.ProviderFileID)
	}
	if !found {
		return models.ChatSession{}, repository.ErrAttachmentNotFound
	}

	rebind := repository.Rebind{Mode: models.ModeFreeform}
	if len(remaining) > 0 {
		assistantRef, err := s.gateway.BuildAssistant(ctx, remaining)
		if err != nil {
			return models.ChatSession{}, fmt.Errorf("rebuild assistant: %w", err)
		}
		rebind = repository.Rebind{Mode: models.ModeAssistant, AssistantRef: assistantRef}
	}

	removed, err := s.store.RemoveAttachment(ctx, userID, sessionID, fileName, rebind)
	if err != nil {
		// The replacement assistant was never bound; drop it before bailing.
		s.dropAssistant(ctx, rebind.AssistantRef)
		return models.ChatSession{}, err
	}

	// Cleanup of detached resources is best-effort; the sweep job catches
	// whatever slips through here.
	if err := s.gateway.DeleteFile(ctx, removed.ProviderFileID); err != nil {
		s.log.Warn().Err(err).Str("file_id", removed.ProviderFileID).Msg("provider file delete failed")
	}
	if err := s.objects.RemoveAttachment(ctx, removed.ObjectKey); err != nil {
		s.log.Warn().Err(err).Str("object_key", removed.ObjectKey).Msg("object delete failed")
	}
	s.dropAssistant(ctx, session.AssistantRef)

	return s.store.GetSession(ctx, userID, sessionID)
}

func (s *AttachmentService) dropAssistant(ctx context.Context, assistantRef string) {
	if assistantRef == "" {
		return
	}
	if err := s.gateway.DeleteAssistant(ctx, assistantRef); err != nil {
		s.log.Warn().Err(err).Str("assistant_ref", assistantRef).Msg("assistant delete failed")
	}
}
