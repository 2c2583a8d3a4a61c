package service

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/rs/zerolog"

	"chatdeck/api/internal/ids"
	"chatdeck/api/internal/models"
	"chatdeck/api/internal/repository"
	"chatdeck/api/internal/storage"
)

// AccountService covers profile updates and the account-deletion cascade.
type AccountService struct {
	users   *repository.UserRepository
	chats   *repository.ChatRepository
	gateway attachmentGateway
	objects *storage.ObjectStore
	log     zerolog.Logger
}

func NewAccountService(
	users *repository.UserRepository,
	chats *repository.ChatRepository,
	gateway attachmentGateway,
	objects *storage.ObjectStore,
	log zerolog.Logger,
) *AccountService {
	return &AccountService{
		users:   users,
		chats:   chats,
		gateway: gateway,
		objects: objects,
		log:     log,
	}
}

func (s *AccountService) Get(ctx context.Context, userID string) (models.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *AccountService) UpdateDisplayName(ctx context.Context, userID, displayName string) (models.User, error) {
	if err := s.users.UpdateDisplayName(ctx, userID, displayName); err != nil {
		return models.User{}, err
	}
	return s.users.GetByID(ctx, userID)
}

func (s *AccountService) UpdateAvatar(ctx context.Context, userID, fileName string, data []byte, contentType string) (models.User, error) {
	if len(data) == 0 {
		return models.User{}, ErrEmptyFile
	}

	objectKey := path.Join(userID, ids.New()+"-"+fileName)
	url, err := s.objects.PutAvatar(ctx, objectKey, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return models.User{}, fmt.Errorf("store avatar: %w", err)
	}

	if err := s.users.UpdateAvatarURL(ctx, userID, url); err != nil {
		return models.User{}, err
	}
	return s.users.GetByID(ctx, userID)
}

// DeleteAccount tears the user down: provider-side assistants and files go
// first (best-effort), then the user row, which cascades to chat and device
// data.
func (s *AccountService) DeleteAccount(ctx context.Context, userID string) error {
	assistantRefs, fileIDs, objectKeys, err := s.chats.ProviderResources(ctx, userID)
	if err != nil {
		return err
	}

	for _, ref := range assistantRefs {
		if err := s.gateway.DeleteAssistant(ctx, ref); err != nil {
			s.log.Warn().Err(err).Str("assistant_ref", ref).Msg("assistant delete failed")
		}
	}
	for _, fileID := range fileIDs {
		if err := s.gateway.DeleteFile(ctx, fileID); err != nil {
			s.log.Warn().Err(err).Str("file_id", fileID).Msg("provider file delete failed")
		}
	}
	for _, key := range objectKeys {
		if err := s.objects.RemoveAttachment(ctx, key); err != nil {
			s.log.Warn().Err(err).Str("object_key", key).Msg("object delete failed")
		}
	}

	return s.users.Delete(ctx, userID)
}
