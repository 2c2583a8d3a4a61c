package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"chatdeck/api/internal/config"
	"chatdeck/api/internal/repository"
	"chatdeck/api/internal/storage"
)

// Scheduler runs the periodic maintenance tasks: purging expired device
// sessions and sweeping attachment objects nothing references anymore.
type Scheduler struct {
	cron    *cron.Cron
	devices *repository.DeviceSessionRepository
	chats   *repository.ChatRepository
	objects *storage.ObjectStore
	cfg     config.JobsConfig
	log     zerolog.Logger
}

func NewScheduler(
	devices *repository.DeviceSessionRepository,
	chats *repository.ChatRepository,
	objects *storage.ObjectStore,
	cfg config.JobsConfig,
	log zerolog.Logger,
) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		devices: devices,
		chats:   chats,
		objects: objects,
		cfg:     cfg,
		log:     log,
	}
}

func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		return nil
	}

	if _, err := s.cron.AddFunc("0 0 * * * *", s.purgeExpiredSessions); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 0 3 * * *", s.sweepOrphanAttachments); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() context.CancelFunc {
	_, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	go func() {
		s.cron.Stop()
		cancel()
	}()
	return cancel
}

func (s *Scheduler) purgeExpiredSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	purged, err := s.devices.DeleteExpired(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("purge expired device sessions failed")
		return
	}
	if purged > 0 {
		s.log.Info().Int64("purged", purged).Msg("expired device sessions removed")
	}
}

// sweepOrphanAttachments removes attachment objects older than the retention
// window that no chat_attachments row points at: leftovers from attaches that
// failed after the object write, or from sessions deleted since.
func (s *Scheduler) sweepOrphanAttachments() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-s.cfg.AttachmentRetention)
	keys, err := s.objects.ListAttachmentsOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("list attachment objects failed")
		return
	}
	if len(keys) == 0 {
		return
	}

	referenced, err := s.chats.ReferencedObjectKeys(ctx, keys)
	if err != nil {
		s.log.Error().Err(err).Msg("lookup referenced object keys failed")
		return
	}

	removed := 0
	for _, key := range keys {
		if _, ok := referenced[key]; ok {
			continue
		}
		if err := s.objects.RemoveAttachment(ctx, key); err != nil {
			s.log.Warn().Err(err).Str("object_key", key).Msg("remove orphan object failed")
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("orphan attachment objects swept")
	}
}
