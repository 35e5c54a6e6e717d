// Package moderation handles user reports: the append-only audit trail
// with transcript snapshots, and the alert push to the moderators'
// Telegram channel.
package moderation

import (
	"context"
	"log/slog"

	"mullmine/backend/internal/models"
)

// Store is the persistence slice the moderation service needs.
// *storage.Service satisfies it.
type Store interface {
	MemberIDs(ctx context.Context, roomID string) ([]string, error)
	AddReported(ctx context.Context, userID, targetID string) error
	RoomTranscript(ctx context.Context, roomID string, limit int) ([]string, error)
	CreateReportedChat(ctx context.Context, reporterID, reportedID, roomID string, transcript []string) (*models.ReportedChat, error)
}

// Notifier pushes a report alert somewhere a moderator will see it.
type Notifier interface {
	NotifyReport(report *models.ReportedChat) error
}

type Service struct {
	store    Store
	notifier Notifier
	log      *slog.Logger
	// transcriptLen caps how many recent messages a report snapshots.
	transcriptLen int
}

// NewService builds the moderation service. notifier may be nil when no
// moderator channel is configured.
func NewService(store Store, notifier Notifier, log *slog.Logger, transcriptLen int) *Service {
	return &Service{store: store, notifier: notifier, log: log, transcriptLen: transcriptLen}
}

// ReportUser records that reporter reported target inside the room. Both
// must currently be members; anything else is a silent no-op. The room's
// recent transcript is snapshotted into the audit row so it outlives the
// room, and a moderator alert is sent best-effort: notification failure
// never rolls back the report.
func (s *Service) ReportUser(ctx context.Context, reporterID, roomID, targetID string) error {
	memberIDs, err := s.store.MemberIDs(ctx, roomID)
	if err != nil {
		return err
	}
	if !member(memberIDs, reporterID) || !member(memberIDs, targetID) {
		return nil
	}

	if err := s.store.AddReported(ctx, reporterID, targetID); err != nil {
		return err
	}
	transcript, err := s.store.RoomTranscript(ctx, roomID, s.transcriptLen)
	if err != nil {
		return err
	}
	report, err := s.store.CreateReportedChat(ctx, reporterID, targetID, roomID, transcript)
	if err != nil {
		return err
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyReport(report); err != nil {
			s.log.Error("moderator notification failed",
				slog.String("report_id", report.ID), slog.Any("error", err))
		}
	}
	return nil
}

func member(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
