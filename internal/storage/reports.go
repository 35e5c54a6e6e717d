package storage

import (
	"context"

	"github.com/lib/pq"

	"mullmine/backend/internal/models"
)

// CreateReportedChat appends the audit record for a report. Repeated
// reports of the same user in the same room collapse onto one row.
func (s *Service) CreateReportedChat(ctx context.Context, reporterID, reportedID, roomID string, transcript []string) (*models.ReportedChat, error) {
	var report models.ReportedChat
	err := s.DB.WithContext(ctx).
		Where(&models.ReportedChat{ReporterID: reporterID, ReportedID: reportedID, RoomID: roomID}).
		Attrs(models.ReportedChat{Messages: pq.StringArray(transcript)}).
		FirstOrCreate(&report).Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *Service) ListReports(ctx context.Context, includeResolved bool) ([]models.ReportedChat, error) {
	q := s.DB.WithContext(ctx).Order("created_at DESC")
	if !includeResolved {
		q = q.Where("resolved = ?", false)
	}
	var reports []models.ReportedChat
	err := q.Find(&reports).Error
	return reports, err
}

func (s *Service) ResolveReport(ctx context.Context, reportID string) error {
	return s.DB.WithContext(ctx).Model(&models.ReportedChat{}).
		Where("id = ?", reportID).
		Update("resolved", true).Error
}

// SetVerified flips the verification flag; matchmaking is limited to
// verified users.
func (s *Service) SetVerified(ctx context.Context, userID string, verified bool) error {
	return s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("is_verified", verified).Error
}
