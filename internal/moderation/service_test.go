package moderation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mullmine/backend/internal/models"
)

type fakeStore struct {
	members    map[string][]string
	transcript []string
	reported   [][2]string
	reports    []*models.ReportedChat
}

func (f *fakeStore) MemberIDs(ctx context.Context, roomID string) ([]string, error) {
	return f.members[roomID], nil
}

func (f *fakeStore) AddReported(ctx context.Context, userID, targetID string) error {
	f.reported = append(f.reported, [2]string{userID, targetID})
	return nil
}

func (f *fakeStore) RoomTranscript(ctx context.Context, roomID string, limit int) ([]string, error) {
	return f.transcript, nil
}

func (f *fakeStore) CreateReportedChat(ctx context.Context, reporterID, reportedID, roomID string, transcript []string) (*models.ReportedChat, error) {
	report := &models.ReportedChat{ID: "rep1", ReporterID: reporterID, ReportedID: reportedID, RoomID: roomID, Messages: pq.StringArray(transcript)}
	f.reports = append(f.reports, report)
	return report, nil
}

type fakeNotifier struct {
	notified []*models.ReportedChat
	err      error
}

func (f *fakeNotifier) NotifyReport(report *models.ReportedChat) error {
	f.notified = append(f.notified, report)
	return f.err
}

func testService(store Store, notifier Notifier) *Service {
	return NewService(store, notifier, slog.New(slog.NewTextHandler(io.Discard, nil)), 50)
}

func TestReportUser_RequiresSharedMembership(t *testing.T) {
	store := &fakeStore{members: map[string][]string{"r1": {"alice", "bob"}}}
	svc := testService(store, nil)
	ctx := context.Background()

	require.NoError(t, svc.ReportUser(ctx, "alice", "r1", "stranger"))
	require.NoError(t, svc.ReportUser(ctx, "stranger", "r1", "bob"))
	assert.Empty(t, store.reports)
}

func TestReportUser_SnapshotsTranscriptAndNotifies(t *testing.T) {
	store := &fakeStore{
		members:    map[string][]string{"r1": {"alice", "bob"}},
		transcript: []string{"Alice: hi", "Bob: something reportable"},
	}
	notifier := &fakeNotifier{}
	svc := testService(store, notifier)

	err := svc.ReportUser(context.Background(), "alice", "r1", "bob")

	require.NoError(t, err)
	require.Len(t, store.reports, 1)
	assert.Equal(t, "alice", store.reports[0].ReporterID)
	assert.Equal(t, "bob", store.reports[0].ReportedID)
	assert.Equal(t, store.transcript, []string(store.reports[0].Messages))
	assert.Equal(t, [][2]string{{"alice", "bob"}}, store.reported)
	require.Len(t, notifier.notified, 1)
}

func TestReportUser_NotifierFailureDoesNotFailReport(t *testing.T) {
	store := &fakeStore{members: map[string][]string{"r1": {"alice", "bob"}}}
	notifier := &fakeNotifier{err: errors.New("telegram down")}
	svc := testService(store, notifier)

	err := svc.ReportUser(context.Background(), "alice", "r1", "bob")

	require.NoError(t, err)
	assert.Len(t, store.reports, 1)
}

func TestReportUser_NilNotifierIsFine(t *testing.T) {
	store := &fakeStore{members: map[string][]string{"r1": {"alice", "bob"}}}
	svc := testService(store, nil)

	assert.NoError(t, svc.ReportUser(context.Background(), "alice", "r1", "bob"))
}
