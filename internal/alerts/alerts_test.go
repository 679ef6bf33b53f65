package alerts

import (
	"context"
	"io"
	"testing"

	"github.com/sentryfleet/sentryfleet/internal/config"
	"github.com/sentryfleet/sentryfleet/internal/database"
	"github.com/sentryfleet/sentryfleet/internal/models"
)

type fakeEnqueuer struct {
	enqueued []string
}

func (f *fakeEnqueuer) EnqueueNotification(ctx context.Context, logID string) error {
	f.enqueued = append(f.enqueued, logID)
	return nil
}

type fakeNotifier struct {
	delivered []string
	fail      bool
}

func (f *fakeNotifier) DeliverNow(ctx context.Context, alert *models.Alert, log *models.NotificationLog) bool {
	f.delivered = append(f.delivered, log.Recipient)
	return !f.fail
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "1GB"})
	if err != nil {
		t.Fatalf("create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestIngest_MissingPersonDispatchesNotificationsImmediately(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rule := &models.NotificationRule{
		Name:       "ncmec_alert",
		Channel:    models.ChannelEmail,
		Recipients: models.Recipients{Kind: models.RecipientsEmails, Values: []string{"ops@example.com", "security@example.com"}},
		Enabled:    true,
	}
	if err := db.CreateNotificationRule(ctx, rule); err != nil {
		t.Fatalf("create notification rule: %v", err)
	}

	enq := &fakeEnqueuer{}
	notifier := &fakeNotifier{}
	p := New(db, enq, notifier, t.TempDir())

	alert := &models.Alert{
		DeviceID:   "device-1",
		Type:       models.AlertTypeMissingPersonMatch,
		Subject:    models.AlertSubject{Kind: models.AlertSubjectMissingPerson, Ref: "case-123"},
		Confidence: 0.92,
	}

	out, dispatched, err := p.Ingest(ctx, alert, nil, "")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if out.Status != models.AlertStatusNew {
		t.Errorf("expected status new, got %s", out.Status)
	}
	if dispatched.Sent != 2 {
		t.Fatalf("expected 2 sent, got %+v", dispatched)
	}
	if len(notifier.delivered) != 2 {
		t.Fatalf("expected 2 immediate deliveries, got %d", len(notifier.delivered))
	}
	if len(enq.enqueued) != 0 {
		t.Errorf("expected nothing enqueued for a zero-delay rule, got %d", len(enq.enqueued))
	}
}

func TestIngest_LoyaltyMatchDispatchesNotifications(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rule := &models.NotificationRule{
		Name:       "loyalty_match",
		Channel:    models.ChannelEmail,
		Recipients: models.Recipients{Kind: models.RecipientsEmails, Values: []string{"marketing@example.com"}},
		Enabled:    true,
	}
	if err := db.CreateNotificationRule(ctx, rule); err != nil {
		t.Fatalf("create notification rule: %v", err)
	}

	enq := &fakeEnqueuer{}
	notifier := &fakeNotifier{}
	p := New(db, enq, notifier, t.TempDir())

	alert := &models.Alert{
		DeviceID:   "device-1",
		Type:       models.AlertTypeLoyaltyMatch,
		Subject:    models.AlertSubject{Kind: models.AlertSubjectLoyaltyMember, Ref: "member-9"},
		Confidence: 0.8,
	}

	out, dispatched, err := p.Ingest(ctx, alert, nil, "")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if out.Status != models.AlertStatusNew {
		t.Errorf("expected status new, got %s", out.Status)
	}
	if dispatched.Sent != 1 {
		t.Errorf("expected 1 sent for a matching loyalty rule, got %+v", dispatched)
	}
}

func TestIngest_ScheduledRuleIsCountedNotSent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rule := &models.NotificationRule{
		Name:         "loyalty_alert",
		Channel:      models.ChannelSMS,
		Recipients:   models.Recipients{Kind: models.RecipientsPhones, Values: []string{"+15550100"}},
		Enabled:      true,
		DelayMinutes: 15,
	}
	if err := db.CreateNotificationRule(ctx, rule); err != nil {
		t.Fatalf("create notification rule: %v", err)
	}

	enq := &fakeEnqueuer{}
	notifier := &fakeNotifier{}
	p := New(db, enq, notifier, t.TempDir())

	alert := &models.Alert{
		DeviceID:   "device-1",
		Type:       models.AlertTypeLoyaltyMatch,
		Subject:    models.AlertSubject{Kind: models.AlertSubjectLoyaltyMember, Ref: "member-200"},
		Confidence: 0.92,
	}

	_, dispatched, err := p.Ingest(ctx, alert, nil, "")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if dispatched.Scheduled != 1 || dispatched.Sent != 0 {
		t.Fatalf("expected 1 scheduled and 0 sent, got %+v", dispatched)
	}
	if len(notifier.delivered) != 0 {
		t.Errorf("expected no immediate delivery for a delayed rule, got %d", len(notifier.delivered))
	}
	if len(enq.enqueued) != 1 {
		t.Errorf("expected the delayed rule to be enqueued, got %d", len(enq.enqueued))
	}
}

func TestIngest_RejectsMissingDeviceID(t *testing.T) {
	db := newTestDB(t)
	p := New(db, &fakeEnqueuer{}, &fakeNotifier{}, t.TempDir())

	alert := &models.Alert{
		Type:       models.AlertTypeLoyaltyMatch,
		Subject:    models.AlertSubject{Kind: models.AlertSubjectLoyaltyMember, Ref: "member-9"},
		Confidence: 0.5,
	}
	if _, _, err := p.Ingest(context.Background(), alert, nil, ""); err == nil {
		t.Fatal("expected validation error for missing device_id")
	}
}

func TestDispatchNotifications_RepeatPassDeliversAgainWithoutSentRow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rule := &models.NotificationRule{
		Name:       "ncmec_alert",
		Channel:    models.ChannelEmail,
		Recipients: models.Recipients{Kind: models.RecipientsEmails, Values: []string{"ops@example.com"}},
		Enabled:    true,
	}
	if err := db.CreateNotificationRule(ctx, rule); err != nil {
		t.Fatalf("create notification rule: %v", err)
	}

	enq := &fakeEnqueuer{}
	notifier := &fakeNotifier{}
	p := New(db, enq, notifier, t.TempDir())

	alert := &models.Alert{
		ID:         "alert-fixed-id",
		DeviceID:   "device-1",
		Type:       models.AlertTypeMissingPersonMatch,
		Subject:    models.AlertSubject{Kind: models.AlertSubjectMissingPerson, Ref: "case-1"},
		Confidence: 0.9,
	}
	if err := db.CreateAlert(ctx, alert); err != nil {
		t.Fatalf("create alert: %v", err)
	}

	first, err := p.dispatchNotifications(ctx, alert)
	if err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	second, err := p.dispatchNotifications(ctx, alert)
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if first.Sent != 1 || second.Sent != 1 {
		t.Errorf("expected each dispatch pass to deliver once (append-only log, no creation-time dedup), got first=%+v second=%+v", first, second)
	}
}

func TestReview_AppliesTransition(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	p := New(db, &fakeEnqueuer{}, &fakeNotifier{}, t.TempDir())

	alert := &models.Alert{
		DeviceID:   "device-1",
		Type:       models.AlertTypeLoyaltyMatch,
		Subject:    models.AlertSubject{Kind: models.AlertSubjectLoyaltyMember, Ref: "member-1"},
		Confidence: 0.7,
	}
	created, _, err := p.Ingest(ctx, alert, nil, "")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if err := p.Review(ctx, created.ID, "reviewer@example.com", models.AlertStatusFalsePositive, nil); err != nil {
		t.Fatalf("review: %v", err)
	}

	list, err := p.ListByStatus(ctx, models.AlertStatusFalsePositive)
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("expected false_positive alert in list, got %+v", list)
	}
}

func TestReview_RejectsInvalidTransitionFromTerminalStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	p := New(db, &fakeEnqueuer{}, &fakeNotifier{}, t.TempDir())

	alert := &models.Alert{
		DeviceID:   "device-1",
		Type:       models.AlertTypeLoyaltyMatch,
		Subject:    models.AlertSubject{Kind: models.AlertSubjectLoyaltyMember, Ref: "member-2"},
		Confidence: 0.7,
	}
	created, _, err := p.Ingest(ctx, alert, nil, "")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if err := p.Review(ctx, created.ID, "reviewer@example.com", models.AlertStatusResolved, nil); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if err := p.Review(ctx, created.ID, "reviewer@example.com", models.AlertStatusEscalated, nil); err == nil {
		t.Fatal("expected resolved -> escalated to be rejected as an invalid transition")
	}
}

func TestIngest_WritesCapturedImageAndOpensIt(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	p := New(db, &fakeEnqueuer{}, &fakeNotifier{}, t.TempDir())

	alert := &models.Alert{
		DeviceID:   "device-1",
		Type:       models.AlertTypeLoyaltyMatch,
		Subject:    models.AlertSubject{Kind: models.AlertSubjectLoyaltyMember, Ref: "member-1"},
		Confidence: 0.7,
	}
	frame := []byte("not-really-a-jpeg")
	created, _, err := p.Ingest(ctx, alert, frame, "jpg")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if created.CapturedImagePath == nil {
		t.Fatal("expected CapturedImagePath to be set")
	}

	f, err := p.OpenCapture(ctx, created.ID)
	if err != nil {
		t.Fatalf("open capture: %v", err)
	}
	defer f.Close()

	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read capture: %v", err)
	}
	if string(got) != string(frame) {
		t.Errorf("capture contents = %q, want %q", got, frame)
	}
}

func TestOpenCapture_NoImageReturnsNotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	p := New(db, &fakeEnqueuer{}, &fakeNotifier{}, t.TempDir())

	alert := &models.Alert{
		DeviceID:   "device-1",
		Type:       models.AlertTypeLoyaltyMatch,
		Subject:    models.AlertSubject{Kind: models.AlertSubjectLoyaltyMember, Ref: "member-2"},
		Confidence: 0.7,
	}
	created, _, err := p.Ingest(ctx, alert, nil, "")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if _, err := p.OpenCapture(ctx, created.ID); err == nil {
		t.Fatal("expected error for alert with no captured image")
	}
}
