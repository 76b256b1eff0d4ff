package trigger

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/formeye/internal/delivery"
	"github.com/formeye/internal/history"
	"github.com/formeye/internal/models"
	"github.com/formeye/internal/rule"
	"github.com/formeye/internal/submission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeMessenger struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeMessenger) Send(ctx context.Context, botToken, chatID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return fmt.Sprintf("msg-%d", len(f.texts)), nil
}

func (f *fakeMessenger) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type engineFixture struct {
	db     *gorm.DB
	rules  *rule.Store
	subs   *submission.Store
	ledger *history.Ledger
	sender *fakeMessenger
	coord  *delivery.Coordinator
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Rule{}, &models.Submission{}, &models.DeliveryRecord{}))

	sender := &fakeMessenger{}
	rules := rule.NewStore(db)
	ledger := history.NewLedger(db)
	coord := delivery.NewCoordinator(delivery.Config{
		DefaultBotToken: "token",
		DefaultChatID:   "chat",
		RetryDelay:      time.Millisecond,
	}, rules, ledger, sender)
	return &engineFixture{
		db:     db,
		rules:  rules,
		subs:   submission.NewStore(db),
		ledger: ledger,
		sender: sender,
		coord:  coord,
	}
}

func (f *engineFixture) records(t *testing.T) []models.DeliveryRecord {
	t.Helper()
	var records []models.DeliveryRecord
	require.NoError(t, f.db.Order("id").Find(&records).Error)
	return records
}

func newSubmission(formID string, fields models.FieldList) *models.Submission {
	return &models.Submission{FormID: formID, Fields: fields}
}

func TestMatches(t *testing.T) {
	base := models.Rule{FormID: "form-1"}
	withSubForm := models.Rule{FormID: "form-1", SubFormID: "sub-1"}
	withTarget := models.Rule{FormID: "form-1", TargetFieldID: "f2"}

	tests := []struct {
		name string
		rule models.Rule
		ev   FieldUpdateEvent
		want bool
	}{
		{"form match", base, FieldUpdateEvent{FormID: "form-1"}, true},
		{"form mismatch", base, FieldUpdateEvent{FormID: "form-2"}, false},
		{"no sub-form filter matches any", base, FieldUpdateEvent{FormID: "form-1", SubFormID: "sub-9"}, true},
		{"sub-form match", withSubForm, FieldUpdateEvent{FormID: "form-1", SubFormID: "sub-1"}, true},
		{"sub-form mismatch", withSubForm, FieldUpdateEvent{FormID: "form-1"}, false},
		{"target field changed", withTarget, FieldUpdateEvent{FormID: "form-1", ChangedFieldIDs: []string{"f1", "f2"}}, true},
		{"target field untouched", withTarget, FieldUpdateEvent{FormID: "form-1", ChangedFieldIDs: []string{"f1"}}, false},
		{"target field with empty change set", withTarget, FieldUpdateEvent{FormID: "form-1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matches(tt.rule, tt.ev))
		})
	}
}

func TestEvaluateOutcomes(t *testing.T) {
	sub := newSubmission("form-1", models.FieldList{
		{ID: "f1", Name: "Status", Value: "Closed"},
	})

	r := models.Rule{ConditionFormula: `[Status] = "Closed"`}
	cand, fire := evaluate(r, sub)
	assert.True(t, fire)
	assert.NoError(t, cand.EvalErr)

	r.ConditionFormula = `[Status] = "Open"`
	_, fire = evaluate(r, sub)
	assert.False(t, fire, "clean false yields no candidate")

	r.ConditionFormula = `([Status] = "Open"`
	cand, fire = evaluate(r, sub)
	assert.True(t, fire, "formula errors still reach the audit path")
	assert.Error(t, cand.EvalErr)
}

func TestOnFieldUpdateEndToEnd(t *testing.T) {
	f := newEngineFixture(t)
	require.NoError(t, f.rules.Create(&models.Rule{
		Name:             "closed-deals",
		TriggerType:      models.TriggerFieldUpdate,
		FormID:           "form-1",
		TargetFieldID:    "f1",
		ConditionFormula: `[Status] = "Closed"`,
		MessageTemplate:  "Deal closed by {Owner}",
		IsEnabled:        true,
	}))

	d := NewDispatcher(f.rules, f.coord, 1, 16)
	d.Start()

	sub := newSubmission("form-1", models.FieldList{
		{ID: "f1", Name: "Status", Value: "Closed"},
		{ID: "f2", Name: "Owner", Value: "alice"},
	})
	require.NoError(t, f.subs.Create(sub))

	d.OnFieldUpdate("form-1", "", []string{"f1", "f2"}, sub)
	// A change that doesn't touch the target field is ignored.
	d.OnFieldUpdate("form-1", "", []string{"f2"}, sub)
	d.Stop()

	assert.Equal(t, []string{"Deal closed by alice"}, f.sender.sentTexts())
	records := f.records(t)
	require.Len(t, records, 1)
	assert.Equal(t, models.DeliveryStatusSent, records[0].Status)
	assert.Equal(t, sub.ID, records[0].SubmissionID)
}

// gatedMessenger blocks every Send until release is closed.
type gatedMessenger struct {
	fakeMessenger
	release chan struct{}
}

func (g *gatedMessenger) Send(ctx context.Context, botToken, chatID, text string) (string, error) {
	<-g.release
	return g.fakeMessenger.Send(ctx, botToken, chatID, text)
}

func TestFullShardDoesNotBlockOtherSubmissions(t *testing.T) {
	f := newEngineFixture(t)
	require.NoError(t, f.rules.Create(&models.Rule{
		Name:            "notify",
		TriggerType:     models.TriggerFieldUpdate,
		FormID:          "form-1",
		MessageTemplate: "hi",
		IsEnabled:       true,
	}))

	sender := &gatedMessenger{release: make(chan struct{})}
	coord := delivery.NewCoordinator(delivery.Config{
		DefaultBotToken: "token",
		DefaultChatID:   "chat",
		RetryDelay:      time.Millisecond,
	}, f.rules, f.ledger, sender)

	d := NewDispatcher(f.rules, coord, 2, 1)
	d.Start()

	// Consecutive ids land on different shards.
	a := newSubmission("form-1", nil)
	b := newSubmission("form-1", nil)
	require.NoError(t, f.subs.Create(a))
	require.NoError(t, f.subs.Create(b))

	// Wedge a's shard: one event held in the worker's Send, one queued,
	// one stuck enqueueing.
	d.OnFieldUpdate("form-1", "", nil, a)
	d.OnFieldUpdate("form-1", "", nil, a)
	wedged := make(chan struct{})
	go func() {
		d.OnFieldUpdate("form-1", "", nil, a)
		close(wedged)
	}()

	// An event for a submission on the other shard still goes through.
	free := make(chan struct{})
	go func() {
		d.OnFieldUpdate("form-1", "", nil, b)
		close(free)
	}()
	select {
	case <-free:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue for an independent submission blocked behind a full shard")
	}

	close(sender.release)
	select {
	case <-wedged:
	case <-time.After(2 * time.Second):
		t.Fatal("stuck enqueue never completed after the sender was released")
	}
	d.Stop()

	assert.Len(t, sender.sentTexts(), 4)
}

func TestDisabledRuleNeverDelivers(t *testing.T) {
	f := newEngineFixture(t)
	require.NoError(t, f.rules.Create(&models.Rule{
		Name:            "disabled",
		TriggerType:     models.TriggerFieldUpdate,
		FormID:          "form-1",
		MessageTemplate: "never",
		IsEnabled:       false,
	}))

	d := NewDispatcher(f.rules, f.coord, 1, 16)
	d.Start()

	sub := newSubmission("form-1", nil)
	require.NoError(t, f.subs.Create(sub))
	for i := 0; i < 5; i++ {
		d.OnFieldUpdate("form-1", "", nil, sub)
	}
	d.Stop()

	for _, rec := range f.records(t) {
		assert.NotEqual(t, models.DeliveryStatusSent, rec.Status)
		assert.NotEqual(t, models.DeliveryStatusFailed, rec.Status)
	}
	assert.Empty(t, f.sender.sentTexts())
}

func TestFormulaErrorDoesNotAffectSiblings(t *testing.T) {
	f := newEngineFixture(t)
	broken := &models.Rule{
		Name:            "broken",
		TriggerType:     models.TriggerFieldUpdate,
		FormID:          "form-1",
		MessageTemplate: "broken",
		IsEnabled:       true,
	}
	require.NoError(t, f.rules.Create(broken))
	// Corrupt the stored formula under validation's radar, as a stale
	// or hand-edited row would.
	require.NoError(t, f.db.Model(broken).Update("condition_formula", `([A] = 1`).Error)

	require.NoError(t, f.rules.Create(&models.Rule{
		Name:            "healthy",
		TriggerType:     models.TriggerFieldUpdate,
		FormID:          "form-1",
		MessageTemplate: "healthy",
		IsEnabled:       true,
	}))

	d := NewDispatcher(f.rules, f.coord, 1, 16)
	d.Start()
	sub := newSubmission("form-1", nil)
	require.NoError(t, f.subs.Create(sub))
	d.OnFieldUpdate("form-1", "", nil, sub)
	d.Stop()

	assert.Equal(t, []string{"healthy"}, f.sender.sentTexts())

	skipped, _, err := f.ledger.Query(history.QueryFilter{
		RuleID: broken.ID, Status: models.DeliveryStatusSkipped,
	})
	require.NoError(t, err)
	require.Len(t, skipped, 1)
	assert.Contains(t, skipped[0].ErrorMessage, "condition error")
}
