package rule

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/formeye/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Rule{}))
	return NewStore(db)
}

func fieldUpdateRule(name string) *models.Rule {
	return &models.Rule{
		Name:            name,
		TriggerType:     models.TriggerFieldUpdate,
		FormID:          "form-1",
		MessageTemplate: "hello {Name}",
		IsEnabled:       true,
	}
}

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t)

	r := fieldUpdateRule("r1")
	require.NoError(t, store.Create(r))
	require.NotZero(t, r.ID)

	got, err := store.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, "r1", got.Name)
	assert.Equal(t, models.PriorityMedium, got.Priority, "priority defaults to medium")

	_, err = store.Get(9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidateRejectsBadRules(t *testing.T) {
	tests := []struct {
		name string
		rule models.Rule
	}{
		{"field_update without form", models.Rule{
			Name: "x", TriggerType: models.TriggerFieldUpdate,
		}},
		{"scheduled without schedule", models.Rule{
			Name: "x", TriggerType: models.TriggerScheduled, FormID: "f",
		}},
		{"cron with four fields", models.Rule{
			Name: "x", TriggerType: models.TriggerScheduled, FormID: "f", Schedule: "0 9 * *",
		}},
		{"cron with six fields", models.Rule{
			Name: "x", TriggerType: models.TriggerScheduled, FormID: "f", Schedule: "0 0 9 * * *",
		}},
		{"cron with garbage", models.Rule{
			Name: "x", TriggerType: models.TriggerScheduled, FormID: "f", Schedule: "a b c d e",
		}},
		{"unknown trigger", models.Rule{
			Name: "x", TriggerType: "webhook", FormID: "f",
		}},
		{"malformed formula", models.Rule{
			Name: "x", TriggerType: models.TriggerFieldUpdate, FormID: "f",
			ConditionFormula: `([A] = 1`,
		}},
		{"unknown priority", models.Rule{
			Name: "x", TriggerType: models.TriggerFieldUpdate, FormID: "f",
			Priority: "urgent",
		}},
	}
	store := newTestStore(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.rule
			assert.Error(t, store.Create(&r))
		})
	}
}

func TestValidateAcceptsScheduledRule(t *testing.T) {
	store := newTestStore(t)
	r := &models.Rule{
		Name:        "daily",
		TriggerType: models.TriggerScheduled,
		FormID:      "form-1",
		Schedule:    "0 9 * * *",
		Priority:    models.PriorityHigh,
	}
	assert.NoError(t, store.Create(r))
}

func TestListFiltersAndPaginates(t *testing.T) {
	store := newTestStore(t)

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, store.Create(fieldUpdateRule(name)))
	}
	other := fieldUpdateRule("other-form")
	other.FormID = "form-2"
	require.NoError(t, store.Create(other))

	rules, total, err := store.List("form-1", nil, 1, 50)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, rules, 3)

	rules, total, err = store.List("form-1", nil, 2, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, rules, 1)

	enabled := false
	rules, total, err = store.List("", &enabled, 1, 50)
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
	assert.Empty(t, rules)
}

func TestSetEnabledAndSnapshot(t *testing.T) {
	store := newTestStore(t)

	r1 := fieldUpdateRule("r1")
	r2 := fieldUpdateRule("r2")
	require.NoError(t, store.Create(r1))
	require.NoError(t, store.Create(r2))

	require.NoError(t, store.SetEnabled(r2.ID, false))
	assert.ErrorIs(t, store.SetEnabled(9999, true), ErrNotFound)

	snapshot, err := store.Snapshot(models.TriggerFieldUpdate)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, r1.ID, snapshot[0].ID)
}

func TestMarkFired(t *testing.T) {
	store := newTestStore(t)

	r := &models.Rule{
		Name:        "daily",
		TriggerType: models.TriggerScheduled,
		FormID:      "form-1",
		Schedule:    "0 9 * * *",
	}
	require.NoError(t, store.Create(r))

	boundary := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.MarkFired(r.ID, boundary))

	got, err := store.Get(r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastFiredAt)
	assert.True(t, got.LastFiredAt.Equal(boundary))
	assert.Equal(t, 1, got.FireCount)
}
