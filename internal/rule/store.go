package rule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/formeye/internal/condition"
	"github.com/formeye/internal/models"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("rule not found")

// CronParser accepts the standard 5-field expressions rules carry.
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Validate rejects rules the engine could not run: scheduled rules need
// a parseable 5-field cron, field_update rules need a form, and a
// stored formula must compile.
func Validate(rule *models.Rule) error {
	switch rule.TriggerType {
	case models.TriggerFieldUpdate:
		if rule.FormID == "" {
			return fmt.Errorf("field_update rule requires form_id")
		}
	case models.TriggerScheduled:
		if rule.Schedule == "" {
			return fmt.Errorf("scheduled rule requires a cron schedule")
		}
		if fields := strings.Fields(rule.Schedule); len(fields) != 5 {
			return fmt.Errorf("cron schedule must have exactly 5 fields, got %d", len(fields))
		}
		if _, err := CronParser.Parse(rule.Schedule); err != nil {
			return fmt.Errorf("invalid cron schedule %q: %v", rule.Schedule, err)
		}
	default:
		return fmt.Errorf("unknown trigger type %q", rule.TriggerType)
	}

	if err := condition.Validate(rule.ConditionFormula); err != nil {
		return fmt.Errorf("invalid condition formula: %v", err)
	}
	if rule.Priority == "" {
		rule.Priority = models.PriorityMedium
	} else if rule.Priority.Rank() > models.PriorityLow.Rank() {
		return fmt.Errorf("unknown priority %q", rule.Priority)
	}
	return nil
}

func (s *Store) Create(rule *models.Rule) error {
	if err := Validate(rule); err != nil {
		return err
	}
	return s.db.Create(rule).Error
}

func (s *Store) Update(rule *models.Rule) error {
	if err := Validate(rule); err != nil {
		return err
	}
	return s.db.Save(rule).Error
}

func (s *Store) Delete(id uint) error {
	return s.db.Delete(&models.Rule{}, id).Error
}

func (s *Store) Get(id uint) (*models.Rule, error) {
	var rule models.Rule
	if err := s.db.First(&rule, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rule, nil
}

// List returns one page of rules, optionally filtered by form and
// enablement, plus the unpaged total.
func (s *Store) List(formID string, enabled *bool, page, pageSize int) ([]models.Rule, int64, error) {
	query := s.db.Model(&models.Rule{})
	if formID != "" {
		query = query.Where("form_id = ?", formID)
	}
	if enabled != nil {
		query = query.Where("is_enabled = ?", *enabled)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	var rules []models.Rule
	if err := query.Order("id").Offset((page - 1) * pageSize).Limit(pageSize).Find(&rules).Error; err != nil {
		return nil, 0, err
	}
	return rules, total, nil
}

func (s *Store) SetEnabled(id uint, enabled bool) error {
	res := s.db.Model(&models.Rule{}).Where("id = ?", id).Update("is_enabled", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Snapshot returns the enabled rules of one trigger type as they stand
// right now. Each scheduler tick and trigger event works from its own
// snapshot, so concurrent edits cannot corrupt an in-flight batch.
func (s *Store) Snapshot(trigger models.TriggerType) ([]models.Rule, error) {
	var rules []models.Rule
	err := s.db.Where("is_enabled = ? AND trigger_type = ?", true, trigger).
		Order("id").Find(&rules).Error
	return rules, err
}

// MarkFired persists the fired boundary before evaluation starts, so a
// restart cannot replay a boundary that was already crossed.
func (s *Store) MarkFired(id uint, at time.Time) error {
	return s.db.Model(&models.Rule{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_fired_at": at,
			"fire_count":    gorm.Expr("fire_count + 1"),
		}).Error
}
