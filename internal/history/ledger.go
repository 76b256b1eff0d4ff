package history

import (
	"time"

	"github.com/formeye/internal/models"
	"gorm.io/gorm"
)

// Ledger is the append-only delivery log. Records are immutable once
// written; retries and re-evaluations append new records.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) Append(rec *models.DeliveryRecord) error {
	return l.db.Create(rec).Error
}

// HasSent reports whether a successful delivery already exists for the
// (rule, submission) pair. This backs the send-once policy.
func (l *Ledger) HasSent(ruleID, submissionID uint) (bool, error) {
	var count int64
	err := l.db.Model(&models.DeliveryRecord{}).
		Where("rule_id = ? AND submission_id = ? AND status = ?",
			ruleID, submissionID, models.DeliveryStatusSent).
		Count(&count).Error
	return count > 0, err
}

type QueryFilter struct {
	RuleID   uint
	Status   models.DeliveryStatus
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// Query returns one page of delivery records, newest first, plus the
// unpaged total.
func (l *Ledger) Query(f QueryFilter) ([]models.DeliveryRecord, int64, error) {
	query := l.db.Model(&models.DeliveryRecord{})
	if f.RuleID != 0 {
		query = query.Where("rule_id = ?", f.RuleID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.From != nil {
		query = query.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("created_at <= ?", *f.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	pageSize := f.PageSize
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	var records []models.DeliveryRecord
	err := query.Order("created_at desc, id desc").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&records).Error
	return records, total, err
}

// LatestFailure returns the newest failed record for a rule, so the
// rule-management surface can show the last failure reason.
func (l *Ledger) LatestFailure(ruleID uint) (*models.DeliveryRecord, error) {
	var rec models.DeliveryRecord
	err := l.db.Where("rule_id = ? AND status = ?", ruleID, models.DeliveryStatusFailed).
		Order("created_at desc, id desc").First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
