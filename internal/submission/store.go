// Package submission stores form records. The form-builder surface
// owns authoring and listing; the engine only needs ingest, lookup by
// id, and "latest record of a form" for scheduled rules.
package submission

import (
	"errors"

	"github.com/formeye/internal/models"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("submission not found")

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Create(sub *models.Submission) error {
	return s.db.Create(sub).Error
}

func (s *Store) Get(id uint) (*models.Submission, error) {
	var sub models.Submission
	if err := s.db.First(&sub, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// Latest returns the most recent submission of a form, or ErrNotFound
// when the form has none yet.
func (s *Store) Latest(formID string) (*models.Submission, error) {
	var sub models.Submission
	err := s.db.Where("form_id = ?", formID).
		Order("created_at desc, id desc").First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
