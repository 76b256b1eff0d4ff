package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
)

type FieldType string

const (
	FieldTypeText   FieldType = "text"
	FieldTypeNumber FieldType = "number"
	FieldTypeDate   FieldType = "date"
	FieldTypeBool   FieldType = "bool"
	FieldTypeMulti  FieldType = "multi" // checkbox groups, multi-selects
)

// Field is one answered field of a submission: the stable field id, the
// display name the form designer gave it, and the captured value.
type Field struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Type  FieldType   `json:"type"`
	Value interface{} `json:"value"`
}

// FieldList is stored as a JSON column so arbitrary user-defined schemas
// need no migrations.
type FieldList []Field

func (l FieldList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (l *FieldList) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported field list column type %T", value)
	}
}

// Submission is one record of a dynamic form, optionally carrying the
// fields of a nested sub-record alongside the parent's.
type Submission struct {
	gorm.Model
	FormID    string    `json:"form_id" gorm:"index;not null"`
	SubFormID string    `json:"sub_form_id" gorm:"index"`
	Fields    FieldList `json:"fields" gorm:"type:text"`
	SubFields FieldList `json:"sub_fields" gorm:"type:text"`
}
