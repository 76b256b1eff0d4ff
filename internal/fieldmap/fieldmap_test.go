package fieldmap

import (
	"testing"

	"github.com/formeye/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupByIDAndName(t *testing.T) {
	m := Build(&models.Submission{
		Fields: models.FieldList{
			{ID: "f1", Name: "Status", Type: models.FieldTypeText, Value: "Closed"},
		},
	})

	v, ok := m.Lookup("f1")
	require.True(t, ok)
	assert.Equal(t, "Closed", v.String())

	v, ok = m.Lookup("Status")
	require.True(t, ok)
	assert.Equal(t, "Closed", v.String())

	_, ok = m.Lookup("Other")
	assert.False(t, ok)
}

func TestSubRecordShadowsParent(t *testing.T) {
	m := Build(&models.Submission{
		Fields: models.FieldList{
			{ID: "f1", Name: "Status", Value: "Open"},
			{ID: "f2", Name: "Owner", Value: "alice"},
		},
		SubFields: models.FieldList{
			{ID: "f1", Name: "Status", Value: "Closed"},
		},
	})

	v, ok := m.Lookup("Status")
	require.True(t, ok)
	assert.Equal(t, "Closed", v.String())

	v, ok = m.Lookup("Owner")
	require.True(t, ok)
	assert.Equal(t, "alice", v.String())
}

func TestNilSubmission(t *testing.T) {
	m := Build(nil)
	_, ok := m.Lookup("anything")
	assert.False(t, ok)
}

func TestIsBlank(t *testing.T) {
	assert.True(t, Value{Raw: nil}.IsBlank())
	assert.True(t, Value{Raw: ""}.IsBlank())
	assert.True(t, Value{Raw: "   "}.IsBlank())
	assert.True(t, Value{Raw: []interface{}{}}.IsBlank())
	assert.False(t, Value{Raw: "x"}.IsBlank())
	assert.False(t, Value{Raw: 0.0}.IsBlank())
	assert.False(t, Value{Raw: false}.IsBlank())
}

func TestNumber(t *testing.T) {
	n, ok := Value{Raw: "150000"}.Number()
	require.True(t, ok)
	assert.Equal(t, 150000.0, n)

	n, ok = Value{Raw: 42.5}.Number()
	require.True(t, ok)
	assert.Equal(t, 42.5, n)

	_, ok = Value{Raw: "abc"}.Number()
	assert.False(t, ok)
}

func TestDisplayFormatting(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"number trims zeros", Value{Raw: "150000.500", Type: models.FieldTypeNumber}, "150000.5"},
		{"integer number", Value{Raw: 42.0, Type: models.FieldTypeNumber}, "42"},
		{"date only", Value{Raw: "2026-03-01T00:00:00Z", Type: models.FieldTypeDate}, "2026-03-01"},
		{"date with time", Value{Raw: "2026-03-01T09:30:00Z", Type: models.FieldTypeDate}, "2026-03-01 09:30"},
		{"bool yes", Value{Raw: true, Type: models.FieldTypeBool}, "Yes"},
		{"bool no", Value{Raw: false, Type: models.FieldTypeBool}, "No"},
		{"multi join", Value{Raw: []interface{}{"a", "b"}, Type: models.FieldTypeMulti}, "a, b"},
		{"blank", Value{Raw: nil, Type: models.FieldTypeText}, ""},
		{"unparseable date falls through", Value{Raw: "soonish", Type: models.FieldTypeDate}, "soonish"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.Display())
		})
	}
}
