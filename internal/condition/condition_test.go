package condition

import (
	"testing"

	"github.com/formeye/internal/fieldmap"
	"github.com/formeye/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fields(kv map[string]interface{}) *fieldmap.Map {
	var list models.FieldList
	for name, value := range kv {
		list = append(list, models.Field{ID: name, Name: name, Value: value})
	}
	return fieldmap.Build(&models.Submission{Fields: list})
}

func TestComparisons(t *testing.T) {
	tests := []struct {
		name    string
		formula string
		fields  map[string]interface{}
		want    bool
	}{
		{
			"closed high amount",
			`[Status] = "Closed" AND [Amount] > 100000`,
			map[string]interface{}{"Status": "Closed", "Amount": 150000.0},
			true,
		},
		{
			"closed low amount",
			`[Status] = "Closed" AND [Amount] > 100000`,
			map[string]interface{}{"Status": "Closed", "Amount": 50000.0},
			false,
		},
		{
			"numeric comparison on string values",
			`[Amount] >= 100`,
			map[string]interface{}{"Amount": "250"},
			true,
		},
		{
			"numeric equality ignores formatting",
			`[Amount] = 100`,
			map[string]interface{}{"Amount": "100.0"},
			true,
		},
		{
			"string comparison is case sensitive",
			`[Status] = "closed"`,
			map[string]interface{}{"Status": "Closed"},
			false,
		},
		{
			"not equal",
			`[Status] <> "Open"`,
			map[string]interface{}{"Status": "Closed"},
			true,
		},
		{
			"lexicographic when not numeric",
			`[Name] < "b"`,
			map[string]interface{}{"Name": "a"},
			true,
		},
		{
			"field against field",
			`[A] = [B]`,
			map[string]interface{}{"A": "x", "B": "x"},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.formula, fields(tt.fields))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBlankPropagation(t *testing.T) {
	empty := fields(nil)

	got, err := Evaluate(`[Missing] = "x"`, empty)
	require.NoError(t, err)
	assert.False(t, got, "comparison against blank is false")

	got, err = Evaluate(`[Missing] <> "x"`, empty)
	require.NoError(t, err)
	assert.False(t, got, "blank propagates through <> too")

	got, err = Evaluate(`ISBLANK([Notes])`, empty)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = Evaluate(`ISBLANK([Notes])`, fields(map[string]interface{}{"Notes": "  "}))
	require.NoError(t, err)
	assert.True(t, got, "whitespace-only counts as blank")

	got, err = Evaluate(`ISBLANK([Notes])`, fields(map[string]interface{}{"Notes": "hi"}))
	require.NoError(t, err)
	assert.False(t, got)
}

func TestContains(t *testing.T) {
	got, err := Evaluate(`CONTAINS([Email], "@gmail.com")`, fields(map[string]interface{}{"Email": "a@gmail.com"}))
	require.NoError(t, err)
	assert.True(t, got)

	got, err = Evaluate(`CONTAINS([Email], "@gmail.com")`, fields(map[string]interface{}{"Email": "a@yahoo.com"}))
	require.NoError(t, err)
	assert.False(t, got)

	got, err = Evaluate(`CONTAINS([Email], "@gmail.com")`, fields(nil))
	require.NoError(t, err)
	assert.False(t, got, "CONTAINS on blank is false")
}

// Precedence reference: NOT > comparison > AND > OR.
func TestBooleanPrecedence(t *testing.T) {
	m := fields(map[string]interface{}{"A": "1", "B": "2", "C": "3"})

	tests := []struct {
		formula string
		want    bool
	}{
		// OR of AND, not AND of OR
		{`[A] = 1 OR [B] = 0 AND [C] = 0`, true},
		{`([A] = 1 OR [B] = 0) AND [C] = 0`, false},
		// NOT binds to the comparison, not the conjunction
		{`NOT [A] = 0 AND [B] = 2`, true},
		{`NOT ([A] = 1 AND [B] = 2)`, false},
		{`NOT NOT [A] = 1`, true},
		{`[A] = 0 OR [B] = 0 OR [C] = 3`, true},
		{`[A] = 1 AND [B] = 2 AND [C] = 3`, true},
		{`[A] = 1 AND [B] = 2 AND [C] = 0`, false},
	}
	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			got, err := Evaluate(tt.formula, m)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Exhaustive truth table for two comparison inputs under AND/OR/NOT.
func TestTruthTable(t *testing.T) {
	for _, a := range []bool{false, true} {
		for _, b := range []bool{false, true} {
			kv := map[string]interface{}{"A": "0", "B": "0"}
			if a {
				kv["A"] = "1"
			}
			if b {
				kv["B"] = "1"
			}
			m := fields(kv)

			got, err := Evaluate(`[A] = 1 AND [B] = 1`, m)
			require.NoError(t, err)
			assert.Equal(t, a && b, got)

			got, err = Evaluate(`[A] = 1 OR [B] = 1`, m)
			require.NoError(t, err)
			assert.Equal(t, a || b, got)

			got, err = Evaluate(`NOT [A] = 1 OR NOT [B] = 1`, m)
			require.NoError(t, err)
			assert.Equal(t, !a || !b, got)
		}
	}
}

func TestIfFunction(t *testing.T) {
	m := fields(map[string]interface{}{"Status": "Closed", "Urgent": "yes"})

	got, err := Evaluate(`IF([Status] = "Closed", [Urgent], [Missing])`, m)
	require.NoError(t, err)
	assert.True(t, got, "then-branch value coerces truthy")

	got, err = Evaluate(`IF([Status] = "Open", [Urgent], [Missing])`, m)
	require.NoError(t, err)
	assert.False(t, got, "else-branch blank coerces false")

	got, err = Evaluate(`IF(ISBLANK([Missing]), [Status] = "Closed", [Status] = "Open")`, m)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEmptyFormulaAlwaysFires(t *testing.T) {
	got, err := Evaluate("", fields(nil))
	require.NoError(t, err)
	assert.True(t, got)
	assert.NoError(t, Validate(""))
}

func TestMalformedFormulas(t *testing.T) {
	formulas := []string{
		`([Status] = "Closed"`,
		`[Status] = "Closed")`,
		`FOO([Status])`,
		`[Status] =`,
		`[Status`,
		`[Status] = "unterminated`,
		`AND [Status] = "Closed"`,
		`CONTAINS([Email])`,
		`IF([A] = 1, [B])`,
		`ISBLANK("literal")`,
	}
	for _, formula := range formulas {
		t.Run(formula, func(t *testing.T) {
			err := Validate(formula)
			require.Error(t, err)
			var condErr *ConditionError
			assert.ErrorAs(t, err, &condErr)

			fired, err := Evaluate(formula, fields(nil))
			assert.Error(t, err)
			assert.False(t, fired, "malformed formula never fires")
		})
	}
}

func TestParseReuse(t *testing.T) {
	expr, err := Parse(`[N] > 5`)
	require.NoError(t, err)
	assert.True(t, expr.eval(fields(map[string]interface{}{"N": "6"})).truthy())
	assert.False(t, expr.eval(fields(map[string]interface{}{"N": "4"})).truthy())
}
