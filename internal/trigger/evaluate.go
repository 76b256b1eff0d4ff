package trigger

import (
	"github.com/formeye/internal/condition"
	"github.com/formeye/internal/delivery"
	"github.com/formeye/internal/fieldmap"
	"github.com/formeye/internal/models"
)

// evaluate decides fire/no-fire for one (rule, record) pair. A formula
// error still yields a candidate so the coordinator can audit it; a
// clean false yields nothing.
func evaluate(r models.Rule, sub *models.Submission) (delivery.Candidate, bool) {
	fm := fieldmap.Build(sub)
	cand := delivery.Candidate{Rule: r, Submission: sub, Fields: fm}

	met, err := condition.Evaluate(r.ConditionFormula, fm)
	if err != nil {
		cand.EvalErr = err
		return cand, true
	}
	if !met {
		return cand, false
	}
	return cand, true
}
