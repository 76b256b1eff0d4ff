package history

import (
	"github.com/formeye/internal/models"
)

type RuleStats struct {
	RuleID      uint    `json:"rule_id"`
	RuleName    string  `json:"rule_name"`
	Sent        int64   `json:"sent"`
	Failed      int64   `json:"failed"`
	Skipped     int64   `json:"skipped"`
	SuccessRate float64 `json:"success_rate"`
}

type StatsReport struct {
	Total   RuleStats   `json:"total"`
	PerRule []RuleStats `json:"per_rule"`
}

// Stats rolls up sent/failed/skipped counters per rule and overall.
// Success rate is sent / (sent + failed + skipped), 0 when no records.
func (l *Ledger) Stats() (*StatsReport, error) {
	type row struct {
		RuleID   uint
		RuleName string
		Status   models.DeliveryStatus
		Count    int64
	}
	var rows []row
	err := l.db.Model(&models.DeliveryRecord{}).
		Select("rule_id, rule_name, status, count(*) as count").
		Group("rule_id, rule_name, status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	byRule := make(map[uint]*RuleStats)
	var order []uint
	report := &StatsReport{}
	for _, r := range rows {
		rs, ok := byRule[r.RuleID]
		if !ok {
			rs = &RuleStats{RuleID: r.RuleID, RuleName: r.RuleName}
			byRule[r.RuleID] = rs
			order = append(order, r.RuleID)
		}
		switch r.Status {
		case models.DeliveryStatusSent:
			rs.Sent += r.Count
			report.Total.Sent += r.Count
		case models.DeliveryStatusFailed:
			rs.Failed += r.Count
			report.Total.Failed += r.Count
		case models.DeliveryStatusSkipped:
			rs.Skipped += r.Count
			report.Total.Skipped += r.Count
		}
	}

	for _, id := range order {
		rs := byRule[id]
		rs.SuccessRate = successRate(rs.Sent, rs.Failed, rs.Skipped)
		report.PerRule = append(report.PerRule, *rs)
	}
	report.Total.SuccessRate = successRate(report.Total.Sent, report.Total.Failed, report.Total.Skipped)
	return report, nil
}

// RuleStats rolls up the counters for a single rule.
func (l *Ledger) RuleStats(ruleID uint) (*RuleStats, error) {
	report, err := l.Stats()
	if err != nil {
		return nil, err
	}
	for i := range report.PerRule {
		if report.PerRule[i].RuleID == ruleID {
			return &report.PerRule[i], nil
		}
	}
	return &RuleStats{RuleID: ruleID}, nil
}

func successRate(sent, failed, skipped int64) float64 {
	total := sent + failed + skipped
	if total == 0 {
		return 0
	}
	return float64(sent) / float64(total)
}
