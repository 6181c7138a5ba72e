package penalty

import (
	"sort"
	"time"

	"ppe-monitor-service/internal/domain/ppe"
)

// Rule prices one violation type. The n-th occurrence within a person's
// month (1-indexed) costs FlatFee + PerMinuteFee * minutes, multiplied
// by OverageMultiplier once n exceeds MonthlyCountThreshold.
type Rule struct {
	FlatFee               float64 `json:"flat_fee"`
	PerMinuteFee          float64 `json:"per_minute_fee"`
	MonthlyCountThreshold int     `json:"monthly_count_threshold"`
	OverageMultiplier     float64 `json:"overage_multiplier"`
	Severity              string  `json:"severity"`
}

// RuleTable maps violation types to pricing rules. Types without a rule
// are counted but priced zero.
type RuleTable map[string]Rule

// DefaultRules mirrors the site policy shipped with the source system.
func DefaultRules() RuleTable {
	return RuleTable{
		ppe.TypeNoHelmet: {FlatFee: 500, PerMinuteFee: 10, MonthlyCountThreshold: 3, OverageMultiplier: 2.0, Severity: ppe.SeverityCritical},
		ppe.TypeNoVest:   {FlatFee: 300, PerMinuteFee: 5, MonthlyCountThreshold: 5, OverageMultiplier: 1.5, Severity: ppe.SeverityWarning},
		ppe.TypeNoShoes:  {FlatFee: 300, PerMinuteFee: 5, MonthlyCountThreshold: 5, OverageMultiplier: 1.5, Severity: ppe.SeverityWarning},
	}
}

// TypePenalty is the per-type slice of a monthly record.
type TypePenalty struct {
	Count                int     `json:"count"`
	TotalDurationSeconds float64 `json:"total_duration_seconds"`
	Amount               float64 `json:"amount"`
	MultiplierApplied    bool    `json:"multiplier_applied"`
	Priced               bool    `json:"priced"`
}

// PersonPenalty is the monthly record for one person.
type PersonPenalty struct {
	PersonID string                 `json:"person_id"`
	Month    string                 `json:"month"`
	ByType   map[string]TypePenalty `json:"by_type"`
	Total    float64                `json:"total"`
}

// CompanyPenalty sums person records across a company for one month.
type CompanyPenalty struct {
	CompanyID string                   `json:"company_id"`
	Month     string                   `json:"month"`
	ByPerson  map[string]PersonPenalty `json:"by_person"`
	Total     float64                  `json:"total"`
}

// Aggregator is a pure read-side consumer: it owns no shared state and
// never touches the live engine lock. Events are handed in as a
// snapshot, typically fetched from persistence.
type Aggregator struct {
	rules RuleTable
}

func NewAggregator(rules RuleTable) *Aggregator {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Aggregator{rules: rules}
}

// CalculateForPerson prices all of a person's closed events that start
// within the given month. Occurrence order follows start time so the
// overage multiplier lands on the chronologically later events.
func (a *Aggregator) CalculateForPerson(personID string, events []ppe.ViolationEvent, month time.Time) PersonPenalty {
	rec := PersonPenalty{
		PersonID: personID,
		Month:    month.Format("2006-01"),
		ByType:   make(map[string]TypePenalty),
	}

	scoped := make([]ppe.ViolationEvent, 0, len(events))
	for _, ev := range events {
		if sameMonth(ev.StartTime, month) {
			scoped = append(scoped, ev)
		}
	}
	sort.Slice(scoped, func(i, j int) bool { return scoped[i].StartTime.Before(scoped[j].StartTime) })

	occurrences := make(map[string]int)
	for _, ev := range scoped {
		vt := ev.ViolationType
		occurrences[vt]++
		n := occurrences[vt]

		tp := rec.ByType[vt]
		tp.Count = n
		tp.TotalDurationSeconds += ev.DurationSeconds

		rule, priced := a.rules[vt]
		tp.Priced = priced
		if priced {
			amount := rule.FlatFee + rule.PerMinuteFee*(ev.DurationSeconds/60)
			if n > rule.MonthlyCountThreshold {
				amount *= rule.OverageMultiplier
				tp.MultiplierApplied = true
			}
			tp.Amount += amount
			rec.Total += amount
		}
		rec.ByType[vt] = tp
	}

	return rec
}

// CalculateForCompany prices each person's events and sums the totals.
func (a *Aggregator) CalculateForCompany(companyID string, personEvents map[string][]ppe.ViolationEvent, month time.Time) CompanyPenalty {
	rec := CompanyPenalty{
		CompanyID: companyID,
		Month:     month.Format("2006-01"),
		ByPerson:  make(map[string]PersonPenalty, len(personEvents)),
	}
	for personID, events := range personEvents {
		pp := a.CalculateForPerson(personID, events, month)
		rec.ByPerson[personID] = pp
		rec.Total += pp.Total
	}
	return rec
}

func sameMonth(t, month time.Time) bool {
	return t.Year() == month.Year() && t.Month() == month.Month()
}
