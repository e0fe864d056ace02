package metrics

import (
	"go.mongodb.org/mongo-driver/bson"

	"abandoned-tracker/internal/domain"
)

type groupKey struct {
	SellerID int
	Date     string
}

// aggregate accumulates counter and amount deltas for one seller-day pair.
// Count fields stay integral so the stored counters remain whole numbers.
type aggregate struct {
	counts  map[string]int64
	amounts map[string]float64
}

func newAggregate() *aggregate {
	return &aggregate{
		counts:  make(map[string]int64),
		amounts: make(map[string]float64),
	}
}

func (a *aggregate) apply(op domain.MetricOperation) {
	cat := op.Category
	switch op.Type {
	case domain.MetricAbandonment:
		a.counts[cat+".abandoned"]++
		a.amounts[cat+".abandonedAmount"] += op.Amount
		a.amounts["totals.totalAbandonedAmount"] += op.Amount
	case domain.MetricRecovery:
		a.counts[cat+".recovered"]++
		a.counts[cat+".abandoned"]--
		a.amounts[cat+".recoveredAmount"] += op.Amount
		a.amounts[cat+".abandonedAmount"] -= op.Amount
		a.amounts["totals.totalRecoveredAmount"] += op.Amount
		a.amounts["totals.totalAbandonedAmount"] -= op.Amount
	}
}

func (a *aggregate) incDocument() bson.M {
	inc := bson.M{}
	for field, v := range a.counts {
		if v != 0 {
			inc[field] = v
		}
	}
	for field, v := range a.amounts {
		if v != 0 {
			inc[field] = v
		}
	}
	return inc
}

// foldOperations collapses a batch into one combined delta per seller-day
// pair, so the flush issues O(distinct pairs) writes instead of O(ops).
func foldOperations(ops []domain.MetricOperation) map[groupKey]*aggregate {
	groups := make(map[groupKey]*aggregate)
	for _, op := range ops {
		key := groupKey{SellerID: op.SellerID, Date: op.Date}
		agg, ok := groups[key]
		if !ok {
			agg = newAggregate()
			groups[key] = agg
		}
		agg.apply(op)
	}
	return groups
}
