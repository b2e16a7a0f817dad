package receipt

import (
	"sort"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Priority orders receipts for embedding backfill.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
	// PriorityAll is only valid as a filter.
	PriorityAll Priority = "all"
)

// ErrInvalidPriority is returned by ParsePriority for unknown values.
var ErrInvalidPriority = errors.New("invalid priority")

// highValueThreshold is the total at or above which a processed receipt is
// backfilled first.
var highValueThreshold = decimal.NewFromInt(100)

// Priorities lists the concrete buckets from most to least urgent.
func Priorities() []Priority {
	return []Priority{PriorityHigh, PriorityMedium, PriorityLow}
}

// ParsePriority accepts high, medium, low or all (case-insensitive). An empty
// string means all.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityAll, nil
	case PriorityHigh, PriorityMedium, PriorityLow, PriorityAll:
		return p, nil
	default:
		return "", errors.Wrapf(ErrInvalidPriority, "%q (want high, medium, low or all)", s)
	}
}

// Classify buckets a receipt:
//   - high: processing complete and total >= 100
//   - medium: processing complete and merchant known
//   - low: everything else
func Classify(r Receipt) Priority {
	if r.ProcessingStatus != ProcessingComplete {
		return PriorityLow
	}
	if r.Total.GreaterThanOrEqual(highValueThreshold) {
		return PriorityHigh
	}
	if strings.TrimSpace(r.Merchant) != "" {
		return PriorityMedium
	}
	return PriorityLow
}

// Matches reports whether p selects receipts of class c.
func (p Priority) Matches(c Priority) bool {
	return p == PriorityAll || p == c
}

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// SortByPriority orders receipts high to low, newest first within a bucket.
func SortByPriority(rs []Receipt) {
	sort.SliceStable(rs, func(i, j int) bool {
		pi, pj := Classify(rs[i]).rank(), Classify(rs[j]).rank()
		if pi != pj {
			return pi < pj
		}
		return rs[i].CreatedAt.After(rs[j].CreatedAt)
	})
}

// Histogram counts receipts per priority bucket.
func Histogram(rs []Receipt) map[Priority]int {
	h := make(map[Priority]int, 3)
	for _, p := range Priorities() {
		h[p] = 0
	}
	for _, r := range rs {
		h[Classify(r)]++
	}
	return h
}
