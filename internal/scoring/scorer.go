// Package scoring computes the 0-100 urgency score of a conversation.
//
// This is the only copy of the weight table: the recalculation job and the
// preview endpoint both call Score.
package scoring

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"crmdispatch/internal/models"
)

const (
	maxStatusFactor = 25
	maxTagFactor    = 20
	maxScore        = 100

	noProductWeight = 5
	saleWeight      = 10
)

// Bucket thresholds, inclusive lower bounds
const (
	CriticalThreshold = 70
	HighThreshold     = 45
	MediumThreshold   = 20
)

var productWeights = map[string]int{
	"elite": 25,
	"scale": 25,
	"labs":  15,
	"venda": 15,
}

var statusWeights = map[string]int{
	"reembolsado":               25,
	"pausado":                   20,
	"formulário não preenchido": 15,
	"próximo do vencimento":     15,
	"aluno novo":                10,
}

var daysPattern = regexp.MustCompile(`(\d+)\s*\+?\s*(?:dias?|days?|d)\b`)

var saleStatuses = map[string]bool{
	"perdido":   true,
	"novo lead": true,
}

// Breakdown is the per-factor result of scoring a conversation
type Breakdown struct {
	Time    int                   `json:"time"`
	Product int                   `json:"product"`
	Status  int                   `json:"status"`
	Tag     int                   `json:"tag"`
	Total   int                   `json:"total"`
	Bucket  models.PriorityBucket `json:"bucket"`
	Days    *int                  `json:"days_since_last_interaction,omitempty"`
}

// Score computes all factors for the conversation at the given instant
func Score(data models.ScoringData, now time.Time) Breakdown {
	b := Breakdown{
		Product: ProductFactor(data.Products),
		Status:  StatusFactor(data.Products, data.Sales),
		Tag:     TagFactor(data.Tags),
	}

	if last := data.Conversation.LastInteractionAt; last != nil {
		days := DaysSince(*last, now)
		b.Days = &days
		b.Time = TimeFactor(days)
	}

	b.Total = clamp(b.Time+b.Product+b.Status+b.Tag, 0, maxScore)
	b.Bucket = BucketFor(b.Total)
	return b
}

// DaysSince returns whole days elapsed between last and now
func DaysSince(last, now time.Time) int {
	if now.Before(last) {
		return 0
	}
	return int(now.Sub(last) / (24 * time.Hour))
}

// TimeFactor weighs days without interaction
func TimeFactor(days int) int {
	switch {
	case days >= 8:
		return 30
	case days >= 4:
		return 20
	case days >= 2:
		return 10
	default:
		return 0
	}
}

// ProductFactor returns the heaviest product weight, or the no-product weight
func ProductFactor(products []models.ContactProduct) int {
	if len(products) == 0 {
		return noProductWeight
	}
	best := 0
	for _, p := range products {
		w, ok := productWeights[normalize(p.ProductType)]
		if !ok {
			w = noProductWeight
		}
		if w > best {
			best = w
		}
	}
	return best
}

// StatusFactor sums critical product statuses and lost/new-lead sales, capped at 25
func StatusFactor(products []models.ContactProduct, sales []models.Sale) int {
	total := 0
	for _, p := range products {
		total += statusWeights[normalize(p.Status)]
	}
	for _, s := range sales {
		if saleStatuses[normalize(s.Status)] {
			total += saleWeight
		}
	}
	return clamp(total, 0, maxStatusFactor)
}

// TagFactor sums active tag weights, capped at 20
func TagFactor(tags []models.ConversationTag) int {
	total := 0
	for _, t := range tags {
		if !t.Active {
			continue
		}
		total += TagWeight(t.Name)
	}
	return clamp(total, 0, maxTagFactor)
}

// TagWeight classifies an alert tag by name.
// Tags naming 14+ days or an exhausted contact weigh 10, 7+ days weigh 7,
// any other alert weighs 5.
func TagWeight(name string) int {
	n := normalize(name)
	if strings.Contains(n, "esgotad") {
		return 10
	}
	if m := daysPattern.FindStringSubmatch(n); m != nil {
		days, err := strconv.Atoi(m[1])
		if err == nil {
			switch {
			case days >= 14:
				return 10
			case days >= 7:
				return 7
			}
		}
	}
	return 5
}

// BucketFor maps a total score to its bucket
func BucketFor(score int) models.PriorityBucket {
	switch {
	case score >= CriticalThreshold:
		return models.PriorityCritical
	case score >= HighThreshold:
		return models.PriorityHigh
	case score >= MediumThreshold:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
