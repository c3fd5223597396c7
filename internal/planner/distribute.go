package planner

import (
	"sort"

	"golang-liquidity-planner/internal/bankcode"
	"golang-liquidity-planner/internal/models"

	"github.com/shopspring/decimal"
)

// Tier identifies the fallback step an assignment came from
type Tier int

const (
	TierOpen       Tier = 1 // cards with capacity left under their limit
	TierExtendable Tier = 2 // exhausted cards whose bank allows exceeding the limit
	TierUnlimited  Tier = 3 // unlimited fallback instrument
)

// String returns the string representation of Tier
func (t Tier) String() string {
	switch t {
	case TierOpen:
		return "open"
	case TierExtendable:
		return "extendable"
	case TierUnlimited:
		return "unlimited"
	default:
		return "unknown"
	}
}

// Assignment is the amount placed on one card
type Assignment struct {
	Bank           string            `json:"bank" yaml:"bank"`
	MaskedID       string            `json:"masked_id" yaml:"masked_id"`
	Assigned       decimal.Decimal   `json:"assigned" yaml:"assigned"`
	CapacityBefore decimal.Decimal   `json:"capacity_before" yaml:"capacity_before"`
	CapacityAfter  decimal.Decimal   `json:"capacity_after" yaml:"capacity_after"`
	Status         models.CardStatus `json:"status" yaml:"status"`
	IsBolsa        bool              `json:"is_bolsa" yaml:"is_bolsa"`
	Tier           Tier              `json:"tier" yaml:"tier"`
}

// Distribution is the placement of a reserve amount across cards
type Distribution struct {
	Requested     decimal.Decimal `json:"requested" yaml:"requested"`
	TotalAssigned decimal.Decimal `json:"total_assigned" yaml:"total_assigned"`
	Leftover      decimal.Decimal `json:"leftover" yaml:"leftover"`
	Assignments   []Assignment    `json:"assignments" yaml:"assignments"`
	UsedBolsa     bool            `json:"used_bolsa" yaml:"used_bolsa"`
}

// IsCovered reports whether the whole requested amount was placed
func (d *Distribution) IsCovered() bool {
	return d.Leftover.IsZero()
}

// SortCardsByPreference returns a sorted copy of cards. Order is bank
// position in bankOrder (unlisted banks last), then deposit capacity
// descending, then remaining descending, then masked id ascending.
func SortCardsByPreference(cards []*models.Card, bankOrder []string) []*models.Card {
	position := make(map[string]int, len(bankOrder))
	for i, raw := range bankOrder {
		code := bankcode.Normalize(raw)
		if _, seen := position[code]; code != "" && !seen {
			position[code] = i
		}
	}
	unlisted := len(bankOrder) + 1

	rank := func(c *models.Card) int {
		if p, ok := position[c.Bank]; ok {
			return p
		}
		return unlisted
	}

	sorted := make([]*models.Card, 0, len(cards))
	for _, c := range cards {
		if c != nil {
			sorted = append(sorted, c)
		}
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if ra, rb := rank(a), rank(b); ra != rb {
			return ra < rb
		}
		if !a.DepositCap.Equal(b.DepositCap) {
			return a.DepositCap.GreaterThan(b.DepositCap)
		}
		if !a.Remaining.Equal(b.Remaining) {
			return a.Remaining.GreaterThan(b.Remaining)
		}
		return a.MaskedID < b.MaskedID
	})

	return sorted
}

// ComputeDistribution places amount across cards in three tiers:
// open cards up to their deposit capacity, then extendable cards which may
// absorb past their capacity, then the first unlimited card takes whatever
// is left. Anything still unplaced is returned as Leftover.
func ComputeDistribution(amount decimal.Decimal, cards []*models.Card, bankOrder []string) *Distribution {
	if !amount.IsPositive() {
		return &Distribution{
			Requested:     models.MaxZero(amount),
			TotalAssigned: decimal.Zero,
			Leftover:      decimal.Zero,
			Assignments:   []Assignment{},
		}
	}

	var open, extendable, unlimited []*models.Card
	for _, c := range SortCardsByPreference(cards, bankOrder) {
		switch {
		case c.IsBolsa:
			unlimited = append(unlimited, c)
		case c.Status == models.CardOK:
			open = append(open, c)
		case c.Status == models.CardExtendable:
			extendable = append(extendable, c)
		}
	}

	dist := &Distribution{
		Requested:   amount,
		Assignments: []Assignment{},
	}
	toPlace := amount

	// Tier 1
	for _, c := range open {
		if !toPlace.IsPositive() {
			break
		}
		if !c.DepositCap.IsPositive() {
			continue
		}
		assigned := decimal.Min(c.DepositCap, toPlace)
		dist.add(c, assigned, c.DepositCap, c.DepositCap.Sub(assigned), TierOpen)
		toPlace = toPlace.Sub(assigned)
	}

	// Tier 2
	for _, c := range extendable {
		if !toPlace.IsPositive() {
			break
		}
		capacity := decimal.Max(c.DepositCap, toPlace)
		assigned := decimal.Min(capacity, toPlace)
		dist.add(c, assigned, capacity, capacity.Sub(assigned), TierExtendable)
		toPlace = toPlace.Sub(assigned)
	}

	// Tier 3
	if toPlace.IsPositive() && len(unlimited) > 0 {
		c := unlimited[0]
		dist.add(c, toPlace, c.DepositCap, models.MaxZero(c.DepositCap.Sub(toPlace)), TierUnlimited)
		toPlace = decimal.Zero
	}

	dist.Leftover = toPlace
	dist.TotalAssigned = amount.Sub(toPlace)
	return dist
}

func (d *Distribution) add(c *models.Card, assigned, before, after decimal.Decimal, tier Tier) {
	if !assigned.IsPositive() {
		return
	}
	d.Assignments = append(d.Assignments, Assignment{
		Bank:           c.Bank,
		MaskedID:       c.MaskedID,
		Assigned:       assigned,
		CapacityBefore: before,
		CapacityAfter:  after,
		Status:         c.Status,
		IsBolsa:        c.IsBolsa,
		Tier:           tier,
	})
	if c.IsBolsa {
		d.UsedBolsa = true
	}
}
