package planner

import (
	"math/rand"
	"strconv"
	"testing"

	"golang-liquidity-planner/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func card(bank, masked string, status models.CardStatus, depositCap, remaining string, bolsa bool) *models.Card {
	return &models.Card{
		Bank:       bank,
		MaskedID:   masked,
		Status:     status,
		DepositCap: d(depositCap),
		Remaining:  d(remaining),
		IsBolsa:    bolsa,
	}
}

func maskedIDs(cards []*models.Card) []string {
	ids := make([]string, len(cards))
	for i, c := range cards {
		ids[i] = c.MaskedID
	}
	return ids
}

func TestSortCardsByPreference(t *testing.T) {
	cards := []*models.Card{
		card("BPA", "0001", models.CardOK, "5000", "5000", false),
		card("ZETA", "0002", models.CardOK, "90000", "90000", false),
		card("BANDEC", "0003", models.CardOK, "10000", "20000", false),
		card("METRO", "0004", models.CardOK, "1000", "1000", false),
		card("BANDEC", "0005", models.CardOK, "10000", "30000", false),
		card("BANDEC", "0006", models.CardOK, "40000", "40000", false),
		card("ALFA", "0007", models.CardOK, "1", "1", false),
		card("BANDEC", "0000", models.CardOK, "10000", "30000", false),
	}

	sorted := SortCardsByPreference(cards, []string{"Bandec", "metro", "Banco Popular de Ahorro"})

	assert.Equal(t, []string{"0006", "0000", "0005", "0003", "0004", "0001", "0002", "0007"}, maskedIDs(sorted))
	assert.Equal(t, "0001", cards[0].MaskedID, "input slice must not be reordered")
}

func TestSortCardsByPreference_UnlistedKeepRelativeOrder(t *testing.T) {
	cards := []*models.Card{
		card("X", "0001", models.CardOK, "100", "100", false),
		card("Y", "0002", models.CardOK, "500", "500", false),
		card("X", "0003", models.CardOK, "100", "100", false),
	}

	sorted := SortCardsByPreference(cards, nil)

	// Unlisted banks share one rank, so capacity decides
	assert.Equal(t, []string{"0002", "0001", "0003"}, maskedIDs(sorted))
}

func TestComputeDistribution_OpenCardsOnly(t *testing.T) {
	cards := []*models.Card{
		card("BANDEC", "1111", models.CardOK, "30000", "30000", false),
		card("BANDEC", "2222", models.CardOK, "50000", "50000", false),
	}

	dist := ComputeDistribution(d("60000"), cards, []string{"BANDEC"})

	require.Len(t, dist.Assignments, 2)
	assert.Equal(t, "2222", dist.Assignments[0].MaskedID)
	assertDecimal(t, "50000", dist.Assignments[0].Assigned)
	assertDecimal(t, "0", dist.Assignments[0].CapacityAfter)
	assert.Equal(t, "1111", dist.Assignments[1].MaskedID)
	assertDecimal(t, "10000", dist.Assignments[1].Assigned)
	assertDecimal(t, "30000", dist.Assignments[1].CapacityBefore)
	assertDecimal(t, "20000", dist.Assignments[1].CapacityAfter)
	assert.Equal(t, TierOpen, dist.Assignments[1].Tier)
	assertDecimal(t, "60000", dist.TotalAssigned)
	assertDecimal(t, "0", dist.Leftover)
	assert.True(t, dist.IsCovered())
	assert.False(t, dist.UsedBolsa)
}

func TestComputeDistribution_ExtendableBeforeUnlimited(t *testing.T) {
	cfg := DefaultConfig()
	classification := ClassifyUsage([]*models.UsageRow{
		usage("9204 0000 0000 1111", "A", "", "100000", "30000"),
		usage("9204 0000 0000 5555", "Monedero", "", "0", "0"),
		usage("9204 0000 0000 2222", "BPA", "", "130000", "0"),
	}, cfg)

	dist := ComputeDistribution(d("100000"), classification.Cards, []string{"A", "BOLSA", "BPA"})

	require.Len(t, dist.Assignments, 1)
	a := dist.Assignments[0]
	assert.Equal(t, "BPA", a.Bank)
	assert.Equal(t, "2222", a.MaskedID)
	assert.Equal(t, models.CardExtendable, a.Status)
	assert.Equal(t, TierExtendable, a.Tier)
	assertDecimal(t, "100000", a.Assigned)
	assertDecimal(t, "100000", a.CapacityBefore)
	assertDecimal(t, "0", a.CapacityAfter)
	assertDecimal(t, "0", dist.Leftover)
	assert.False(t, dist.UsedBolsa)
}

func TestComputeDistribution_UnlimitedAbsorbsResidue(t *testing.T) {
	cards := []*models.Card{
		card("BOLSA", "5555", models.CardOK, "120000", "120000", true),
		card("BOLSA", "6666", models.CardOK, "120000", "120000", true),
		card("METRO", "1111", models.CardOK, "20000", "20000", false),
		card("BANDEC", "2222", models.CardBlocked, "0", "0", false),
	}

	dist := ComputeDistribution(d("150000"), cards, []string{"BOLSA", "METRO"})

	require.Len(t, dist.Assignments, 2)
	assert.Equal(t, "1111", dist.Assignments[0].MaskedID)
	assertDecimal(t, "20000", dist.Assignments[0].Assigned)

	fallback := dist.Assignments[1]
	assert.Equal(t, "5555", fallback.MaskedID)
	assert.True(t, fallback.IsBolsa)
	assert.Equal(t, TierUnlimited, fallback.Tier)
	assertDecimal(t, "130000", fallback.Assigned)
	assertDecimal(t, "0", fallback.CapacityAfter)
	assertDecimal(t, "0", dist.Leftover)
	assert.True(t, dist.UsedBolsa)
}

func TestComputeDistribution_Leftover(t *testing.T) {
	cards := []*models.Card{
		card("METRO", "1111", models.CardOK, "20000", "20000", false),
		card("BANDEC", "2222", models.CardBlocked, "0", "0", false),
	}

	dist := ComputeDistribution(d("100000"), cards, nil)

	require.Len(t, dist.Assignments, 1)
	assertDecimal(t, "20000", dist.TotalAssigned)
	assertDecimal(t, "80000", dist.Leftover)
	assert.False(t, dist.IsCovered())
}

func TestComputeDistribution_NoCards(t *testing.T) {
	dist := ComputeDistribution(d("5000"), nil, nil)

	assert.Empty(t, dist.Assignments)
	assertDecimal(t, "0", dist.TotalAssigned)
	assertDecimal(t, "5000", dist.Leftover)
}

func TestComputeDistribution_NonPositiveAmount(t *testing.T) {
	cards := []*models.Card{card("METRO", "1111", models.CardOK, "20000", "20000", false)}

	for _, amount := range []string{"0", "-10"} {
		dist := ComputeDistribution(d(amount), cards, nil)
		assert.Empty(t, dist.Assignments)
		assertDecimal(t, "0", dist.TotalAssigned)
		assertDecimal(t, "0", dist.Leftover)
	}
}

func TestComputeDistribution_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	statuses := []models.CardStatus{models.CardOK, models.CardExtendable, models.CardBlocked}
	banks := []string{"BANDEC", "METRO", "BPA", "OTHER"}

	for run := 0; run < 300; run++ {
		n := rng.Intn(6)
		cards := make([]*models.Card, 0, n)
		for i := 0; i < n; i++ {
			status := statuses[rng.Intn(len(statuses))]
			capacity := decimal.NewFromInt(int64(rng.Intn(5) * 10000))
			if status != models.CardOK {
				capacity = decimal.Zero
			}
			cards = append(cards, &models.Card{
				Bank:       banks[rng.Intn(len(banks))],
				MaskedID:   strconv.Itoa(1000 + i),
				Status:     status,
				DepositCap: capacity,
				Remaining:  capacity,
				IsBolsa:    rng.Intn(8) == 0,
			})
		}
		amount := decimal.NewFromInt(int64(rng.Intn(200000)))
		order := []string{"BANDEC", "METRO", "BPA"}

		dist := ComputeDistribution(amount, cards, order)

		sum := decimal.Zero
		hasBolsa := false
		for _, a := range dist.Assignments {
			assert.True(t, a.Assigned.IsPositive())
			if !a.IsBolsa {
				assert.True(t, a.Assigned.LessThanOrEqual(a.CapacityBefore), "run %d: assigned above capacity", run)
			}
			sum = sum.Add(a.Assigned)
		}
		for _, c := range cards {
			hasBolsa = hasBolsa || c.IsBolsa
		}

		assert.True(t, sum.Equal(dist.TotalAssigned), "run %d", run)
		assert.False(t, dist.Leftover.IsNegative(), "run %d", run)
		if amount.IsPositive() {
			assert.True(t, sum.Add(dist.Leftover).Equal(amount), "run %d: conservation", run)
		}
		if hasBolsa {
			assert.True(t, dist.Leftover.IsZero(), "run %d: unlimited card must absorb residue", run)
		}

		again := ComputeDistribution(amount, cards, order)
		assert.Equal(t, dist, again, "run %d: not deterministic", run)
	}
}
