package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeSeverity(t *testing.T) {
	tests := []struct {
		name      string
		need      string
		sellNowIn string
		usable    string
		minSell   string
		expected  Severity
	}{
		{"no need", "0", "0", "0", "40", SeverityNormal},
		{"negative need", "-5", "0", "0", "40", SeverityNormal},
		{"partial coverage", "130000", "45000", "100", "40", SeverityUrgent},
		{"nothing sold", "45000", "0", "30", "40", SeverityUrgent},
		{"covered with low inventory", "45000", "49500", "30", "40", SeverityAttention},
		{"exact coverage", "50172", "50172", "200", "40", SeverityPriority},
		{"covered", "45000", "49500", "1000", "40", SeverityPriority},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeSeverity(d(tt.need), d(tt.sellNowIn), d(tt.usable), d(tt.minSell))
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSeverity_Rank(t *testing.T) {
	assert.Less(t, SeverityNormal.Rank(), SeverityPriority.Rank())
	assert.Less(t, SeverityPriority.Rank(), SeverityAttention.Rank())
	assert.Less(t, SeverityAttention.Rank(), SeverityUrgent.Rank())
	assert.Equal(t, -1, Severity("BOGUS").Rank())
}

func TestComputeProjection(t *testing.T) {
	tests := []struct {
		name       string
		assets     string
		debts      string
		sellNowIn  string
		assetsPost string
		negatives  string
		cushion    string
	}{
		{"still negative", "100000", "-180000", "50000", "150000", "30000", "0"},
		{"cushion after sale", "100000", "-80000", "139500", "239500", "0", "159500"},
		{"no debts", "0", "0", "0", "0", "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ComputeProjection(d(tt.assets), d(tt.debts), d(tt.sellNowIn))
			assertDecimal(t, tt.assetsPost, p.AssetsPost)
			assertDecimal(t, tt.negatives, p.NegativesPost)
			assertDecimal(t, tt.cushion, p.CushionPost)
			assert.False(t, p.DebtAbs.IsNegative())
		})
	}
}
