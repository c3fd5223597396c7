package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
)

// SnapshotGenerator writes balance, usage, movement and rate CSV files for
// one planning scenario
type SnapshotGenerator struct {
	Seed      int64
	OutputDir string
	AsOf      time.Time

	rng *rand.Rand
}

// cardTemplate describes one generated card
type cardTemplate struct {
	ID      string
	Bank    string
	Label   string
	UsedOut decimal.Decimal
	Balance decimal.Decimal
}

func main() {
	var (
		outputDir = flag.String("output-dir", "generated", "Output directory for scenario directories")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "Random seed for reproducible generation")
		scenario  = flag.String("scenario", "all", "Scenario to generate: all, covered, shortfall, wallet, no-cards, random")
		asOf      = flag.String("as-of", "2024-03-20", "Planning date the movements lead up to (YYYY-MM-DD)")
		cards     = flag.Int("cards", 12, "Number of cards for the random scenario")
	)
	flag.Parse()

	at, err := time.Parse("2006-01-02", *asOf)
	if err != nil {
		log.Fatalf("Invalid as-of date: %v", err)
	}

	generator := &SnapshotGenerator{
		Seed:      *seed,
		OutputDir: *outputDir,
		AsOf:      at,
		rng:       rand.New(rand.NewSource(*seed)),
	}

	switch *scenario {
	case "covered":
		generator.GenerateCoveredScenario()
	case "shortfall":
		generator.GenerateShortfallScenario()
	case "wallet":
		generator.GenerateWalletScenario()
	case "no-cards":
		generator.GenerateNoCardsScenario()
	case "random":
		generator.GenerateRandomScenario(*cards)
	case "all":
		generator.GenerateAllScenarios(*cards)
	default:
		log.Fatalf("Unknown scenario: %s", *scenario)
	}

	fmt.Printf("Generated scenarios in %s\n", *outputDir)
	fmt.Printf("Seed used: %d\n", *seed)
}

// GenerateAllScenarios generates all predefined scenarios
func (sg *SnapshotGenerator) GenerateAllScenarios(cards int) {
	fmt.Println("Generating all scenarios...")
	sg.GenerateCoveredScenario()
	sg.GenerateShortfallScenario()
	sg.GenerateWalletScenario()
	sg.GenerateNoCardsScenario()
	sg.GenerateRandomScenario(cards)
}

// GenerateCoveredScenario has enough foreign inventory to restore the cushion
// today
func (sg *SnapshotGenerator) GenerateCoveredScenario() {
	fmt.Println("Generating covered scenario...")

	balances := [][]string{
		{"moneda", "banco", "titular", "etiqueta", "monto", "valor_unitario"},
		{"CUP", "BPA", "Ana", "Nomina", "100000", "1"},
		{"CUP", "METRO", "Ana", "Credito vivienda", "-80000", "1"},
		{"USD", "", "Ana", "efectivo", "400", "1"},
		{"CUP", "BANDEC", "Luis", "le debe Pedro", "15000", "1"},
	}
	cards := []cardTemplate{
		{ID: "9204129900001111", Bank: "BANDEC", Label: "Nomina", UsedOut: decimal.NewFromInt(20000), Balance: decimal.NewFromInt(10000)},
		{ID: "9205129900002222", Bank: "BPA", Label: "Ahorro", UsedOut: decimal.NewFromInt(125000), Balance: decimal.Zero},
	}
	sg.writeScenario("covered", balances, cards)
}

// GenerateShortfallScenario cannot restore the cushion with today's sale
func (sg *SnapshotGenerator) GenerateShortfallScenario() {
	fmt.Println("Generating shortfall scenario...")

	balances := [][]string{
		{"moneda", "banco", "titular", "etiqueta", "monto", "valor_unitario"},
		{"CUP", "BANDEC", "Ana", "Nomina", "10000", "1"},
		{"CUP", "BPA", "Ana", "Tarjeta", "-40000", "1"},
		{"USD", "", "Ana", "efectivo", "100", "1"},
		{"MLC", "BANDEC", "Ana", "MLC", "20", "1"},
		{"EUR", "", "Ana", "viaje", "50", "1"},
	}
	cards := []cardTemplate{
		{ID: "9204129900003333", Bank: "BANDEC", Label: "Nomina", UsedOut: decimal.NewFromInt(110000), Balance: decimal.NewFromInt(10000)},
		{ID: "9226129900004444", Bank: "METRO", Label: "Gastos", UsedOut: decimal.NewFromInt(120000), Balance: decimal.Zero},
	}
	sg.writeScenario("shortfall", balances, cards)
}

// GenerateWalletScenario exhausts the limited cards so the unlimited wallet
// receives the rest
func (sg *SnapshotGenerator) GenerateWalletScenario() {
	fmt.Println("Generating wallet scenario...")

	balances := [][]string{
		{"moneda", "banco", "titular", "etiqueta", "monto", "valor_unitario"},
		{"CUP", "BANDEC", "Ana", "Nomina", "10000", "1"},
		{"USD", "", "Ana", "efectivo", "600", "1"},
	}
	cards := []cardTemplate{
		{ID: "9226129900005555", Bank: "METRO", Label: "Gastos", UsedOut: decimal.NewFromInt(100000), Balance: decimal.Zero},
		{ID: "9205129900006666", Bank: "BPA", Label: "Monedero", UsedOut: decimal.Zero, Balance: decimal.Zero},
	}
	sg.writeScenario("wallet", balances, cards)
}

// GenerateNoCardsScenario leaves every sale proceed unplaced
func (sg *SnapshotGenerator) GenerateNoCardsScenario() {
	fmt.Println("Generating no-cards scenario...")

	balances := [][]string{
		{"moneda", "banco", "titular", "etiqueta", "monto", "valor_unitario"},
		{"USD", "", "Ana", "efectivo", "1000", "1"},
	}
	sg.writeScenario("no_cards", balances, nil)
}

// GenerateRandomScenario creates a seeded snapshot with count cards
func (sg *SnapshotGenerator) GenerateRandomScenario(count int) {
	fmt.Printf("Generating random scenario with %d cards...\n", count)

	banks := []string{"BANDEC", "BPA", "METRO", "Metropolitano", "Banco Popular"}
	labels := []string{"Nomina", "Ahorro", "Gastos", "Monedero", "Negocio"}
	owners := []string{"Ana", "Luis", "Marta", "Jose"}

	balances := [][]string{
		{"moneda", "banco", "titular", "etiqueta", "monto", "valor_unitario"},
	}
	for i := 0; i < count; i++ {
		amount := sg.amount(-60000, 90000)
		balances = append(balances, []string{
			"CUP",
			banks[sg.rng.Intn(len(banks))],
			owners[sg.rng.Intn(len(owners))],
			labels[sg.rng.Intn(len(labels))],
			amount.String(),
			"1",
		})
	}
	for _, code := range []string{"USD", "MLC"} {
		balances = append(balances, []string{code, "", owners[0], "efectivo", sg.amount(0, 800).String(), "1"})
	}
	// An unreadable amount exercises the coercion warning
	balances = append(balances, []string{"CUP", "BPA", owners[1], "Ajuste", "n/a", "1"})

	cards := make([]cardTemplate, 0, count)
	for i := 0; i < count; i++ {
		cards = append(cards, cardTemplate{
			ID:      fmt.Sprintf("92%02d%012d", 4+sg.rng.Intn(30), sg.rng.Int63n(1e12)),
			Bank:    banks[sg.rng.Intn(len(banks))],
			Label:   labels[sg.rng.Intn(len(labels))],
			UsedOut: sg.amount(0, 150000),
			Balance: sg.amount(0, 50000),
		})
	}
	sg.writeScenario("random", balances, cards)
}

// amount returns a whole amount in [min, max)
func (sg *SnapshotGenerator) amount(min, max int64) decimal.Decimal {
	return decimal.NewFromInt(min + sg.rng.Int63n(max-min))
}

// writeScenario writes the four CSV files of a scenario. Movements are built
// so the month's outflows add up to each card's UsedOut and every movement
// adds up to its Balance.
func (sg *SnapshotGenerator) writeScenario(name string, balances [][]string, cards []cardTemplate) {
	dir := filepath.Join(sg.OutputDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("Failed to create %s: %v", dir, err)
		return
	}

	monthStart := time.Date(sg.AsOf.Year(), sg.AsOf.Month(), 1, 9, 0, 0, 0, time.UTC)
	lastMonth := monthStart.AddDate(0, -1, 5)

	usage := [][]string{{"tarjeta", "banco", "etiqueta", "usado", "saldo_actual"}}
	movements := [][]string{{"tarjeta", "banco", "moneda", "etiqueta", "monto", "fecha"}}

	for _, card := range cards {
		usage = append(usage, []string{card.ID, card.Bank, card.Label, card.UsedOut.String(), card.Balance.String()})

		// Opening deposit last month so the balance works out
		opening := card.Balance.Add(card.UsedOut)
		if !opening.IsZero() {
			movements = append(movements, []string{card.ID, card.Bank, "CUP", card.Label, opening.String(), lastMonth.Format("2006-01-02 15:04:05")})
		}

		// Split this month's outflow into a few withdrawals
		remaining := card.UsedOut
		days := int(sg.AsOf.Sub(monthStart).Hours()/24) + 1
		for remaining.IsPositive() {
			part := remaining
			if remaining.GreaterThan(decimal.NewFromInt(10000)) && sg.rng.Intn(3) > 0 {
				part = remaining.Div(decimal.NewFromInt(2)).Floor()
			}
			at := monthStart.AddDate(0, 0, sg.rng.Intn(days))
			movements = append(movements, []string{card.ID, card.Bank, "CUP", card.Label, part.Neg().String(), at.Format("2006-01-02 15:04:05")})
			remaining = remaining.Sub(part)
		}
	}

	rates := [][]string{
		{"moneda", "tipo", "tasa", "fecha"},
		{"USD", "compra", sg.amount(300, 340).String(), sg.AsOf.AddDate(0, 0, -7).Format("2006-01-02")},
		{"USD", "compra", sg.amount(300, 340).String(), sg.AsOf.AddDate(0, 0, -1).Format("2006-01-02")},
		{"USD", "venta", sg.amount(340, 380).String(), sg.AsOf.AddDate(0, 0, -1).Format("2006-01-02")},
	}

	sg.writeCSV(dir, "balances.csv", balances)
	sg.writeCSV(dir, "usage.csv", usage)
	sg.writeCSV(dir, "movements.csv", movements)
	sg.writeCSV(dir, "rates.csv", rates)
}

// writeCSV is a helper function to write CSV data
func (sg *SnapshotGenerator) writeCSV(dir, filename string, data [][]string) {
	path := filepath.Join(dir, filename)

	file, err := os.Create(path)
	if err != nil {
		log.Printf("Failed to create %s: %v", path, err)
		return
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	for _, record := range data {
		if err := writer.Write(record); err != nil {
			log.Printf("Failed to write record to %s: %v", path, err)
			return
		}
	}

	fmt.Printf("  Created %s with %d records\n", path, len(data)-1) // -1 for header
}
