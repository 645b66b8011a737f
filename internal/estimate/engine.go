// Package estimate prices normalized elements against the rate table.
package estimate

import (
	"math"

	"go.uber.org/zap"

	"github.com/specwright/takeoff-cli/internal/model"
	"github.com/specwright/takeoff-cli/internal/rates"
)

// Line is one priced element. A missing rate produces a zero-priced line
// with NoRateFound set; the engine never fabricates a price.
type Line struct {
	ElementID    string           `json:"element_id"`
	Kind         string           `json:"kind"`
	Quantity     float64          `json:"quantity"`
	Unit         string           `json:"unit,omitempty"`
	MaterialRate float64          `json:"material_rate"`
	LaborRate    float64          `json:"labor_rate"`
	MaterialCost float64          `json:"material_cost"`
	LaborCost    float64          `json:"labor_cost"`
	Total        float64          `json:"total"`
	Resolution   rates.Resolution `json:"resolution"`
	NoRateFound  bool             `json:"no_rate_found,omitempty"`
}

// Estimate aggregates priced lines for a document's element set. Markup
// applies at this level, never per element.
type Estimate struct {
	Lines        []Line             `json:"lines"`
	MaterialCost float64            `json:"material_cost"`
	LaborCost    float64            `json:"labor_cost"`
	Subtotal     float64            `json:"subtotal"`
	OverheadPct  float64            `json:"overhead_pct,omitempty"`
	Overhead     float64            `json:"overhead,omitempty"`
	ProfitPct    float64            `json:"profit_pct,omitempty"`
	Profit       float64            `json:"profit,omitempty"`
	MarkupPct    float64            `json:"markup_pct"`
	Markup       float64            `json:"markup"`
	Total        float64            `json:"total"`
	ByKind       map[string]float64 `json:"by_kind"`
	Confidence   float64            `json:"confidence"`
	Unpriced     int                `json:"unpriced"`
}

// Engine computes costs from the rate table.
type Engine struct {
	table       *rates.Table
	overheadPct float64
	profitPct   float64
}

// NewEngine creates an Engine over the given rate table.
func NewEngine(table *rates.Table) *Engine {
	return &Engine{table: table}
}

// WithOverhead sets contractor overhead and profit percentages, applied to
// the subtotal before quote-level markup. Zero values leave the estimate
// at bare material + labor cost.
func (e *Engine) WithOverhead(overheadPct, profitPct float64) *Engine {
	e.overheadPct = overheadPct
	e.profitPct = profitPct
	return e
}

// PriceElement resolves the element's rate and computes material, labor,
// and line totals. Resolution is deterministic: exact signature, then the
// kind's default signature, else a flagged zero-priced line.
func (e *Engine) PriceElement(el model.Element) Line {
	line := Line{
		ElementID: el.ID,
		Kind:      el.Kind,
		Quantity:  el.Quantity,
		Unit:      el.Unit,
	}

	entry, res := e.table.Resolve(el.Kind, el.AttributeSignature())
	line.Resolution = res
	if res == rates.ResolvedNone {
		line.NoRateFound = true
		zap.L().Debug("estimate: no rate found",
			zap.String("kind", el.Kind),
			zap.String("signature", el.AttributeSignature()),
		)
		return line
	}

	line.MaterialRate = entry.MaterialRate
	line.LaborRate = entry.LaborRate
	if line.Unit == "" {
		line.Unit = entry.Unit
	}
	line.MaterialCost = round2(el.Quantity * entry.MaterialRate)
	line.LaborCost = round2(el.Quantity * entry.LaborRate)
	line.Total = round2(line.MaterialCost + line.LaborCost)
	return line
}

// Run prices every element and aggregates totals with the given markup
// percentage.
func (e *Engine) Run(elements []model.Element, markupPct float64) *Estimate {
	est := &Estimate{
		MarkupPct: markupPct,
		ByKind:    make(map[string]float64),
	}

	var confSum float64
	for _, el := range elements {
		line := e.PriceElement(el)
		est.Lines = append(est.Lines, line)
		est.MaterialCost += line.MaterialCost
		est.LaborCost += line.LaborCost
		est.ByKind[el.Kind] += line.Total
		confSum += el.Confidence
		if line.NoRateFound {
			est.Unpriced++
		}
	}

	est.MaterialCost = round2(est.MaterialCost)
	est.LaborCost = round2(est.LaborCost)
	est.Subtotal = round2(est.MaterialCost + est.LaborCost)
	est.OverheadPct = e.overheadPct
	est.Overhead = round2(est.Subtotal * e.overheadPct / 100)
	est.ProfitPct = e.profitPct
	est.Profit = round2((est.Subtotal + est.Overhead) * e.profitPct / 100)
	base := round2(est.Subtotal + est.Overhead + est.Profit)
	est.Markup = round2(base * markupPct / 100)
	est.Total = round2(base + est.Markup)
	if len(elements) > 0 {
		est.Confidence = math.Round(confSum/float64(len(elements))*100) / 100
	}
	return est
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
