package analyzer

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/specwright/takeoff-cli/internal/model"
	"github.com/specwright/takeoff-cli/internal/plugin"
)

// Plumbing extracts water supply, sanitary, fixture, and water heating
// data from specification text.
type Plumbing struct{}

var plumbingSchema = map[string]model.FieldType{
	"water_supply":  model.FieldObject,
	"sanitary":      model.FieldObject,
	"fixtures":      model.FieldList,
	"water_heating": model.FieldObject,
}

func (Plumbing) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Key:         "mep.plumbing_systems",
		Name:        "Plumbing Systems Estimator",
		Description: "Extracts structured plumbing system data from specification text.",
		Trade:       model.TradeMEP,
		Price:       199.0,
		Specificity: 3,
		Schema:      plumbingSchema,
	}
}

var (
	pipeMaterialRe = regexp.MustCompile(`(?i)\b(copper|cast iron|pvc|cpvc|pex|galvanized steel)\b`)
	mainSizeRe     = regexp.MustCompile(`(?i)([\d/.\s-]+(?:"|''|in\.?\b|inch\b|mm\b)?)\s*main\b`)
	fixtureRe      = regexp.MustCompile(`(?i)\b([\d,]+)\s+(toilets?|water closets?|urinals?|lavatories|lavs?|sinks?|showers?|drinking fountains?|floor drains?)\b`)
	gallonRe       = regexp.MustCompile(`(?i)\b([\d,]+)[- ]gallon\b`)
	btuRe          = regexp.MustCompile(`(?i)\b([\d,]+)\s*BTU\b`)
	heaterFuelRe   = regexp.MustCompile(`(?i)\b(gas|electric|propane|oil)[- ]fired\b|\belectric\b`)
)

// Analyze extracts the plumbing fields present in text. Pipe sizes
// normalize to millimeters; unparseable sizes flag ambiguous_unit.
func (p Plumbing) Analyze(ctx context.Context, text string) (*model.ExtractionRecord, error) {
	key := p.Descriptor().Key
	fields := model.Fields{}
	var flags []model.FieldFlag

	if ws, flag := extractPiping(text, "domestic water", "water_supply"); ws != nil {
		fields["water_supply"] = ws
		if flag != nil {
			flags = append(flags, *flag)
		}
	}
	if san, flag := extractPiping(text, "sanitary", "sanitary"); san != nil {
		fields["sanitary"] = san
		if flag != nil {
			flags = append(flags, *flag)
		}
	}

	if fixtures := extractFixtures(text); len(fixtures) > 0 {
		fields["fixtures"] = fixtures
	}

	if wh := extractWaterHeater(text); wh != nil {
		fields["water_heating"] = wh
	}

	if len(fields) == 0 {
		return nil, plugin.Failf(key, "no plumbing content recognized")
	}
	return newRecord(key, len(plumbingSchema), fields, flags), nil
}

// extractPiping reads material and main size from the line naming the
// system. A main size without a resolvable length unit is flagged rather
// than guessed.
func extractPiping(text, keyword, field string) (model.Fields, *model.FieldFlag) {
	line := findLine(text, keyword)
	if line == "" {
		return nil, nil
	}
	out := model.Fields{}
	var flag *model.FieldFlag
	if m := pipeMaterialRe.FindStringSubmatch(line); m != nil {
		out["pipe_material"] = strings.ToLower(m[1])
	}
	if m := mainSizeRe.FindStringSubmatch(line); m != nil {
		raw := strings.TrimSpace(m[1])
		if mm, ok := ParseLengthMM(raw); ok {
			out["main_size_mm"] = math.Round(mm*10) / 10
		} else if raw != "" {
			flag = &model.FieldFlag{Field: field + ".main_size", Kind: model.FlagAmbiguousUnit, Detail: raw}
		}
	}
	if strings.Contains(strings.ToLower(line), "recirculation") {
		out["recirculation"] = true
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, flag
}

func extractFixtures(text string) []model.Fields {
	var out []model.Fields
	for _, m := range fixtureRe.FindAllStringSubmatch(text, -1) {
		qty, ok := parseNumber(m[1])
		if !ok {
			continue
		}
		out = append(out, model.Fields{
			"type":     singularFixture(m[2]),
			"quantity": qty,
		})
	}
	return out
}

func extractWaterHeater(text string) model.Fields {
	line := findLine(text, "water heat")
	if line == "" {
		return nil
	}
	wh := model.Fields{"type": "water_heater"}
	if m := gallonRe.FindStringSubmatch(line); m != nil {
		if gal, ok := parseNumber(m[1]); ok {
			wh["capacity_gal"] = gal
		}
	}
	if m := btuRe.FindStringSubmatch(line); m != nil {
		if kw, ok := ParsePowerKW(m[1] + " btu"); ok {
			wh["input_kw"] = math.Round(kw*10) / 10
		}
	}
	if m := heaterFuelRe.FindStringSubmatch(line); m != nil {
		fuel := strings.ToLower(m[1])
		if fuel == "" {
			fuel = "electric"
		}
		wh["fuel"] = fuel
	}
	return wh
}

// singularFixture canonicalizes fixture names to singular lowercase.
func singularFixture(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(s, "lav"):
		return "lavatory"
	case s == "water closets" || s == "water closet":
		return "water_closet"
	case strings.HasPrefix(s, "drinking fountain"):
		return "drinking_fountain"
	case strings.HasPrefix(s, "floor drain"):
		return "floor_drain"
	}
	return strings.TrimSuffix(s, "s")
}
