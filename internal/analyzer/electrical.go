package analyzer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/specwright/takeoff-cli/internal/model"
	"github.com/specwright/takeoff-cli/internal/plugin"
)

// Electrical extracts electrical system data: service characteristics,
// distribution equipment, lighting, receptacles, low voltage, and
// emergency power.
type Electrical struct{}

var electricalSchema = map[string]model.FieldType{
	"electrical_service": model.FieldObject,
	"distribution":       model.FieldList,
	"lighting":           model.FieldList,
	"power":              model.FieldObject,
	"low_voltage":        model.FieldObject,
	"emergency_power":    model.FieldObject,
}

func (Electrical) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Key:         "mep.electrical_systems",
		Name:        "Electrical Systems Estimator",
		Description: "Extracts structured electrical system data from specification text.",
		Trade:       model.TradeMEP,
		Price:       199.0,
		Specificity: 3,
		Schema:      electricalSchema,
	}
}

var (
	ampsRe       = regexp.MustCompile(`(?i)\b([\d,]{2,5})\s*A(?:mps?)?\b`)
	voltsRe      = regexp.MustCompile(`(?i)\b(\d{3,4})\s*V\b`)
	phaseRe      = regexp.MustCompile(`(?i)\b(\d)\s*[- ]?phase\b`)
	singlePhRe   = regexp.MustCompile(`(?i)\bsingle[- ]phase\b`)
	wireRe       = regexp.MustCompile(`(?i)\b(\d)\s*[- ]?wire\b`)
	panelRe      = regexp.MustCompile(`(?i)\bpanel\s+([A-Z]{1,5}-?\d+)`)
	switchgearRe = regexp.MustCompile(`(?i)\bswitchgear\b`)
	lightTypeRe  = regexp.MustCompile(`(?i)\b(LED|fluorescent|incandescent|HID|high[- ]bay)\b`)
	lightCtlRe   = regexp.MustCompile(`(?i)\b(dimming|occupancy|daylight)\b`)
	fixtureQtyRe = regexp.MustCompile(`(?i)(?:total of\s+)?([\d,]+)\s+fixtures?\b`)
	cablingRe    = regexp.MustCompile(`(?i)\bCat\s?(\d[ae]?)\b`)
	genCapRe     = regexp.MustCompile(`(?i)\b([\d,]+(?:\.\d+)?)\s*(kW|kVA|MW|hp)\b`)
	genFuelRe    = regexp.MustCompile(`(?i)\b(diesel|natural gas|propane)\b`)
)

// Analyze extracts the electrical fields present in text. Quantities keep
// their domain units in named fields; power values normalize to kW.
func (e Electrical) Analyze(ctx context.Context, text string) (*model.ExtractionRecord, error) {
	key := e.Descriptor().Key
	fields := model.Fields{}
	var flags []model.FieldFlag

	if svc := extractService(text); svc != nil {
		fields["electrical_service"] = svc
	}

	if dist := extractDistribution(text); len(dist) > 0 {
		fields["distribution"] = dist
	}

	if lighting := extractLighting(text); len(lighting) > 0 {
		fields["lighting"] = lighting
	}

	lower := strings.ToLower(text)
	power := model.Fields{}
	if strings.Contains(lower, "gfci") {
		power["gfci_receptacles"] = true
	}
	if strings.Contains(lower, "receptacle") {
		power["receptacles"] = true
	}
	if len(power) > 0 {
		fields["power"] = power
	}

	lv := model.Fields{}
	if m := cablingRe.FindStringSubmatch(text); m != nil {
		lv["data_cabling"] = strings.ToLower("cat" + m[1])
	}
	if strings.Contains(lower, "fire alarm") {
		lv["fire_alarm"] = true
	}
	if strings.Contains(lower, "security") {
		lv["security"] = true
	}
	if len(lv) > 0 {
		fields["low_voltage"] = lv
	}

	if gen, flag := extractGenerator(text); gen != nil {
		fields["emergency_power"] = gen
		if flag != nil {
			flags = append(flags, *flag)
		}
	}

	if len(fields) == 0 {
		return nil, plugin.Failf(key, "no electrical content recognized")
	}
	return newRecord(key, len(electricalSchema), fields, flags), nil
}

// extractService reads the service description, preferring the line that
// names the service over stray ampacity mentions elsewhere.
func extractService(text string) model.Fields {
	scope := findLine(text, "service")
	if scope == "" {
		scope = text
	}

	svc := model.Fields{}
	if m := ampsRe.FindStringSubmatch(scope); m != nil {
		if amps, ok := parseNumber(m[1]); ok {
			svc["size"] = fmt.Sprintf("%dA", int(amps))
			svc["amps"] = amps
		}
	}
	if m := voltsRe.FindStringSubmatch(scope); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			svc["voltage"] = v
		}
	}
	if singlePhRe.MatchString(scope) {
		svc["phases"] = float64(1)
	} else if m := phaseRe.FindStringSubmatch(scope); m != nil {
		if ph, ok := parseNumber(m[1]); ok {
			svc["phases"] = ph
		}
	}
	if m := wireRe.FindStringSubmatch(scope); m != nil {
		if w, ok := parseNumber(m[1]); ok {
			svc["wires"] = w
		}
	}
	if len(svc) == 0 {
		return nil
	}
	return svc
}

func extractDistribution(text string) []model.Fields {
	var out []model.Fields
	seen := map[string]bool{}
	for _, line := range strings.Split(text, "\n") {
		for _, m := range panelRe.FindAllStringSubmatch(line, -1) {
			tag := strings.ToUpper(m[1])
			if seen[tag] {
				continue
			}
			seen[tag] = true
			panel := model.Fields{"type": "panel", "tag": tag}
			if am := ampsRe.FindStringSubmatch(line); am != nil {
				if amps, ok := parseNumber(am[1]); ok {
					panel["rating"] = fmt.Sprintf("%dA", int(amps))
				}
			}
			out = append(out, panel)
		}
		if switchgearRe.MatchString(line) {
			if !seen["switchgear"] {
				seen["switchgear"] = true
				out = append(out, model.Fields{"type": "switchgear"})
			}
		}
	}
	return out
}

func extractLighting(text string) []model.Fields {
	line := findLine(text, "lighting")
	if line == "" {
		return nil
	}
	fixture := model.Fields{}
	if m := lightTypeRe.FindStringSubmatch(line); m != nil {
		fixture["type"] = strings.ToUpper(m[1])
	}
	if m := lightCtlRe.FindStringSubmatch(line); m != nil {
		fixture["control"] = strings.ToLower(m[1])
	}
	if m := fixtureQtyRe.FindStringSubmatch(line); m != nil {
		if q, ok := parseNumber(m[1]); ok {
			fixture["quantity"] = q
		}
	}
	if len(fixture) == 0 {
		return nil
	}
	return []model.Fields{fixture}
}

// extractGenerator reads emergency power. kVA ratings are not convertible
// to kW without a power factor, so they flag ambiguous_unit instead.
func extractGenerator(text string) (model.Fields, *model.FieldFlag) {
	line := findLine(text, "generator")
	if line == "" {
		return nil, nil
	}
	gen := model.Fields{"type": "generator"}
	var flag *model.FieldFlag
	if m := genCapRe.FindStringSubmatch(line); m != nil {
		raw := m[1] + " " + m[2]
		if strings.EqualFold(m[2], "kva") {
			flag = &model.FieldFlag{Field: "emergency_power", Kind: model.FlagAmbiguousUnit, Detail: raw}
		} else if kw, ok := ParsePowerKW(raw); ok {
			gen["capacity_kw"] = kw
		}
	}
	if m := genFuelRe.FindStringSubmatch(line); m != nil {
		gen["fuel"] = strings.ToLower(m[1])
	}
	return gen, flag
}

// findLine returns the first line containing the keyword, case-insensitive.
func findLine(text, keyword string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(strings.ToLower(line), keyword) {
			return line
		}
	}
	return ""
}
