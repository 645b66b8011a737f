package analyzer

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/specwright/takeoff-cli/internal/model"
	"github.com/specwright/takeoff-cli/internal/plugin"
)

// HVAC extracts heating, cooling, air handling, ventilation, and building
// control data from specification text.
type HVAC struct{}

var hvacSchema = map[string]model.FieldType{
	"heating_systems": model.FieldList,
	"cooling_systems": model.FieldList,
	"air_handling":    model.FieldList,
	"ventilation":     model.FieldObject,
	"ductwork":        model.FieldObject,
	"control_systems": model.FieldObject,
}

func (HVAC) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Key:         "mep.hvac_systems",
		Name:        "HVAC & Mechanical Estimator",
		Description: "Extracts structured HVAC and mechanical system data from specification text.",
		Trade:       model.TradeMEP,
		Price:       249.0,
		Specificity: 3,
		Schema:      hvacSchema,
	}
}

var (
	qtyPrefixRe   = regexp.MustCompile(`(?i)\((\d+)\)|\b(one|two|three|four|five|six|seven|eight|nine|ten)\b`)
	tonsRe        = regexp.MustCompile(`(?i)\b([\d,]+(?:\.\d+)?)[- ]tons?\b`)
	mbhRe         = regexp.MustCompile(`(?i)\b([\d,]+(?:\.\d+)?)\s*MBH\b`)
	cfmRe         = regexp.MustCompile(`(?i)\b([\d,]+)\s*CFM\b`)
	refrigerantRe = regexp.MustCompile(`(?i)\bR-?(\d{2,4}[A-Za-z]?)\b`)
	cooledRe      = regexp.MustCompile(`(?i)\b(air|water)[- ]cooled\b`)
	protocolRe    = regexp.MustCompile(`(?i)\b(BACnet|LonWorks|Modbus|KNX)\b`)
	heatFuelRe    = regexp.MustCompile(`(?i)\b(natural gas|gas|electric|oil|propane)[- ]fired\b`)
	heaterKindRe  = regexp.MustCompile(`(?i)\b(boilers?|furnaces?|heat pumps?)\b`)
	coolerKindRe  = regexp.MustCompile(`(?i)\b(chillers?|cooling towers?|condensers?|rooftop units?|RTUs?)\b`)
	ductMatRe     = regexp.MustCompile(`(?i)\b(galvanized steel|stainless steel|aluminum|fiberglass)\b`)
)

// Analyze extracts the HVAC fields present in text. Heating input
// normalizes to kW; cooling capacity stays in refrigeration tons as a
// named field.
func (h HVAC) Analyze(ctx context.Context, text string) (*model.ExtractionRecord, error) {
	key := h.Descriptor().Key
	fields := model.Fields{}
	var flags []model.FieldFlag

	if heat := extractHeating(text); len(heat) > 0 {
		fields["heating_systems"] = heat
	}
	if cool := extractCooling(text); len(cool) > 0 {
		fields["cooling_systems"] = cool
	}
	if ahu := extractAirHandling(text); len(ahu) > 0 {
		fields["air_handling"] = ahu
	}

	if line := findLine(text, "ventilat"); line != "" {
		vent := model.Fields{}
		if strings.Contains(strings.ToLower(line), "energy recovery") {
			vent["energy_recovery"] = true
		}
		if m := cfmRe.FindStringSubmatch(line); m != nil {
			if v, ok := parseNumber(m[1]); ok {
				vent["airflow_cfm"] = v
			}
		}
		if len(vent) > 0 {
			fields["ventilation"] = vent
		}
	}

	if line := findLine(text, "ductwork"); line != "" {
		duct := model.Fields{}
		if m := ductMatRe.FindStringSubmatch(line); m != nil {
			duct["material"] = strings.ToLower(m[1])
		}
		if strings.Contains(strings.ToLower(line), "insulated") {
			duct["insulated"] = true
		}
		if len(duct) > 0 {
			fields["ductwork"] = duct
		}
	}

	if ctl := extractControls(text); ctl != nil {
		fields["control_systems"] = ctl
	}

	if len(fields) == 0 {
		return nil, plugin.Failf(key, "no hvac content recognized")
	}
	return newRecord(key, len(hvacSchema), fields, flags), nil
}

// extractHeating reads boiler/furnace lines. MBH input converts to kW.
func extractHeating(text string) []model.Fields {
	var out []model.Fields
	for _, line := range strings.Split(text, "\n") {
		km := heaterKindRe.FindStringSubmatch(line)
		if km == nil {
			continue
		}
		sys := model.Fields{"type": heaterKind(km[1])}
		if qty, ok := leadingCount(line); ok {
			sys["quantity"] = float64(qty)
		}
		if m := mbhRe.FindStringSubmatch(line); m != nil {
			if kw, ok := ParsePowerKW(m[1] + " mbh"); ok {
				sys["capacity_kw"] = math.Round(kw*10) / 10
			}
		}
		if m := heatFuelRe.FindStringSubmatch(line); m != nil {
			sys["fuel"] = strings.ToLower(m[1])
		}
		out = append(out, sys)
	}
	return out
}

func extractCooling(text string) []model.Fields {
	var out []model.Fields
	for _, line := range strings.Split(text, "\n") {
		km := coolerKindRe.FindStringSubmatch(line)
		if km == nil {
			continue
		}
		sys := model.Fields{"type": coolerKind(km[1])}
		if qty, ok := leadingCount(line); ok {
			sys["quantity"] = float64(qty)
		}
		if m := tonsRe.FindStringSubmatch(line); m != nil {
			if tons, ok := parseNumber(m[1]); ok {
				sys["capacity_tons"] = tons
			}
		}
		if m := refrigerantRe.FindStringSubmatch(line); m != nil {
			sys["refrigerant"] = "R-" + strings.ToUpper(m[1])
		}
		if m := cooledRe.FindStringSubmatch(line); m != nil {
			sys["condenser"] = strings.ToLower(m[1]) + "-cooled"
		}
		out = append(out, sys)
	}
	return out
}

func extractAirHandling(text string) []model.Fields {
	line := findLine(text, "ahu")
	if line == "" {
		line = findLine(text, "air handl")
	}
	if line == "" {
		return nil
	}
	unit := model.Fields{"type": "ahu"}
	if qty, ok := leadingCount(line); ok {
		unit["quantity"] = float64(qty)
	}
	if m := cfmRe.FindStringSubmatch(line); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			unit["airflow_cfm"] = v
		}
	}
	if strings.Contains(strings.ToLower(line), "vav") {
		unit["distribution"] = "vav"
	}
	return []model.Fields{unit}
}

func extractControls(text string) model.Fields {
	lower := strings.ToLower(text)
	ctl := model.Fields{}
	if strings.Contains(lower, "bms") || strings.Contains(lower, "building automation") || strings.Contains(lower, "ddc") {
		ctl["bms"] = true
	}
	if m := protocolRe.FindStringSubmatch(text); m != nil {
		ctl["protocol"] = canonicalProtocol(m[1])
	}
	if len(ctl) == 0 {
		return nil
	}
	return ctl
}

// leadingCount reads an equipment count written as "(1)", "Two", or a bare
// small integer before the equipment noun.
func leadingCount(line string) (int, bool) {
	m := qtyPrefixRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	for _, g := range m[1:] {
		if g == "" {
			continue
		}
		if n, ok := parseCount(g); ok && n > 0 && n <= 1000 {
			return n, true
		}
	}
	return 0, false
}

func heaterKind(s string) string {
	s = strings.ToLower(s)
	switch {
	case strings.HasPrefix(s, "boiler"):
		return "boiler"
	case strings.HasPrefix(s, "furnace"):
		return "furnace"
	default:
		return "heat_pump"
	}
}

func coolerKind(s string) string {
	s = strings.ToLower(s)
	switch {
	case strings.HasPrefix(s, "chiller"):
		return "chiller"
	case strings.HasPrefix(s, "cooling tower"):
		return "cooling_tower"
	case strings.HasPrefix(s, "condenser"):
		return "condenser"
	default:
		return "rtu"
	}
}

func canonicalProtocol(s string) string {
	switch strings.ToLower(s) {
	case "bacnet":
		return "BACnet"
	case "lonworks":
		return "LonWorks"
	case "modbus":
		return "Modbus"
	default:
		return strings.ToUpper(s)
	}
}
