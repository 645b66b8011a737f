package analyzer

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/specwright/takeoff-cli/internal/model"
	"github.com/specwright/takeoff-cli/internal/plugin"
)

// Architectural extracts wall assemblies, doors, windows, and finish data
// from specification text.
type Architectural struct{}

var architecturalSchema = map[string]model.FieldType{
	"walls":    model.FieldList,
	"doors":    model.FieldObject,
	"windows":  model.FieldObject,
	"finishes": model.FieldObject,
}

func (Architectural) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Key:         "architectural.walls_analysis",
		Name:        "Architectural Walls Analyzer",
		Description: "Extracts wall assembly, door, and window data from specification text.",
		Trade:       model.TradeArchitectural,
		Price:       99.0,
		Specificity: 1,
		Schema:      architecturalSchema,
	}
}

var (
	fireRatingRe = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)[- ](?:hr|hour)[- ]*(?:fire[- ])?rat(?:ed|ing)`)
	studRe       = regexp.MustCompile(`(?i)([\d/.\s-]+(?:"|''|in\.?|inch(?:es)?|mm)?)\s*(?:metal |wood )?studs?\b`)
	gypLayersRe  = regexp.MustCompile(`(?i)\b(one|two|three|\d)\s+layers?\s+(?:of\s+)?(?:gypsum|gyp\.?\s?board|drywall)`)
	doorsRe      = regexp.MustCompile(`(?i)\b([\d,]+)\s+(?:hollow metal |wood |aluminum )?doors?\b`)
	windowsRe    = regexp.MustCompile(`(?i)\b([\d,]+)\s+(?:aluminum |vinyl )?windows?\b`)
	flooringRe   = regexp.MustCompile(`(?i)\b(carpet tile|carpet|polished concrete|vct|lvt|ceramic tile|epoxy)\b`)
)

// Analyze extracts the architectural fields present in text. Stud sizes
// normalize to millimeters; unresolvable sizes flag ambiguous_unit.
func (a Architectural) Analyze(ctx context.Context, text string) (*model.ExtractionRecord, error) {
	key := a.Descriptor().Key
	fields := model.Fields{}
	var flags []model.FieldFlag

	if walls, flag := extractWalls(text); len(walls) > 0 {
		fields["walls"] = walls
		if flag != nil {
			flags = append(flags, *flag)
		}
	}

	if m := doorsRe.FindStringSubmatch(text); m != nil {
		if qty, ok := parseNumber(m[1]); ok {
			fields["doors"] = model.Fields{"quantity": qty}
		}
	}
	if m := windowsRe.FindStringSubmatch(text); m != nil {
		if qty, ok := parseNumber(m[1]); ok {
			fields["windows"] = model.Fields{"quantity": qty}
		}
	}
	if m := flooringRe.FindStringSubmatch(text); m != nil {
		fields["finishes"] = model.Fields{"flooring": strings.ToLower(m[1])}
	}

	if len(fields) == 0 {
		return nil, plugin.Failf(key, "no architectural content recognized")
	}
	return newRecord(key, len(architecturalSchema), fields, flags), nil
}

func extractWalls(text string) ([]model.Fields, *model.FieldFlag) {
	line := findLine(text, "wall")
	if line == "" && findLine(text, "partition") != "" {
		line = findLine(text, "partition")
	}
	if line == "" {
		return nil, nil
	}
	wall := model.Fields{"type": "partition"}
	var flag *model.FieldFlag
	if m := fireRatingRe.FindStringSubmatch(line); m != nil {
		if hr, ok := parseNumber(m[1]); ok {
			wall["fire_rating_hr"] = hr
		}
	}
	if m := studRe.FindStringSubmatch(line); m != nil {
		raw := strings.TrimSpace(m[1])
		if mm, ok := ParseLengthMM(raw); ok {
			wall["stud_size_mm"] = math.Round(mm*10) / 10
		} else if raw != "" {
			flag = &model.FieldFlag{Field: "walls.stud_size", Kind: model.FlagAmbiguousUnit, Detail: raw}
		}
	}
	if m := gypLayersRe.FindStringSubmatch(line); m != nil {
		if n, ok := parseCount(m[1]); ok {
			wall["gypsum_layers"] = float64(n)
		}
	}
	if len(wall) == 1 && flag == nil {
		return nil, nil
	}
	return []model.Fields{wall}, flag
}
