package analyzer

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/specwright/takeoff-cli/internal/model"
	"github.com/specwright/takeoff-cli/internal/plugin"
)

// Structural extracts framing, foundation, and concrete data from
// specification text.
type Structural struct{}

var structuralSchema = map[string]model.FieldType{
	"framing":    model.FieldObject,
	"foundation": model.FieldObject,
	"concrete":   model.FieldObject,
	"steel":      model.FieldObject,
}

func (Structural) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Key:         "structural.framing_analysis",
		Name:        "Structural Framing Analyzer",
		Description: "Extracts structural framing, foundation, and concrete data from specification text.",
		Trade:       model.TradeStructural,
		Price:       349.0,
		Specificity: 2,
		Schema:      structuralSchema,
	}
}

var (
	framingMatRe  = regexp.MustCompile(`(?i)\b(structural steel|steel|wood|timber|metal stud|cold[- ]formed)\b`)
	steelShapeRe  = regexp.MustCompile(`\b(W\d{1,2}x\d{1,3}|HSS\d+x\d+(?:x\d+)?)\b`)
	spacingRe     = regexp.MustCompile(`(?i)([\d/.\s-]+(?:"|''|in\.?|inch(?:es)?|mm)?)\s*(?:o\.?c\.?\b|on center)`)
	psiRe         = regexp.MustCompile(`(?i)\b([\d,]+)\s*psi\b`)
	rebarRe       = regexp.MustCompile(`(?i)#(\d{1,2})\s*(?:rebar|bars?)`)
	foundationRe  = regexp.MustCompile(`(?i)\b(spread footings?|mat slab|slab[- ]on[- ]grade|drilled piers?|driven piles?|caissons?)\b`)
)

// Analyze extracts the structural fields present in text. Member spacing
// normalizes to millimeters; concrete strength keeps psi as a named field.
func (s Structural) Analyze(ctx context.Context, text string) (*model.ExtractionRecord, error) {
	key := s.Descriptor().Key
	fields := model.Fields{}
	var flags []model.FieldFlag

	if fr, flag := extractFraming(text); fr != nil {
		fields["framing"] = fr
		if flag != nil {
			flags = append(flags, *flag)
		}
	}

	if m := foundationRe.FindStringSubmatch(text); m != nil {
		fields["foundation"] = model.Fields{
			"type": strings.ReplaceAll(strings.ToLower(m[1]), " ", "_"),
		}
	}

	if conc := extractConcrete(text); conc != nil {
		fields["concrete"] = conc
	}

	if shapes := steelShapeRe.FindAllString(text, -1); len(shapes) > 0 {
		fields["steel"] = model.Fields{"shapes": dedupeStrings(shapes)}
	}

	if len(fields) == 0 {
		return nil, plugin.Failf(key, "no structural content recognized")
	}
	return newRecord(key, len(structuralSchema), fields, flags), nil
}

func extractFraming(text string) (model.Fields, *model.FieldFlag) {
	line := findLine(text, "framing")
	if line == "" {
		line = findLine(text, "joist")
	}
	if line == "" {
		return nil, nil
	}
	fr := model.Fields{}
	var flag *model.FieldFlag
	if m := framingMatRe.FindStringSubmatch(line); m != nil {
		fr["material"] = strings.ToLower(m[1])
	}
	if m := spacingRe.FindStringSubmatch(line); m != nil {
		raw := strings.TrimSpace(m[1])
		if mm, ok := ParseLengthMM(raw); ok {
			fr["spacing_mm"] = math.Round(mm*10) / 10
		} else if raw != "" {
			flag = &model.FieldFlag{Field: "framing.spacing", Kind: model.FlagAmbiguousUnit, Detail: raw}
		}
	}
	if len(fr) == 0 {
		return nil, nil
	}
	return fr, flag
}

func extractConcrete(text string) model.Fields {
	line := findLine(text, "concrete")
	if line == "" {
		return nil
	}
	conc := model.Fields{}
	if m := psiRe.FindStringSubmatch(line); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			conc["strength_psi"] = v
		}
	}
	if m := rebarRe.FindStringSubmatch(line); m != nil {
		conc["rebar"] = "#" + m[1]
	}
	if len(conc) == 0 {
		return nil
	}
	return conc
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
