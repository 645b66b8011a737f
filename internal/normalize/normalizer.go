// Package normalize folds heterogeneous extraction records into canonical
// elements. Merging is deterministic and idempotent: the same record set
// always yields the same element set.
package normalize

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/specwright/takeoff-cli/internal/model"
	"github.com/specwright/takeoff-cli/internal/plugin"
)

var fold = cases.Fold()

// Normalizer merges extraction records into elements using plugin
// specificity and record confidence as the precedence order.
type Normalizer struct {
	specificity map[string]int
}

// New creates a Normalizer. Plugin specificity is read from the registry's
// descriptors: a more specific trade plugin overrides a generic one.
func New(reg *plugin.Registry) *Normalizer {
	spec := make(map[string]int)
	for _, d := range reg.Descriptors() {
		spec[d.Key] = d.Specificity
	}
	return &Normalizer{specificity: spec}
}

// candidate is one physical element claimed by one record field.
type candidate struct {
	kind        string
	quantity    float64
	unit        string
	attrs       map[string]string
	pluginKey   string
	recordID    string
	confidence  float64
	specificity int
}

// Normalize folds the records for one document into deduplicated
// elements, ordered by identity key. Conflicting attribute values of
// equal precedence are flagged for human review, never silently dropped.
func (n *Normalizer) Normalize(docID string, records []*model.ExtractionRecord) []model.Element {
	var cands []candidate
	for _, rec := range records {
		if rec == nil || rec.Superseded {
			continue
		}
		cands = append(cands, n.candidates(rec)...)
	}

	// Group by identity key.
	groups := make(map[string][]candidate)
	var keys []string
	for _, c := range cands {
		probe := model.Element{Kind: c.kind, Attributes: c.attrs}
		key := probe.IdentityKey()
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], c)
	}
	sort.Strings(keys)

	elements := make([]model.Element, 0, len(keys))
	for _, key := range keys {
		elements = append(elements, mergeGroup(docID, groups[key]))
	}
	return elements
}

// candidates expands a record's fields into element candidates. List
// items and objects become one candidate each; the item's own "type"
// names the kind, falling back to the field name.
func (n *Normalizer) candidates(rec *model.ExtractionRecord) []candidate {
	fieldNames := make([]string, 0, len(rec.Fields))
	for name := range rec.Fields {
		fieldNames = append(fieldNames, name)
	}
	sort.Strings(fieldNames)

	var out []candidate
	for _, name := range fieldNames {
		switch v := rec.Fields[name].(type) {
		case model.Fields:
			out = append(out, n.candidate(rec, name, v))
		case []model.Fields:
			for _, item := range v {
				out = append(out, n.candidate(rec, name, item))
			}
		case []any:
			for _, raw := range v {
				if item, ok := raw.(model.Fields); ok {
					out = append(out, n.candidate(rec, name, item))
				}
			}
		}
	}
	return out
}

func (n *Normalizer) candidate(rec *model.ExtractionRecord, field string, item model.Fields) candidate {
	c := candidate{
		kind:        field,
		quantity:    1,
		attrs:       make(map[string]string),
		pluginKey:   rec.PluginKey,
		recordID:    rec.ID,
		confidence:  rec.Confidence,
		specificity: n.specificity[rec.PluginKey],
	}
	for k, v := range item {
		switch k {
		case "type":
			if s, ok := v.(string); ok && s != "" {
				c.kind = s
			}
		case "quantity":
			if q, ok := v.(float64); ok && q > 0 {
				c.quantity = q
			}
		case "unit":
			if s, ok := v.(string); ok {
				c.unit = s
			}
		default:
			c.attrs[k] = attrString(v)
		}
	}
	return c
}

// mergeGroup folds candidates describing the same physical element.
// Precedence per attribute: higher plugin specificity, then higher
// confidence; an exact tie with conflicting values is flagged.
func mergeGroup(docID string, group []candidate) model.Element {
	// Deterministic processing order: strongest first.
	sort.SliceStable(group, func(i, j int) bool {
		if group[i].specificity != group[j].specificity {
			return group[i].specificity > group[j].specificity
		}
		if group[i].confidence != group[j].confidence {
			return group[i].confidence > group[j].confidence
		}
		return group[i].pluginKey < group[j].pluginKey
	})

	winner := group[0]
	el := model.Element{
		DocumentID: docID,
		Kind:       winner.kind,
		Quantity:   winner.quantity,
		Unit:       winner.unit,
		Attributes: make(map[string]string, len(winner.attrs)),
		Confidence: winner.confidence,
	}

	type attrOwner struct {
		candidate
		value string
	}
	owners := make(map[string]attrOwner)
	recordIDs := make(map[string]bool)

	for _, c := range group {
		if c.recordID != "" {
			recordIDs[c.recordID] = true
		}
		for k, v := range c.attrs {
			cur, exists := owners[k]
			if !exists {
				owners[k] = attrOwner{candidate: c, value: v}
				continue
			}
			if fold.String(cur.value) == fold.String(v) {
				continue
			}
			// Equal precedence with different values: keep the held
			// value but surface the conflict for review.
			if cur.specificity == c.specificity && cur.confidence == c.confidence {
				el.ReviewFlags = append(el.ReviewFlags, model.ReviewFlag{
					Attribute: k,
					Values:    []string{cur.value, v},
					Plugins:   []string{cur.pluginKey, c.pluginKey},
				})
				zap.L().Warn("normalize: attribute conflict flagged for review",
					zap.String("kind", el.Kind),
					zap.String("attribute", k),
					zap.String("plugin_a", cur.pluginKey),
					zap.String("plugin_b", c.pluginKey),
				)
			}
			// Sorted strongest-first, so the holder always outranks or
			// ties later candidates; the held value stands.
		}
	}

	for k, o := range owners {
		el.Attributes[k] = o.value
	}
	for id := range recordIDs {
		el.SourceRecordIDs = append(el.SourceRecordIDs, id)
	}
	sort.Strings(el.SourceRecordIDs)
	sort.Slice(el.ReviewFlags, func(i, j int) bool {
		return el.ReviewFlags[i].Attribute < el.ReviewFlags[j].Attribute
	})
	return el
}

// attrString canonicalizes a field value for attribute storage.
func attrString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []string:
		return strings.Join(t, ",")
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, attrString(item))
		}
		return strings.Join(parts, ",")
	case model.Fields:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+":"+attrString(t[k]))
		}
		return strings.Join(parts, ";")
	default:
		return fmt.Sprintf("%v", t)
	}
}
