package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Trade is a construction trade category used to scope which analyzer
// plugins apply to a document.
type Trade string

const (
	TradeMEP           Trade = "mep"
	TradeStructural    Trade = "structural"
	TradeArchitectural Trade = "architectural"
)

// ParseTrade converts a user-supplied trade name to a Trade.
func ParseTrade(s string) (Trade, error) {
	switch Trade(strings.ToLower(strings.TrimSpace(s))) {
	case TradeMEP:
		return TradeMEP, nil
	case TradeStructural:
		return TradeStructural, nil
	case TradeArchitectural:
		return TradeArchitectural, nil
	default:
		return "", eris.Errorf("model: unknown trade %q", s)
	}
}

// DocumentStatus tracks a document's progress through analysis.
type DocumentStatus string

const (
	DocStatusUploaded  DocumentStatus = "uploaded"
	DocStatusAnalyzing DocumentStatus = "analyzing"
	DocStatusAnalyzed  DocumentStatus = "analyzed"
	DocStatusPartial   DocumentStatus = "partial"
	DocStatusFailed    DocumentStatus = "failed"
)

// Document is a construction specification document that has already been
// reduced to plain UTF-8 text by the upstream document collaborator.
type Document struct {
	ID         string         `json:"id"`
	ProjectID  string         `json:"project_id,omitempty"`
	OrgID      string         `json:"org_id"`
	Name       string         `json:"name"`
	TradeScope []Trade        `json:"trade_scope,omitempty"`
	Status     DocumentStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
