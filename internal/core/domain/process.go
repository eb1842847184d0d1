package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PartySide string

const (
	PartySideAuthor    PartySide = "author"
	PartySideDefendant PartySide = "defendant"
	PartySideOther     PartySide = "other"
)

// Party is owned by the Process that lists it and has no lifecycle of its own.
type Party struct {
	Name            string    `json:"name"`
	Side            PartySide `json:"side"`
	TaxID           string    `json:"tax_id,omitempty"`
	BarRegistration string    `json:"bar_registration,omitempty"`
	Lawyers         []Lawyer  `json:"lawyers,omitempty"`
}

type Lawyer struct {
	Name            string `json:"name"`
	BarRegistration string `json:"bar_registration,omitempty"`
}

// Process is the canonical legal case, keyed by its normalized case number.
type Process struct {
	CaseNumber       string           `json:"case_number"`
	CourtID          string           `json:"court_id,omitempty"`
	CourtName        string           `json:"court_name,omitempty"`
	DistributionDate *time.Time       `json:"distribution_date,omitempty"`
	Status           string           `json:"status,omitempty"`
	Phase            string           `json:"phase,omitempty"`
	CaseValue        *decimal.Decimal `json:"case_value,omitempty"`
	JudgeName        string           `json:"judge_name,omitempty"`
	Authors          []string         `json:"authors"`
	Defendants       []string         `json:"defendants"`
	Parties          []Party          `json:"parties,omitempty"`
	AssociatedIDs    []string         `json:"associated_ids"`
	Provider         string           `json:"provider"`
	LastUpdate       *time.Time       `json:"last_update,omitempty"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// DisplayCaseNumber returns the case number in its conventional printed form.
func (p Process) DisplayCaseNumber() string {
	return FormatCaseNumber(p.CaseNumber)
}

// EnsureAssociatedID adds id to AssociatedIDs when it is not already present.
func (p *Process) EnsureAssociatedID(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	for _, existing := range p.AssociatedIDs {
		if existing == id {
			return
		}
	}
	p.AssociatedIDs = append(p.AssociatedIDs, id)
}

// Merge folds incoming into p: non-empty incoming fields overwrite, associated
// IDs are unioned and the party lists are replaced only when incoming has any.
func (p *Process) Merge(incoming Process) {
	if incoming.CourtID != "" {
		p.CourtID = incoming.CourtID
	}
	if incoming.CourtName != "" {
		p.CourtName = incoming.CourtName
	}
	if incoming.DistributionDate != nil {
		p.DistributionDate = incoming.DistributionDate
	}
	if incoming.Status != "" {
		p.Status = incoming.Status
	}
	if incoming.Phase != "" {
		p.Phase = incoming.Phase
	}
	if incoming.CaseValue != nil {
		p.CaseValue = incoming.CaseValue
	}
	if incoming.JudgeName != "" {
		p.JudgeName = incoming.JudgeName
	}
	if len(incoming.Authors) > 0 {
		p.Authors = incoming.Authors
	}
	if len(incoming.Defendants) > 0 {
		p.Defendants = incoming.Defendants
	}
	if len(incoming.Parties) > 0 {
		p.Parties = incoming.Parties
	}
	if incoming.Provider != "" {
		p.Provider = incoming.Provider
	}
	if incoming.LastUpdate != nil {
		p.LastUpdate = incoming.LastUpdate
	}
	for _, id := range incoming.AssociatedIDs {
		p.EnsureAssociatedID(id)
	}
	if incoming.UpdatedAt.After(p.UpdatedAt) {
		p.UpdatedAt = incoming.UpdatedAt
	}
}

// PartyNames splits parties into author and defendant name lists.
func PartyNames(parties []Party) (authors, defendants []string) {
	authors = make([]string, 0)
	defendants = make([]string, 0)
	for _, party := range parties {
		switch party.Side {
		case PartySideAuthor:
			authors = append(authors, party.Name)
		case PartySideDefendant:
			defendants = append(defendants, party.Name)
		}
	}
	return authors, defendants
}

// DedupeStrings keeps the first occurrence of every non-empty value.
func DedupeStrings(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
