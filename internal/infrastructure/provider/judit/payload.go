package judit

import (
	"encoding/json"
	"strings"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
	"github.com/kirillkom/legal-search-engine/internal/infrastructure/provider"
)

type searchQuery struct {
	Type string `json:"search_type"`
	Key  string `json:"search_key"`
}

type searchRequest struct {
	Search searchQuery `json:"search"`
}

type requestCreated struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

type requestState struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Error     string `json:"error"`
}

type responsePage struct {
	Page      int            `json:"page"`
	PageCount int            `json:"page_count"`
	AllCount  int            `json:"all_count"`
	PageData  []responseItem `json:"page_data"`
}

type responseItem struct {
	ResponseType string          `json:"response_type"`
	ResponseData lawsuitPayload `json:"response_data"`
}

type trackingRequest struct {
	Recurrence int         `json:"recurrence"`
	Search     searchQuery `json:"search"`
}

type trackingCreated struct {
	TrackingID string `json:"tracking_id"`
}

type lawsuitPayload struct {
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	TribunalAcronym  string          `json:"tribunal_acronym"`
	Courts           []namedPayload  `json:"courts"`
	DistributionDate string          `json:"distribution_date"`
	Status           string          `json:"status"`
	Phase            string          `json:"phase"`
	Judge            string          `json:"judge"`
	Amount           json.RawMessage `json:"amount"`
	Parties          []partyPayload  `json:"parties"`
	LastStep         struct {
		StepDate string `json:"step_date"`
	} `json:"last_step"`
	UpdatedAt string `json:"updated_at"`
}

type namedPayload struct {
	Name string `json:"name"`
}

type documentPayload struct {
	Type     string `json:"document_type"`
	Document string `json:"document"`
}

type partyPayload struct {
	Name       string            `json:"name"`
	Side       string            `json:"side"`
	PersonType string            `json:"person_type"`
	Documents  []documentPayload `json:"documents"`
	Lawyers    []lawyerPayload   `json:"lawyers"`
}

type lawyerPayload struct {
	Name      string            `json:"name"`
	Documents []documentPayload `json:"documents"`
}

func (l lawsuitPayload) toProcess() (domain.Process, bool) {
	caseNumber := domain.NormalizeCaseNumber(l.Code)
	if caseNumber == "" {
		return domain.Process{}, false
	}

	process := domain.Process{
		CaseNumber:       caseNumber,
		CourtID:          strings.TrimSpace(l.TribunalAcronym),
		DistributionDate: provider.ParseDate(l.DistributionDate),
		Status:           strings.TrimSpace(l.Status),
		Phase:            strings.TrimSpace(l.Phase),
		JudgeName:        strings.TrimSpace(l.Judge),
		CaseValue:        provider.ParseAmount(strings.Trim(string(l.Amount), `"`)),
		Provider:         Name,
		AssociatedIDs:    make([]string, 0),
	}
	if len(l.Courts) > 0 {
		process.CourtName = strings.TrimSpace(l.Courts[0].Name)
	}
	if ts := provider.ParseDate(l.LastStep.StepDate); ts != nil {
		process.LastUpdate = ts
	} else {
		process.LastUpdate = provider.ParseDate(l.UpdatedAt)
	}

	for _, raw := range l.Parties {
		party, ok := raw.toParty()
		if !ok {
			continue
		}
		process.Parties = append(process.Parties, party)
		process.EnsureAssociatedID(party.TaxID)
		process.EnsureAssociatedID(party.BarRegistration)
		for _, lawyer := range party.Lawyers {
			process.EnsureAssociatedID(lawyer.BarRegistration)
		}
	}
	process.Authors, process.Defendants = domain.PartyNames(process.Parties)
	return process, true
}

func (p partyPayload) toParty() (domain.Party, bool) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return domain.Party{}, false
	}
	switch strings.ToLower(strings.TrimSpace(p.PersonType)) {
	case "advogado", "lawyer":
		return domain.Party{}, false
	}

	party := domain.Party{
		Name:            name,
		Side:            provider.PartySide(p.Side),
		TaxID:           taxID(p.Documents),
		BarRegistration: barRegistration(p.Documents),
	}
	for _, lawyer := range p.Lawyers {
		lawyerName := strings.TrimSpace(lawyer.Name)
		if lawyerName == "" {
			continue
		}
		party.Lawyers = append(party.Lawyers, domain.Lawyer{
			Name:            lawyerName,
			BarRegistration: barRegistration(lawyer.Documents),
		})
	}
	return party, true
}

func taxID(documents []documentPayload) string {
	for _, doc := range documents {
		switch strings.ToUpper(strings.TrimSpace(doc.Type)) {
		case "CPF", "CNPJ":
			if id := domain.NormalizeTaxID(doc.Document); id != "" {
				return id
			}
		}
	}
	return ""
}

func barRegistration(documents []documentPayload) string {
	for _, doc := range documents {
		if !strings.EqualFold(strings.TrimSpace(doc.Type), "OAB") {
			continue
		}
		if reg := domain.ExtractBarRegistration("OAB " + doc.Document); reg != "" {
			return reg
		}
	}
	return ""
}
