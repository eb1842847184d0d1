package escavador

import (
	"encoding/json"
	"strings"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
	"github.com/kirillkom/legal-search-engine/internal/infrastructure/provider"
)

type processPage struct {
	Items []processPayload `json:"items"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

type processPayload struct {
	NumeroCNJ              string          `json:"numero_cnj"`
	DataInicio             string          `json:"data_inicio"`
	DataUltimaMovimentacao string          `json:"data_ultima_movimentacao"`
	UnidadeOrigem          courtUnit       `json:"unidade_origem"`
	Fontes                 []sourcePayload `json:"fontes"`
}

type courtUnit struct {
	Nome          string `json:"nome"`
	TribunalSigla string `json:"tribunal_sigla"`
}

type sourcePayload struct {
	Sigla         string         `json:"sigla"`
	Nome          string         `json:"nome"`
	StatusPredito string         `json:"status_predito"`
	Capa          coverPayload   `json:"capa"`
	Envolvidos    []partyPayload `json:"envolvidos"`
}

type coverPayload struct {
	Classe     string `json:"classe"`
	Situacao   string `json:"situacao"`
	Fase       string `json:"fase"`
	Juiz       string `json:"juiz"`
	ValorCausa struct {
		Valor json.RawMessage `json:"valor"`
	} `json:"valor_causa"`
}

type partyPayload struct {
	Nome            string          `json:"nome"`
	Polo            string          `json:"polo"`
	TipoNormalizado string          `json:"tipo_normalizado"`
	CPF             string          `json:"cpf"`
	CNPJ            string          `json:"cnpj"`
	OAB             string          `json:"oab"`
	Advogados       []lawyerPayload `json:"advogados"`
}

type lawyerPayload struct {
	Nome string `json:"nome"`
	OAB  string `json:"oab"`
}

func (p processPayload) toProcess() (domain.Process, bool) {
	caseNumber := domain.NormalizeCaseNumber(p.NumeroCNJ)
	if caseNumber == "" {
		return domain.Process{}, false
	}

	process := domain.Process{
		CaseNumber:       caseNumber,
		CourtID:          p.UnidadeOrigem.TribunalSigla,
		CourtName:        p.UnidadeOrigem.Nome,
		DistributionDate: provider.ParseDate(p.DataInicio),
		LastUpdate:       provider.ParseDate(p.DataUltimaMovimentacao),
		Provider:         Name,
		AssociatedIDs:    make([]string, 0),
	}

	seen := make(map[string]struct{})
	for i, source := range p.Fontes {
		if i == 0 {
			if process.CourtID == "" {
				process.CourtID = source.Sigla
			}
			if process.CourtName == "" {
				process.CourtName = source.Nome
			}
			process.Status = firstNonEmpty(source.Capa.Situacao, source.StatusPredito)
			process.Phase = source.Capa.Fase
			process.JudgeName = source.Capa.Juiz
			process.CaseValue = provider.ParseAmount(strings.Trim(string(source.Capa.ValorCausa.Valor), `"`))
		}
		for _, raw := range source.Envolvidos {
			party, ok := raw.toParty()
			if !ok {
				continue
			}
			key := string(party.Side) + "|" + strings.ToUpper(party.Name)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			process.Parties = append(process.Parties, party)
			process.EnsureAssociatedID(party.TaxID)
			process.EnsureAssociatedID(party.BarRegistration)
			for _, lawyer := range party.Lawyers {
				process.EnsureAssociatedID(lawyer.BarRegistration)
			}
		}
	}
	process.Authors, process.Defendants = domain.PartyNames(process.Parties)
	return process, true
}

func (p partyPayload) toParty() (domain.Party, bool) {
	name := strings.TrimSpace(p.Nome)
	if name == "" {
		return domain.Party{}, false
	}
	// Lawyers listed as envolvidos are carried on their clients instead.
	if strings.EqualFold(strings.TrimSpace(p.TipoNormalizado), "advogado") {
		return domain.Party{}, false
	}

	party := domain.Party{
		Name:            name,
		Side:            provider.PartySide(p.Polo),
		TaxID:           domain.NormalizeTaxID(firstNonEmpty(p.CPF, p.CNPJ)),
		BarRegistration: barRegistration(p.OAB),
	}
	for _, lawyer := range p.Advogados {
		lawyerName := strings.TrimSpace(lawyer.Nome)
		if lawyerName == "" {
			continue
		}
		party.Lawyers = append(party.Lawyers, domain.Lawyer{
			Name:            lawyerName,
			BarRegistration: barRegistration(lawyer.OAB),
		})
	}
	return party, true
}

// barRegistration accepts both "OAB/SP 123.456" and the bare "SP123456" form.
func barRegistration(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if reg := domain.ExtractBarRegistration(raw); reg != "" {
		return reg
	}
	return domain.ExtractBarRegistration("OAB " + raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
