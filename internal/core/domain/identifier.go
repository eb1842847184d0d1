package domain

import (
	"fmt"
	"regexp"
	"strings"
)

type IdentifierType string

const (
	IdentifierTaxIDIndividual IdentifierType = "tax-id-individual"
	IdentifierTaxIDEntity     IdentifierType = "tax-id-entity"
	IdentifierBarRegistration IdentifierType = "bar-registration"
	IdentifierCaseNumber      IdentifierType = "case-number"
)

var IdentifierTypes = []IdentifierType{
	IdentifierTaxIDIndividual,
	IdentifierTaxIDEntity,
	IdentifierBarRegistration,
	IdentifierCaseNumber,
}

func (t IdentifierType) Valid() bool {
	switch t {
	case IdentifierTaxIDIndividual, IdentifierTaxIDEntity, IdentifierBarRegistration, IdentifierCaseNumber:
		return true
	default:
		return false
	}
}

// Identifier is a normalized search key.
type Identifier struct {
	Type  IdentifierType `json:"type"`
	Value string         `json:"value"`
}

func (i Identifier) String() string {
	return string(i.Type) + ":" + i.Value
}

// BarState returns the two-letter state prefix of a normalized bar registration.
func (i Identifier) BarState() string {
	if i.Type != IdentifierBarRegistration || len(i.Value) < 2 {
		return ""
	}
	return i.Value[:2]
}

// BarNumber returns the numeric part of a normalized bar registration.
func (i Identifier) BarNumber() string {
	if i.Type != IdentifierBarRegistration || len(i.Value) < 2 {
		return ""
	}
	return i.Value[2:]
}

// NormalizeIdentifier strips formatting and validates the value shape for its type.
func NormalizeIdentifier(t IdentifierType, raw string) (Identifier, error) {
	if !t.Valid() {
		return Identifier{}, WrapError(ErrInvalidInput, "normalize identifier", fmt.Errorf("unknown identifier type %q", t))
	}

	var value string
	switch t {
	case IdentifierTaxIDIndividual:
		value = digitsOnly(raw)
		if len(value) != 11 {
			return Identifier{}, WrapError(ErrInvalidInput, "normalize identifier", fmt.Errorf("individual tax id must have 11 digits, got %d", len(value)))
		}
	case IdentifierTaxIDEntity:
		value = digitsOnly(raw)
		if len(value) != 14 {
			return Identifier{}, WrapError(ErrInvalidInput, "normalize identifier", fmt.Errorf("entity tax id must have 14 digits, got %d", len(value)))
		}
	case IdentifierBarRegistration:
		value = normalizeBarRegistration(raw)
		if value == "" {
			return Identifier{}, WrapError(ErrInvalidInput, "normalize identifier", fmt.Errorf("bar registration %q must be a state prefix followed by digits", raw))
		}
	case IdentifierCaseNumber:
		value = NormalizeCaseNumber(raw)
		if len(value) < 7 {
			return Identifier{}, WrapError(ErrInvalidInput, "normalize identifier", fmt.Errorf("case number %q is too short", raw))
		}
	}
	return Identifier{Type: t, Value: value}, nil
}

// NormalizeCaseNumber reduces a case number to its digits so that every
// provider's formatting maps to the same key.
func NormalizeCaseNumber(raw string) string {
	return digitsOnly(raw)
}

// FormatCaseNumber renders a 20-digit unified case number as
// NNNNNNN-DD.AAAA.J.TR.OOOO. Other lengths are returned unchanged.
func FormatCaseNumber(key string) string {
	if len(key) != 20 {
		return key
	}
	return key[0:7] + "-" + key[7:9] + "." + key[9:13] + "." + key[13:14] + "." + key[14:16] + "." + key[16:20]
}

// NormalizeTaxID strips punctuation from an individual or entity tax id.
func NormalizeTaxID(raw string) string {
	return digitsOnly(raw)
}

var (
	barStateFirstPattern  = regexp.MustCompile(`^OAB\s*[/\-:]?\s*([A-Z]{2})\s*[/\-:]?\s*(\d[\d.]{0,9})`)
	barNumberFirstPattern = regexp.MustCompile(`^OAB\s*[/\-:]?\s*(?:N[º°O.]*\s*)?(\d[\d.]{0,9})\s*[/\-]\s*([A-Z]{2})\b`)
)

// ExtractBarRegistration finds a bar registration such as "OAB/SP 123.456" in
// free text and returns it normalized ("SP123456"), or "" when none is present.
func ExtractBarRegistration(text string) string {
	upper := strings.ToUpper(text)
	if !strings.Contains(upper, "OAB") {
		return ""
	}
	rest := upper[strings.Index(upper, "OAB"):]
	if match := barStateFirstPattern.FindStringSubmatch(rest); match != nil {
		return match[1] + digitsOnly(match[2])
	}
	if match := barNumberFirstPattern.FindStringSubmatch(rest); match != nil {
		return match[2] + digitsOnly(match[1])
	}
	return ""
}

func normalizeBarRegistration(raw string) string {
	var letters, digits strings.Builder
	for _, r := range strings.ToUpper(raw) {
		switch {
		case r >= 'A' && r <= 'Z':
			letters.WriteRune(r)
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		}
	}
	state := strings.TrimPrefix(letters.String(), "OAB")
	if len(state) != 2 || digits.Len() == 0 {
		return ""
	}
	return state + digits.String()
}

func digitsOnly(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
