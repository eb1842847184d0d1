package httpadapter

type searchRequest struct {
	IdentifierType  string `json:"identifierType" validate:"required,oneof=tax-id-individual tax-id-entity bar-registration case-number"`
	IdentifierValue string `json:"identifierValue" validate:"required,max=64"`
	UserID          string `json:"userId" validate:"omitempty,max=128"`
}

type createMonitoringRequest struct {
	IdentifierType  string `json:"identifierType" validate:"required,oneof=tax-id-individual tax-id-entity bar-registration case-number"`
	IdentifierValue string `json:"identifierValue" validate:"required,max=64"`
	Frequency       string `json:"frequency" validate:"omitempty,oneof=daily weekly monthly"`
}

type updateMonitoringRequest struct {
	Status string `json:"status" validate:"required,oneof=active paused"`
}

type grantRequest struct {
	UserID      string `json:"userId" validate:"required,max=128"`
	Amount      string `json:"amount" validate:"required,numeric"`
	Description string `json:"description" validate:"max=255"`
}
