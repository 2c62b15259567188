package dto

// ChoiceDTO is a (code, name) entry of a closed list
type ChoiceDTO struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// CatalogResponseDTO lists the submission fields and user regions
type CatalogResponseDTO struct {
	Fields  []ChoiceDTO `json:"fields"`
	Regions []ChoiceDTO `json:"regions"`
}
