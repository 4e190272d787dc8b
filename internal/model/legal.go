package model

// CaseType is the kind of legal finding.
type CaseType string

// Case types, from most to least severe.
const (
	CaseConviction CaseType = "conviction"
	CaseLawsuit    CaseType = "lawsuit"
	CaseAllegation CaseType = "allegation"
)

// CaseStatus is the procedural state of a legal finding.
type CaseStatus string

// Case statuses.
const (
	StatusPending CaseStatus = "pending"
	StatusSettled CaseStatus = "settled"
	StatusClosed  CaseStatus = "closed"
)

// RawSearchResult is one unparsed web search hit.
type RawSearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// LegalCaseRecord is a typed, relevance-scored legal finding.
type LegalCaseRecord struct {
	CaseType    CaseType   `json:"case_type" validate:"oneof=conviction lawsuit allegation"`
	Status      CaseStatus `json:"status" validate:"oneof=pending settled closed"`
	Relevance   float64    `json:"relevance" validate:"finite,gte=0,lte=1"`
	Verified    bool       `json:"verified"`
	Description string     `json:"description"`
	URL         string     `json:"url"`
	Date        string     `json:"date,omitempty"`
}
