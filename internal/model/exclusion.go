package model

import "strings"

// ExclusionTier is the severity class of an exclusion authority.
type ExclusionTier string

// Exclusion tiers.
const (
	TierFelony     ExclusionTier = "felony"
	TierMandatory  ExclusionTier = "mandatory"
	TierPermissive ExclusionTier = "permissive"
	TierUnknown    ExclusionTier = "unknown"
)

// ExclusionType describes one LEIE exclusion authority.
type ExclusionType struct {
	Code        string
	Tier        ExclusionTier
	Description string
}

// exclusionTypes is keyed by normalized code (see NormalizeExclusionCode).
var exclusionTypes = map[string]ExclusionType{
	"1128a1":    {"1128a1", TierMandatory, "Conviction of program-related crimes"},
	"1128a2":    {"1128a2", TierMandatory, "Conviction relating to patient abuse or neglect"},
	"1128a3":    {"1128a3", TierFelony, "Felony conviction relating to health care fraud"},
	"1128a4":    {"1128a4", TierMandatory, "Felony conviction relating to controlled substances"},
	"1128b1":    {"1128b1", TierPermissive, "Misdemeanor conviction relating to health care fraud"},
	"1128b2":    {"1128b2", TierPermissive, "Conviction relating to obstruction of an investigation or audit"},
	"1128b3":    {"1128b3", TierPermissive, "Misdemeanor conviction relating to controlled substances"},
	"1128b4":    {"1128b4", TierPermissive, "License revocation or suspension"},
	"1128b5":    {"1128b5", TierPermissive, "Exclusion or suspension under a federal or state health care program"},
	"1128b6":    {"1128b6", TierPermissive, "Claims for excessive charges or unnecessary services"},
	"1128b7":    {"1128b7", TierPermissive, "Fraud, kickbacks, and other prohibited activities"},
	"1128b8":    {"1128b8", TierPermissive, "Entities controlled by a sanctioned individual"},
	"1128b9":    {"1128b9", TierPermissive, "Failure to disclose required information"},
	"1128b10":   {"1128b10", TierPermissive, "Failure to supply requested information on subcontractors and suppliers"},
	"1128b11":   {"1128b11", TierPermissive, "Failure to supply payment information"},
	"1128b12":   {"1128b12", TierPermissive, "Failure to grant immediate access"},
	"1128b13":   {"1128b13", TierPermissive, "Failure to take corrective action"},
	"1128b14":   {"1128b14", TierPermissive, "Default on health education loan or scholarship obligations"},
	"1128b15":   {"1128b15", TierPermissive, "Individuals controlling a sanctioned entity"},
	"1128b16":   {"1128b16", TierPermissive, "Making false statements or misrepresentation of material facts"},
	"1128aa":    {"1128Aa", TierPermissive, "Civil monetary penalty"},
	"1156":      {"1156", TierPermissive, "Failure to meet statutory obligations of practitioners and providers"},
	"1128c3gi":  {"1128c3gi", TierMandatory, "Conviction of two mandatory exclusion offenses"},
	"1128c3gii": {"1128c3gii", TierMandatory, "Conviction of three or more mandatory exclusion offenses"},
}

// NormalizeExclusionCode canonicalizes an exclusion code such as
// "1128(a)(3)" or "1128A3" to "1128a3".
func NormalizeExclusionCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(code) {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LookupExclusionType returns the exclusion authority for code. Unrecognized
// codes return TierUnknown and false.
func LookupExclusionType(code string) (ExclusionType, bool) {
	et, ok := exclusionTypes[NormalizeExclusionCode(code)]
	if !ok {
		return ExclusionType{Code: strings.TrimSpace(code), Tier: TierUnknown, Description: "Unknown exclusion type"}, false
	}
	return et, true
}
