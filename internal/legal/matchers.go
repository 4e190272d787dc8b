package legal

import (
	"regexp"

	"github.com/sells-group/provider-risk/internal/model"
)

var (
	// Group 1 captures a negation so "was not convicted" is not a conviction.
	// Charge severity words such as "felony" are not verdicts and stay out.
	convictionRe = regexp.MustCompile(`(?i)\b(?:(not|never|no)\s+)?(convicted|conviction|sentenced|guilty plea|pleaded guilty|pled guilty|found guilty|jury verdict of guilty)\b`)

	// exculpatoryRe marks text that reports an outcome other than a
	// conviction. Any match blocks the conviction matcher.
	exculpatoryRe = regexp.MustCompile(`(?i)\b(acquitt\w*|not guilty|exonerat\w*|overturned|conviction (?:was |were )?(?:vacated|reversed)|(?:charges?|counts?|indictment|case) (?:(?:was|were|have been|has been) )?(?:dropped|dismissed|withdrawn)|dismissed (?:the )?(?:charges?|counts?|indictment|case)|dropped (?:the )?(?:charges?|counts?))\b`)
	fraudTheftRe = regexp.MustCompile(`(?i)\b(health ?care fraud|medicare fraud|medicaid fraud|insurance fraud|fraud|fraudulent|theft|stole|embezzl\w*|kickbacks?|false claims?|money laundering)\b`)

	lawsuitRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bvs?\.\s`),
		regexp.MustCompile(`(?i)\b(plaintiffs?|defendants?|lawsuits?|sued|civil suit|civil action|class action)\b`),
		regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}-[a-z]{2,3}-\d{3,6}\b`),
		regexp.MustCompile(`(?i)\b(case|docket)\s+(no\.?|number|#)\s*[\w:-]+`),
	}

	enforcementRe = regexp.MustCompile(`(?i)\b(fraud\w*|alleg\w*|accus\w*|charged|charges|indict\w*|investigat\w*|settle\w*|false claims?|kickbacks?|exclusion|excluded|penalt\w*|violat\w*|subpoena\w*|whistleblower|qui tam|overbill\w*|upcod\w*|convicted|conviction|sentenced|guilty|felony|misdemeanor|arrested)\b`)

	settledRe = regexp.MustCompile(`(?i)\b(settled|settlement|agreed to pay|consent decree|consent judgment)\b`)
	closedRe  = regexp.MustCompile(`(?i)\b(dismissed|closed|acquitted|resolved|vacated|concluded)\b`)
)

// caseMatcher pairs a case type with its recognizer. The matcher order in
// caseMatchers is the precedence order.
type caseMatcher struct {
	caseType model.CaseType
	match    func(text string) bool
}

var caseMatchers = []caseMatcher{
	{model.CaseConviction, isConviction},
	{model.CaseLawsuit, isLawsuit},
	{model.CaseAllegation, enforcementRe.MatchString},
}

// classifyCaseType returns the first matching case type. ok is false when the
// text carries no enforcement context at all.
func classifyCaseType(text string) (model.CaseType, bool) {
	for _, m := range caseMatchers {
		if m.match(text) {
			return m.caseType, true
		}
	}
	return "", false
}

// isConviction requires un-negated verdict language together with a fraud
// or theft term, and no acquittal or dismissal language. Charges or an
// indictment alone fall through to the allegation matcher.
func isConviction(text string) bool {
	if !fraudTheftRe.MatchString(text) || exculpatoryRe.MatchString(text) {
		return false
	}
	for _, m := range convictionRe.FindAllStringSubmatch(text, -1) {
		if m[1] == "" {
			return true
		}
	}
	return false
}

func isLawsuit(text string) bool {
	for _, re := range lawsuitRes {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// classifyStatus defaults to pending unless settlement or closure language
// is present. Settlement wins over closure.
func classifyStatus(text string) model.CaseStatus {
	switch {
	case settledRe.MatchString(text):
		return model.StatusSettled
	case closedRe.MatchString(text):
		return model.StatusClosed
	default:
		return model.StatusPending
	}
}
