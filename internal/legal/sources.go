package legal

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// officialSuffixes are host suffixes of court, government, and regulatory
// sites.
var officialSuffixes = []string{".gov", ".mil", ".fed.us"}

// stateCourtHostRe matches legacy state judiciary hosts such as
// courts.state.ny.us or www.courts.ca.us.
var stateCourtHostRe = regexp.MustCompile(`(^|\.)(courts?|judiciary|judicial)\.([a-z0-9-]+\.)*[a-z]{2}\.us$`)

// parseHost extracts the lowercased host of an http(s) URL without port or
// leading "www.".
func parseHost(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", false
	}
	return strings.TrimPrefix(host, "www."), true
}

// isOfficialHost reports whether host is on the court/government allow-list.
// extra holds additional allowed hosts; each also admits its subdomains.
func isOfficialHost(host string, extra []string) bool {
	for _, s := range officialSuffixes {
		if strings.HasSuffix(host, s) {
			return true
		}
	}
	if stateCourtHostRe.MatchString(host) {
		return true
	}
	for _, e := range extra {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if host == e || strings.HasSuffix(host, "."+e) {
			return true
		}
	}
	return false
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4}\b`),
	regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`),
	regexp.MustCompile(`\b(19|20)\d{2}\b`),
}

var yearRe = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// extractDate returns the first date-like string in text.
func extractDate(text string) string {
	for _, re := range datePatterns {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

// mostRecentYear returns the latest four-digit year mentioned in text that is
// not after currentYear.
func mostRecentYear(text string, currentYear int) (int, bool) {
	best, found := 0, false
	for _, m := range yearRe.FindAllString(text, -1) {
		y, err := strconv.Atoi(m)
		if err != nil || y > currentYear {
			continue
		}
		if y > best {
			best, found = y, true
		}
	}
	return best, found
}
