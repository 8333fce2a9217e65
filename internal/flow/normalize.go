package flow

import (
	"regexp"
	"strings"
	"time"
)

// dateLayouts are the free-text date formats accepted for normalization, in
// match-priority order.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006",
}

// NormalizeDate converts a recognized free-text date ("March 15, 1985",
// "07/22/1990") to canonical YYYY-MM-DD form. Returns false when the text is
// not a recognizable date.
func NormalizeDate(text string) (string, bool) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimRight(cleaned, ".?!")
	if cleaned == "" {
		return "", false
	}
	cleaned = titleCaseMonths(cleaned)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// titleCaseMonths capitalizes alphabetic tokens so lowercase spoken dates
// ("march 15, 1985") parse with the month-name layouts.
func titleCaseMonths(text string) string {
	words := strings.Fields(text)
	for i, w := range words {
		if w == "" || w[0] < 'a' || w[0] > 'z' {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

var memberIDSeparators = regexp.MustCompile(`[\s\-.]+`)
var memberIDPattern = regexp.MustCompile(`^[A-Z]{1,4}\d{4,12}$`)

// NormalizeMemberID converts a spoken or spelled member ID ("M B 1 2 3 4 5 6",
// "mb-123456") to compact uppercase alphanumeric form. Returns false when the
// compacted text does not look like a member ID.
func NormalizeMemberID(text string) (string, bool) {
	compact := memberIDSeparators.ReplaceAllString(strings.TrimSpace(text), "")
	compact = strings.ToUpper(compact)
	if !memberIDPattern.MatchString(compact) {
		return "", false
	}
	return compact, true
}

var ndcDigits = regexp.MustCompile(`^\d{11}$`)
var ndcPattern = regexp.MustCompile(`^\d{5}-\d{4}-\d{2}$`)

// NormalizeNDC converts an NDC code to the dashed 5-4-2 form. Accepts either
// the dashed form or 11 contiguous digits.
func NormalizeNDC(text string) (string, bool) {
	cleaned := strings.TrimSpace(text)
	if ndcPattern.MatchString(cleaned) {
		return cleaned, true
	}
	compact := strings.ReplaceAll(cleaned, "-", "")
	compact = strings.ReplaceAll(compact, " ", "")
	if ndcDigits.MatchString(compact) {
		return compact[0:5] + "-" + compact[5:9] + "-" + compact[9:11], true
	}
	return "", false
}

var cptPattern = regexp.MustCompile(`^(?:\d{5}|[A-Za-z]\d{4})$`)

// NormalizeCPT validates and uppercases a CPT/HCPCS procedure code
// (five digits, or a letter followed by four digits).
func NormalizeCPT(text string) (string, bool) {
	cleaned := strings.ToUpper(strings.TrimSpace(text))
	if !cptPattern.MatchString(cleaned) {
		return "", false
	}
	return cleaned, true
}
