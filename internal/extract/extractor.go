// Package extract derives structured memory candidates from unstructured
// assistant reply text. Extraction is heuristic and pattern-driven:
// first-match-wins per pattern family, risk labels mutually exclusive.
// Absence of matches is never an error.
package extract

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Fact is one memory candidate under a memory type.
type Fact struct {
	Key   string
	Value string
}

// Result maps memory types to extracted facts.
type Result struct {
	Facts       map[string][]Fact
	CustomerIDs []string
}

// Empty reports whether extraction produced no candidates.
func (r Result) Empty() bool {
	return len(r.Facts) == 0 && len(r.CustomerIDs) == 0
}

// Risk labels, checked in priority order; only the first matching label is
// recorded per extraction, later mentions are dropped.
const (
	RiskHigh   = "HIGH_RISK"
	RiskLow    = "LOW_RISK"
	RiskMedium = "MEDIUM_RISK"
)

var (
	customerIDPattern = regexp.MustCompile(`customer\s*(?:id)?[:\s]*(\d{4,})`)
	emailPattern      = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:name|customer\s*name)[:\s]+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)+)`),
		regexp.MustCompile(`(?i)(?:first\s*name)[:\s]+([A-Z][a-z]+)`),
		regexp.MustCompile(`(?i)(?:last\s*name)[:\s]+([A-Z][a-z]+)`),
	}

	financialPatterns = []struct {
		re   *regexp.Regexp
		name string
	}{
		{regexp.MustCompile(`(?i)(?:income|annual\s*income)[:\s]*\$?(\d+(?:,\d{3})*(?:\.\d{2})?)`), "income"},
		{regexp.MustCompile(`(?i)(?:credit\s*score|fico)[:\s]*(\d{3})`), "credit_score"},
		{regexp.MustCompile(`(?i)(?:balance|account\s*balance)[:\s]*\$?(\d+(?:,\d{3})*(?:\.\d{2})?)`), "balance"},
		{regexp.MustCompile(`(?i)(?:total\s*assets)[:\s]*\$?(\d+(?:,\d{3})*(?:\.\d{2})?)`), "total_assets"},
		{regexp.MustCompile(`(?i)(?:age)[:\s]*(\d{1,3})(?:\s*years)?`), "age"},
	}
)

// Extractor turns reply text into memory candidates. The clock is
// injectable so stored "Analyzed on ..." stamps are testable.
type Extractor struct {
	now func() time.Time
}

func New() *Extractor {
	return &Extractor{now: time.Now}
}

func NewWithClock(now func() time.Time) *Extractor {
	return &Extractor{now: now}
}

// Extract scans text for customer ids, a risk label, contact details and
// financial attributes. Values tied to customer ids are keyed
// customer_<id>; anything discovered without a customer id is kept under a
// key derived from the value itself so it is not lost.
func (e *Extractor) Extract(text string) Result {
	res := Result{Facts: make(map[string][]Fact)}
	if strings.TrimSpace(text) == "" {
		return res
	}

	today := e.now().UTC().Format("2006-01-02")
	res.CustomerIDs = CustomerIDs(text)

	for _, cid := range res.CustomerIDs {
		res.add("analyzed_customers", customerKey(cid), "Analyzed on "+today)
	}

	if label := riskLabel(text); label != "" {
		if len(res.CustomerIDs) > 0 {
			for _, cid := range res.CustomerIDs {
				res.add("risk_assessments", customerKey(cid), label)
			}
		} else {
			res.add("discovered_risk", label, "Found on "+today)
		}
	}

	for _, email := range emails(text) {
		if len(res.CustomerIDs) > 0 {
			for _, cid := range res.CustomerIDs {
				res.add("customer_emails", customerKey(cid), email)
			}
		} else {
			res.add("discovered_emails", email, "Found on "+today)
		}
	}

	for _, re := range namePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		name := m[1]
		if len(res.CustomerIDs) > 0 {
			for _, cid := range res.CustomerIDs {
				res.add("customer_names", customerKey(cid), name)
			}
		} else {
			res.add("discovered_names", name, "Found on "+today)
		}
	}

	for _, fp := range financialPatterns {
		m := fp.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		value := m[1]
		if len(res.CustomerIDs) > 0 {
			for _, cid := range res.CustomerIDs {
				res.add("customer_"+fp.name, customerKey(cid), value)
			}
		} else {
			res.add("discovered_"+fp.name, value, "Found on "+today)
		}
	}

	return res
}

func (r *Result) add(memoryType, key, value string) {
	r.Facts[memoryType] = append(r.Facts[memoryType], Fact{Key: key, Value: value})
}

// CustomerIDs returns all customer ids mentioned in text, deduped in
// first-seen order.
func CustomerIDs(text string) []string {
	matches := customerIDPattern.FindAllStringSubmatch(strings.ToLower(text), -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		ids = append(ids, m[1])
	}
	return ids
}

func emails(text string) []string {
	matches := emailPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

func riskLabel(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "high risk") || strings.Contains(lower, "high credit risk"):
		return RiskHigh
	case strings.Contains(lower, "low risk") || strings.Contains(lower, "low credit risk"):
		return RiskLow
	case strings.Contains(lower, "medium risk") || strings.Contains(lower, "moderate risk"):
		return RiskMedium
	default:
		return ""
	}
}

func customerKey(cid string) string {
	return fmt.Sprintf("customer_%s", cid)
}
