// Package prompt assembles bounded textual digests of a user's long-term
// memory for injection into model calls.
package prompt

import (
	"fmt"
	"strings"

	"github.com/irisfin/riskagent/internal/memory"
)

const (
	// DigestMemoryLimit bounds how many memory records the verbose digest
	// renders.
	DigestMemoryLimit = 10
	// DigestSummaryLimit bounds how many conversation summaries it renders.
	DigestSummaryLimit = 3
	// CompactCustomerLimit bounds how many customers the compact digest
	// covers.
	CompactCustomerLimit = 5
)

// Digest renders memories and summaries as a flat readable block for the
// system prompt. Returns "" when the user has no memories; callers omit
// the section rather than treat that as an error.
func Digest(records []memory.MemoryRecord, summaries []memory.ConversationSummary) string {
	if len(records) == 0 {
		return ""
	}

	lines := []string{"### Previous Knowledge About This User:"}
	for i, rec := range records {
		if i >= DigestMemoryLimit {
			break
		}
		lines = append(lines, fmt.Sprintf("- %s: %s = %s", rec.MemoryType, rec.MemoryKey, rec.Value))
	}

	if len(summaries) > 0 {
		lines = append(lines, "", "### Recent Conversation Summaries:")
		for i, sum := range summaries {
			if i >= DigestSummaryLimit {
				break
			}
			lines = append(lines, "- "+sum.Summary)
			if len(sum.CustomerIDs) > 0 {
				lines = append(lines, fmt.Sprintf("  (Discussed customers: %s)", strings.Join(sum.CustomerIDs, ", ")))
			}
		}
	}

	return strings.Join(lines, "\n")
}

// CompactDigest renders a deliberately lossy, size-bounded summary for
// silent machine consumption: records grouped by embedded customer id,
// only the highest-value fields per customer, capped to the most recently
// touched customers.
func CompactDigest(records []memory.MemoryRecord) string {
	type customerFacts struct {
		email string
		risk  string
	}

	byCustomer := make(map[string]*customerFacts)
	var order []string
	for _, rec := range records {
		if !strings.HasPrefix(rec.MemoryKey, "customer_") {
			continue
		}
		cid := strings.TrimPrefix(rec.MemoryKey, "customer_")
		facts, ok := byCustomer[cid]
		if !ok {
			if len(order) >= CompactCustomerLimit {
				continue
			}
			facts = &customerFacts{}
			byCustomer[cid] = facts
			order = append(order, cid)
		}
		switch rec.MemoryType {
		case "customer_emails":
			if facts.email == "" {
				facts.email = rec.Value
			}
		case "risk_assessments":
			if facts.risk == "" {
				facts.risk = rec.Value
			}
		}
	}

	var parts []string
	for _, cid := range order {
		facts := byCustomer[cid]
		if facts.email != "" {
			parts = append(parts, fmt.Sprintf("customer_%s_email=%s", cid, facts.email))
		}
		if facts.risk != "" {
			parts = append(parts, fmt.Sprintf("customer_%s_risk=%s", cid, facts.risk))
		}
	}
	return strings.Join(parts, "|")
}
