package pricing

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseError reports LLM output that failed schema validation. Raw holds the
// offending text for diagnosis.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("LLM returned invalid JSON: %s", e.Reason)
}

// extractJSONObject extracts a JSON object from text that may contain
// markdown code blocks or other formatting.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return text[start : end+1], nil
}

// ParseAnalysis parses and validates one completion against the analysis
// schema. There is no partial acceptance: any shape violation returns a
// ParseError and the result is discarded. The only normalizations applied
// are deterministic: comp counts are recomputed from the comp list, each
// comp's total price is recomputed per the region rule, a leftover
// exclusion reason on an included comp is cleared, and a missing currency
// is filled with the requested one.
func ParseAnalysis(text string, currency Currency, region Region) (*Analysis, error) {
	jsonStr, err := extractJSONObject(text)
	if err != nil {
		return nil, &ParseError{Reason: err.Error(), Raw: text}
	}

	var a Analysis
	if err := json.Unmarshal([]byte(jsonStr), &a); err != nil {
		return nil, &ParseError{Reason: err.Error(), Raw: text}
	}

	if len(a.Comps) == 0 {
		return nil, &ParseError{Reason: "no comps in response", Raw: text}
	}

	used := 0
	for i := range a.Comps {
		c := &a.Comps[i]
		if strings.TrimSpace(c.Title) == "" {
			return nil, &ParseError{Reason: fmt.Sprintf("comp %d has no title", i+1), Raw: text}
		}
		if c.MatchScore < 0 || c.MatchScore > 100 {
			return nil, &ParseError{Reason: fmt.Sprintf("comp %d match_score out of range: %d", i+1, c.MatchScore), Raw: text}
		}
		// The total is derived from the region rule, not trusted from the
		// model's arithmetic.
		c.TotalUsed = ComposePrice(region, c.SoldPrice, c.Shipping)
		if c.Included {
			used++
			// Invariant: included comps carry no exclusion reason.
			c.ExclusionReason = ""
		} else if strings.TrimSpace(c.ExclusionReason) == "" {
			return nil, &ParseError{Reason: fmt.Sprintf("comp %d excluded without a reason", i+1), Raw: text}
		}
	}

	// Counts are derived from the comp list, not trusted from the model.
	a.Summary.CompsUsed = used
	a.Summary.CompsExcluded = len(a.Comps) - used

	if a.Summary.ConfidenceScore < 0 || a.Summary.ConfidenceScore > 100 {
		return nil, &ParseError{Reason: fmt.Sprintf("confidence_score out of range: %d", a.Summary.ConfidenceScore), Raw: text}
	}

	label, err := normalizeConfidenceLabel(a.Summary.ConfidenceLabel)
	if err != nil {
		return nil, &ParseError{Reason: err.Error(), Raw: text}
	}
	a.Summary.ConfidenceLabel = label

	if used > 0 {
		s := a.Summary
		if s.P25Price > s.MedianPrice || s.MedianPrice > s.P75Price {
			return nil, &ParseError{
				Reason: fmt.Sprintf("percentiles out of order: p25=%.2f median=%.2f p75=%.2f", s.P25Price, s.MedianPrice, s.P75Price),
				Raw:    text,
			}
		}
	}

	switch a.Summary.Currency {
	case "":
		a.Summary.Currency = currency
	case currency:
	default:
		return nil, &ParseError{Reason: fmt.Sprintf("unexpected currency %q", a.Summary.Currency), Raw: text}
	}

	if a.Summary.Notes == nil {
		a.Summary.Notes = []string{}
	}

	return &a, nil
}

func normalizeConfidenceLabel(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return ConfidenceLow, nil
	case "medium":
		return ConfidenceMedium, nil
	case "high":
		return ConfidenceHigh, nil
	default:
		return "", fmt.Errorf("unknown confidence_label: %q", s)
	}
}
