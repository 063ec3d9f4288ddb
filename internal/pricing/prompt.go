package pricing

import (
	"fmt"
	"strings"

	"github.com/lithammer/dedent"
)

// PromptInput carries everything the prompt builder needs. The builder is a
// pure function of this input and the listing batch.
type PromptInput struct {
	Rules          RuleSet
	Currency       Currency
	Region         Region
	UseAIFiltering bool
}

var basePromptTemplate = strings.TrimSpace(dedent.Dedent(`
	You are an expert pricing analyst for %s.

	Your job is to:
	1. Carefully read each eBay sold listing
	2. Extract structured data
	3. Determine if the listing is a valid comparable
	4. Exclude invalid listings with clear reasons
	5. Compute a realistic median market price

	Pricing Rules:
	- Target currency: %s
	- Target region: %s
	- For USA listings: Use item price only (ignore shipping)
	- For Canada listings: Include shipping in total price (item + shipping)
	- NEVER include customs, duties, or taxes

	You MUST return valid JSON in this exact format:
	{
	  "summary": {
	    "median_price": number,
	    "p25_price": number,
	    "p75_price": number,
	    "currency": "%s",
	    "confidence_score": number (0-100),
	    "confidence_label": "Low" | "Medium" | "High",
	    "comps_used": number,
	    "comps_excluded": number,
	    "notes": ["note1", "note2"]
	  },
	  "comps": [
	    {
	      "title": string,
	      "url": string,
	      "image_url": string,
	      "sold_price": number,
	      "shipping": number,
	      "location": string,
	      "total_used": number,
	      "sold_date": string,
	      "included": boolean,
	      "exclusion_reason": string (if excluded),
	      "match_score": number (0-100),
	      "extracted_fields": object
	    }
	  ]
	}`))

// BuildPrompt renders the instruction text and the listing payload sent to
// the language model. Deterministic and side-effect free.
func BuildPrompt(in PromptInput, listings []RawListing) (instructions, payload string) {
	return buildInstructions(in), buildPayload(listings)
}

func buildInstructions(in PromptInput) string {
	var b strings.Builder

	regionLabel := "usa"
	if in.Region == RegionCA {
		regionLabel = "canada"
	}
	fmt.Fprintf(&b, basePromptTemplate, in.Rules.Label, in.Currency, regionLabel, in.Currency)

	fmt.Fprintf(&b, "\n\n%s Specific Rules:\n", in.Rules.Heading)

	if in.Rules.TitleStructure != "" {
		fmt.Fprintf(&b, "\nTitle Structure (most common):\n%s\n", in.Rules.TitleStructure)
	}

	b.WriteString("\nExtract these fields:\n")
	for _, f := range in.Rules.RequiredFields {
		fmt.Fprintf(&b, "- %s\n", f)
	}

	if in.UseAIFiltering {
		b.WriteString("\nExclusion Rules:\n")
		for _, r := range in.Rules.ExclusionRules {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	} else {
		b.WriteString("\nAI filtering is disabled: do not exclude listings based on judgment calls. Include every listing as a comp.\n")
	}

	if len(in.Rules.ScoringRules) > 0 {
		b.WriteString("\nMatch Scoring (0-100):\n")
		for _, s := range in.Rules.ScoringRules {
			fmt.Fprintf(&b, "- %s: +%d\n", s.Criterion, s.Points)
		}
		if in.UseAIFiltering {
			fmt.Fprintf(&b, "\nOnly use listings with match score >= %d.", in.Rules.MatchThreshold)
		}
	}

	if len(in.Rules.MandatoryFields) > 0 && in.UseAIFiltering {
		b.WriteString("\nMatch Requirements:\n")
		fmt.Fprintf(&b, "- MUST match: %s\n", strings.Join(in.Rules.MandatoryFields, ", "))
		b.WriteString("- Listings missing critical specs should be excluded")
	}

	return strings.TrimRight(b.String(), "\n")
}

func buildPayload(listings []RawListing) string {
	blocks := make([]string, len(listings))
	for i, l := range listings {
		blocks[i] = fmt.Sprintf(
			"Listing %d:\nTitle: %s\nPrice: %s\nShipping: %s\nLocation: %s\nDate: %s\nLink: %s\nThumbnail: %s\n",
			i+1,
			naOr(l.Title),
			naOr(l.Price),
			naOr(l.Shipping),
			naOr(l.Location),
			naOr(l.SoldDate),
			naOr(l.Link),
			naOr(l.Thumbnail),
		)
	}

	return fmt.Sprintf(
		"Analyze these %d sold listings and return the pricing analysis in the required JSON format:\n\n%s",
		len(listings),
		strings.Join(blocks, "\n---\n\n"),
	)
}

// naOr substitutes the explicit placeholder for absent listing fields so the
// model never sees an empty value.
func naOr(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
