package figures

import (
	"fmt"
	"strings"

	"filing_ingest/pkg/core/config"
	"filing_ingest/pkg/models"
)

// Vocabulary holds, per breakdown axis, the phrases that open a candidate
// table region and the category labels looked for inside it.
type Vocabulary struct {
	Anchors    map[models.BreakdownType][]string
	Categories map[models.BreakdownType][]string
}

// DefaultVocabulary covers the breakdowns large US filers commonly report.
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{
		Anchors: map[models.BreakdownType][]string{
			models.BreakdownProduct: {
				"net sales by category",
				"net sales by product",
				"revenue by product",
				"revenues by product",
				"revenue by type",
				"disaggregation of revenue",
			},
			models.BreakdownSegment: {
				"segment information",
				"segment operating performance",
				"segment results",
				"net sales by reportable segment",
				"revenue by segment",
				"revenues by segment",
				"reportable segments",
			},
			models.BreakdownGeography: {
				"net sales by geographic",
				"revenue by geographic",
				"revenues by geographic",
				"geographic information",
				"revenue by geography",
				"net sales by region",
			},
		},
		Categories: map[models.BreakdownType][]string{
			models.BreakdownProduct: {
				"iPhone", "Mac", "iPad", "Wearables, Home and Accessories", "Services",
				"Data Center", "Gaming", "Professional Visualization", "Automotive", "OEM and Other",
				"Google Search & other", "YouTube ads", "Google Network", "Google subscriptions, platforms, and devices",
				"Online stores", "Physical stores", "Third-party seller services", "Subscription services", "Advertising services",
				"Automotive sales", "Energy generation and storage", "Services and other",
				"Products", "Hardware", "Software", "Subscriptions",
			},
			models.BreakdownSegment: {
				"Americas", "Europe", "Greater China", "Japan", "Rest of Asia Pacific",
				"Productivity and Business Processes", "Intelligent Cloud", "More Personal Computing",
				"Google Services", "Google Cloud", "Other Bets",
				"Family of Apps", "Reality Labs",
				"North America", "International", "AWS",
				"Compute & Networking", "Graphics",
			},
			models.BreakdownGeography: {
				"United States", "U.S.", "Canada", "Latin America", "EMEA", "APAC",
				"Asia Pacific", "Asia-Pacific", "China", "Taiwan", "Singapore",
				"Europe", "Other countries", "Rest of World", "Other international",
			},
		},
	}
}

// VocabularyFromConfig merges configured phrases into the defaults, or
// replaces the defaults entirely when cfg.Replace is set.
func VocabularyFromConfig(cfg config.VocabularyConfig) (*Vocabulary, error) {
	v := DefaultVocabulary()
	if cfg.Replace {
		v = &Vocabulary{
			Anchors:    map[models.BreakdownType][]string{},
			Categories: map[models.BreakdownType][]string{},
		}
	}
	if err := mergeAxis(v.Anchors, cfg.Anchors); err != nil {
		return nil, fmt.Errorf("vocabulary anchors: %w", err)
	}
	if err := mergeAxis(v.Categories, cfg.Categories); err != nil {
		return nil, fmt.Errorf("vocabulary categories: %w", err)
	}
	return v, nil
}

func mergeAxis(dst map[models.BreakdownType][]string, src map[string][]string) error {
	for key, values := range src {
		axis, err := ParseBreakdownType(key)
		if err != nil {
			return err
		}
		seen := make(map[string]bool, len(dst[axis]))
		for _, existing := range dst[axis] {
			seen[strings.ToLower(existing)] = true
		}
		for _, value := range values {
			value = strings.TrimSpace(value)
			if value == "" || seen[strings.ToLower(value)] {
				continue
			}
			seen[strings.ToLower(value)] = true
			dst[axis] = append(dst[axis], value)
		}
	}
	return nil
}

// ParseBreakdownType accepts "product", "segment" or "geography" in any case.
func ParseBreakdownType(s string) (models.BreakdownType, error) {
	bt := models.BreakdownType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range models.BreakdownTypes {
		if bt == known {
			return bt, nil
		}
	}
	return "", fmt.Errorf("unknown breakdown type %q", s)
}

// HasBreakdownPhrase reports whether text contains any anchor phrase of any axis.
func (v *Vocabulary) HasBreakdownPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, phrases := range v.Anchors {
		for _, p := range phrases {
			if strings.Contains(lower, strings.ToLower(p)) {
				return true
			}
		}
	}
	return false
}
