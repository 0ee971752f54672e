package models

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile parameterizes one deployment of the cascade. The pipeline itself is
// generic; everything product-specific (which subforums to watch, which
// phrasings signal intent, which topics to embed against) lives here.
type Profile struct {
	Name      string   `yaml:"name"`
	Subforums []string `yaml:"subreddits"`

	// Cheap textual gates, matched as lowercase substrings.
	IntentKeywords   []string `yaml:"intent_keywords"`
	NegativeKeywords []string `yaml:"negative_keywords"`
	SeekingMarkers   []string `yaml:"seeking_markers"`

	// Reference topics for the similarity gate.
	Topics              []string `yaml:"topics"`
	SimilarityThreshold float64  `yaml:"similarity_threshold"`

	// Rubric criteria interpolated into the verification prompt.
	PositiveCriteria []string `yaml:"positive_criteria"`
	NegativeCriteria []string `yaml:"negative_criteria"`

	// Outbound response selection: first template whose trigger keywords match
	// wins, the last entry with no triggers is the fallback.
	Templates []ResponseTemplate `yaml:"templates"`

	// Diagnostic sink for rejected items.
	SaveFiltered bool `yaml:"save_filtered"`
}

// ResponseTemplate pairs trigger keywords with an outbound message body.
type ResponseTemplate struct {
	Name     string   `yaml:"name"`
	Triggers []string `yaml:"triggers"`
	Body     string   `yaml:"body"`
}

// LoadProfile reads and validates a profile YAML file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile %s: %w", path, err)
	}

	return &p, nil
}

// Validate checks that the profile can drive every cascade stage.
func (p *Profile) Validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("name is required")
	case len(p.Subforums) == 0:
		return fmt.Errorf("at least one subreddit is required")
	case len(p.IntentKeywords) == 0:
		return fmt.Errorf("intent_keywords must not be empty")
	case len(p.SeekingMarkers) == 0:
		return fmt.Errorf("seeking_markers must not be empty")
	case len(p.Topics) == 0:
		return fmt.Errorf("topics must not be empty")
	}

	if p.SimilarityThreshold <= 0 || p.SimilarityThreshold >= 1 {
		return fmt.Errorf("similarity_threshold must be in (0, 1), got %v", p.SimilarityThreshold)
	}

	return nil
}

// SelectTemplate returns the body of the first template whose triggers match
// the text, falling back to the last trigger-less template.
func (p *Profile) SelectTemplate(text string) string {
	text = strings.ToLower(text)
	fallback := ""

	for _, tpl := range p.Templates {
		if len(tpl.Triggers) == 0 {
			fallback = tpl.Body
			continue
		}
		for _, trigger := range tpl.Triggers {
			if strings.Contains(text, strings.ToLower(trigger)) {
				return tpl.Body
			}
		}
	}

	return fallback
}

// SubforumSet returns the joined multi-subforum identifier used by the
// platform API ("a+b+c").
func (p *Profile) SubforumSet() string {
	return strings.Join(p.Subforums, "+")
}
