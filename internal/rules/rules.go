// Package rules manages the keyword-driven priority assignment rules that
// steer the compose and review stages. Rules persist to a YAML file and
// merge with defaults so a partial update never wipes other categories.
package rules

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// CategoryRule holds the priority keywords for one ticket category.
type CategoryRule struct {
	Default          string   `yaml:"default" json:"default"`
	CriticalKeywords []string `yaml:"critical_keywords" json:"critical_keywords"`
	HighKeywords     []string `yaml:"high_keywords" json:"high_keywords"`
	MediumKeywords   []string `yaml:"medium_keywords" json:"medium_keywords"`
	LowKeywords      []string `yaml:"low_keywords" json:"low_keywords"`
}

// CategoryRulePatch is a partial update to one category. Nil fields keep
// the existing value.
type CategoryRulePatch struct {
	Default          *string   `yaml:"default" json:"default"`
	CriticalKeywords *[]string `yaml:"critical_keywords" json:"critical_keywords"`
	HighKeywords     *[]string `yaml:"high_keywords" json:"high_keywords"`
	MediumKeywords   *[]string `yaml:"medium_keywords" json:"medium_keywords"`
	LowKeywords      *[]string `yaml:"low_keywords" json:"low_keywords"`
}

// RuleSet maps category name to its rule.
type RuleSet map[string]CategoryRule

// DefaultRules returns the built-in priority rules for all categories.
func DefaultRules() RuleSet {
	return RuleSet{
		"Bug": {
			Default: "Medium",
			CriticalKeywords: []string{
				"data loss", "complete data loss", "all data", "unusable",
				"cannot access", "app won't start", "startup crash",
				"crashes every time", "crashes immediately", "crashes on startup",
			},
			HighKeywords: []string{
				"blank screen", "freeze", "notifications not working",
				"not responding", "crash", "crashes", "crashing", "slow",
				"performance", "lag", "frozen", "stuck",
			},
			MediumKeywords: []string{
				"permission", "security", "unexpected", "question",
				"concern", "explanation",
			},
			LowKeywords: []string{"cosmetic", "minor", "typo", "spelling", "text"},
		},
		"Feature Request": {
			Default:          "Low",
			CriticalKeywords: []string{},
			HighKeywords:     []string{},
			MediumKeywords: []string{
				"integration", "calendar", "recurring", "offline", "sync",
				"collaboration", "team",
			},
			LowKeywords: []string{
				"widget", "dark mode", "theme", "color", "shortcut",
				"voice", "Siri", "simple",
			},
		},
		"Complaint": {
			Default:          "Medium",
			CriticalKeywords: []string{},
			HighKeywords: []string{
				"duplicate charge", "refund", "billing", "payment", "charge",
			},
			MediumKeywords: []string{
				"pricing", "price", "expensive", "cost", "subscription",
				"premium", "paid", "support", "response time",
				"customer service", "performance", "UI", "design", "slow",
			},
			LowKeywords: []string{"suggestion", "preference", "minor"},
		},
	}
}

// Manager owns the rule set and its file persistence.
type Manager struct {
	mu    sync.RWMutex
	path  string
	rules RuleSet
}

// NewManager loads rules from path, falling back to defaults if the file
// is missing or unreadable.
func NewManager(path string) *Manager {
	m := &Manager{path: path}
	m.rules = m.loadFile()
	return m
}

func (m *Manager) loadFile() RuleSet {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			zap.L().Warn("could not load priority rules file", zap.Error(err))
		}
		return nil
	}

	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		zap.L().Warn("could not parse priority rules file",
			zap.String("path", m.path),
			zap.Error(err),
		)
		return nil
	}
	zap.L().Info("loaded priority rules", zap.String("path", m.path))
	return rs
}

// Get returns the current rules merged over defaults, so every known
// category is always present.
func (m *Manager) Get() RuleSet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return mergeOverDefaults(m.rules)
}

// Set applies partial category updates, preserving untouched categories and
// fields, and persists the result. Unknown categories are ignored with a
// warning.
func (m *Manager) Set(patches map[string]CategoryRulePatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	merged := mergeOverDefaults(m.rules)
	defaults := DefaultRules()

	for category, patch := range patches {
		if _, known := defaults[category]; !known {
			zap.L().Warn("ignoring unknown priority rules category",
				zap.String("category", category),
			)
			continue
		}

		rule := merged[category]
		if patch.Default != nil {
			rule.Default = *patch.Default
		}
		if patch.CriticalKeywords != nil {
			rule.CriticalKeywords = *patch.CriticalKeywords
		}
		if patch.HighKeywords != nil {
			rule.HighKeywords = *patch.HighKeywords
		}
		if patch.MediumKeywords != nil {
			rule.MediumKeywords = *patch.MediumKeywords
		}
		if patch.LowKeywords != nil {
			rule.LowKeywords = *patch.LowKeywords
		}
		merged[category] = rule
	}

	if err := m.save(merged); err != nil {
		return err
	}
	m.rules = merged
	return nil
}

func (m *Manager) save(rs RuleSet) error {
	data, err := yaml.Marshal(rs)
	if err != nil {
		return eris.Wrap(err, "rules: marshal")
	}
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return eris.Wrap(err, "rules: create dir")
		}
	}
	if err := os.WriteFile(m.path, data, 0644); err != nil {
		return eris.Wrap(err, "rules: write file")
	}
	zap.L().Info("saved priority rules", zap.String("path", m.path))
	return nil
}

// mergeOverDefaults layers rs over the defaults so callers always see a
// complete rule set.
func mergeOverDefaults(rs RuleSet) RuleSet {
	merged := DefaultRules()
	for category, rule := range rs {
		merged[category] = rule
	}
	return merged
}

// canonical rendering order for known categories; extras follow sorted.
var categoryOrder = []string{"Bug", "Feature Request", "Complaint"}

// FormatPrompt renders the rule set as the prompt fragment injected into
// the compose and review stages. Returns "" for an empty rule set.
func FormatPrompt(rs RuleSet) string {
	if len(rs) == 0 {
		return ""
	}

	var names []string
	seen := make(map[string]bool)
	for _, c := range categoryOrder {
		if _, ok := rs[c]; ok {
			names = append(names, c)
			seen[c] = true
		}
	}
	var extras []string
	for c := range rs {
		if !seen[c] {
			extras = append(extras, c)
		}
	}
	sort.Strings(extras)
	names = append(names, extras...)

	var b strings.Builder
	b.WriteString("\n\nPRIORITY ASSIGNMENT RULES (STRICTLY FOLLOW THESE):\n\n")
	for _, category := range names {
		rule := rs[category]
		b.WriteString(strings.ToUpper(category) + ":\n")
		def := rule.Default
		if def == "" {
			def = "Medium"
		}
		b.WriteString("- Default Priority: " + def + "\n")
		writeKeywordLine(&b, "Critical", rule.CriticalKeywords)
		writeKeywordLine(&b, "High", rule.HighKeywords)
		writeKeywordLine(&b, "Medium", rule.MediumKeywords)
		writeKeywordLine(&b, "Low", rule.LowKeywords)
		b.WriteString("\n")
	}
	return b.String()
}

func writeKeywordLine(b *strings.Builder, level string, keywords []string) {
	if len(keywords) == 0 {
		return
	}
	quoted := make([]string, len(keywords))
	for i, kw := range keywords {
		quoted[i] = `"` + kw + `"`
	}
	b.WriteString("- " + level + " if contains keywords: " + strings.Join(quoted, ", ") + "\n")
}
