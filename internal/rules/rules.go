// Package rules normalizes recognized text with ordered substitutions.
package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"pttype/internal/domain"
)

const defaultIterationLimit = 30

// Rule is one substitution as declared in configuration.
type Rule struct {
	Match         string `yaml:"match"`
	Replace       string `yaml:"replace"`
	Regex         bool   `yaml:"regex"`
	Global        bool   `yaml:"global"`
	CaseSensitive bool   `yaml:"case_sensitive"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadFile reads a YAML document with a top-level "rules" list. A missing
// file yields no rules.
func LoadFile(path string) ([]Rule, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, domain.WrapError(domain.ErrorKindConfig, "rules.load", fmt.Sprintf("read rules file %q", path), err)
	}
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, domain.WrapError(domain.ErrorKindConfig, "rules.load", fmt.Sprintf("parse rules file %q", path), err)
	}
	return file.Rules, nil
}

type substitution struct {
	re      *regexp.Regexp
	replace string
	global  bool
}

func (s substitution) apply(input string) string {
	if s.global {
		return s.re.ReplaceAllString(input, s.replace)
	}
	loc := s.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input
	}
	var out []byte
	out = s.re.ExpandString(out, s.replace, input, loc)
	return input[:loc[0]] + string(out) + input[loc[1]:]
}

// Engine applies compiled rules until the text stops changing or the
// iteration limit is reached.
type Engine struct {
	subs  []substitution
	limit int
}

func NewEngine(rules []Rule, iterationLimit int) (*Engine, error) {
	if iterationLimit <= 0 {
		iterationLimit = defaultIterationLimit
	}
	subs := make([]substitution, 0, len(rules))
	for i, rule := range rules {
		sub, err := compile(rule)
		if err != nil {
			return nil, domain.WrapError(domain.ErrorKindConfig, "rules.compile", fmt.Sprintf("rule %d", i+1), err)
		}
		subs = append(subs, sub)
	}
	return &Engine{subs: subs, limit: iterationLimit}, nil
}

func compile(rule Rule) (substitution, error) {
	match := strings.TrimSpace(rule.Match)
	if match == "" {
		return substitution{}, errors.New("match cannot be empty")
	}

	pattern := match
	replace := rule.Replace
	global := rule.Global
	if !rule.Regex {
		pattern = regexp.QuoteMeta(match)
		replace = strings.ReplaceAll(replace, "$", "$$")
		// literal rules always replace every occurrence
		global = true
	}
	if !rule.CaseSensitive {
		pattern = "(?i)" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return substitution{}, fmt.Errorf("invalid pattern %q: %w", match, err)
	}
	return substitution{re: re, replace: replace, global: global}, nil
}

// Len is the number of compiled rules.
func (e *Engine) Len() int {
	if e == nil {
		return 0
	}
	return len(e.subs)
}

// Apply normalizes text. A nil engine returns text unchanged.
func (e *Engine) Apply(text string) string {
	if e == nil || len(e.subs) == 0 || text == "" {
		return text
	}
	result := text
	for pass := 0; pass < e.limit; pass++ {
		before := result
		for _, sub := range e.subs {
			result = sub.apply(result)
		}
		if result == before {
			break
		}
	}
	return result
}
