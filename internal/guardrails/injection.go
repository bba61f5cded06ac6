package guardrails

import "strings"

// blockScore is the weight at or above which a question is blocked.
const blockScore = 0.8

type injectionPattern struct {
	phrase string
	weight float64
	flag   string
}

var injectionPatterns = []injectionPattern{
	{"ignore previous instructions", 0.9, "override_attempt"},
	{"ignore all previous", 0.9, "override_attempt"},
	{"ignore the above", 0.85, "override_attempt"},
	{"disregard your instructions", 0.9, "override_attempt"},
	{"forget your instructions", 0.85, "override_attempt"},
	{"you are now", 0.6, "role_hijack"},
	{"pretend you are", 0.6, "role_hijack"},
	{"reveal your system", 0.85, "system_leak"},
	{"show me your prompt", 0.85, "system_leak"},
	{"print your instructions", 0.85, "system_leak"},
	{"jailbreak", 0.9, "jailbreak"},
	{"do anything now", 0.85, "jailbreak"},
	{"<system>", 0.8, "tag_injection"},
	{"</system>", 0.8, "tag_injection"},
	{"```system", 0.7, "format_injection"},
}

// InjectionGuard flags questions that try to override or extract the system
// prompt. Matching is a case-insensitive phrase search; low-weight phrases are
// flagged without blocking.
type InjectionGuard struct {
	patterns []injectionPattern
}

func NewInjectionGuard() *InjectionGuard {
	return &InjectionGuard{patterns: injectionPatterns}
}

func (g *InjectionGuard) Name() string { return "prompt_injection" }

func (g *InjectionGuard) Check(text string) Result {
	lower := strings.ToLower(text)
	var flags []string
	score := 0.0
	for _, p := range g.patterns {
		if !strings.Contains(lower, p.phrase) {
			continue
		}
		flags = append(flags, p.flag)
		score = max(score, p.weight)
	}
	if score >= blockScore {
		return Result{Reason: "possible prompt injection", Flags: flags}
	}
	return Result{Allowed: true, Flags: flags}
}
