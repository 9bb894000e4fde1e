// Package filter labels postings by keyword family and decides which titles
// enter the review sheet. Matching is local and cheap; the LLM scorer does
// the expensive judgement later.
package filter

import (
	"regexp"
	"strings"
)

// Screening decisions written to the review sheet.
const (
	DecisionNew       = "NEW"
	DecisionTooSenior = "OVERSENIOR"
)

// Titles matching deletePatterns are discarded even when a keyword family
// matches. Titles matching tooSeniorPatterns are kept but land with the
// OVERSENIOR decision instead of NEW.
var tooSeniorPatterns = []string{
	`\bexecutive\b`,
	`\bvp\b`,
	`\bvice\s+president\b`,
	`\bdirector\b`,
	`\bdirecteur\b`,
	`\bdirectrice\b`,
	`\bhead\s+of\b`,
	`\bc\-level\b`,
	`\bchief\b`,
	`\bprincipal\b`,
	`\bstaff\b`,
	`\blead\b`,
	`\bmanager\b`,
	`\bsenior\b`,
	`\bsr\b`,
	// \b is ASCII-only in RE2, so accented endings spell the boundary out.
	`\bconfirmée?(?:[^\p{L}]|\z)`,
}

// Keep this list conservative; it is easy to over-filter.
var deletePatterns = []string{
	// Sales-heavy pipeline roles
	`sales\s+development\s+representative`,
	`business\s+development\s+representative`,
	`\bsdr\b`,
	`\bbdr\b`,

	// Non-software engineering / trades (FR/EN)
	`électricit`,
	`electri(c|que)`,
	`\bcfo\b`,
	`\bcfa\b`,
	`automatisme`,
	`maintenance\b`,
	`\bindustri(el|elle|els|elles)\b`,
	`manufactur`,
	`assemblage`,
	`contrôleur\s+qualité`,
	`controleur\s+qualite`,
	`\bqualité(?:[^\p{L}]|\z)`,
	`\bqualite\b`,
	`génie\s+civil`,
	`genie\s+civil`,
	`revit`,
	`coffrage`,
	`ferraillage`,

	// QA/testing
	`\bqa\b`,
	`test(\b|eur|euse)`,
	`fonctionnel(le)?`,

	// Accounting/HR/marketing/product/video
	`comptab`,
	`finance\b`,
	`ressources\s+humaines`,
	`\brh\b`,
	`marketing\b`,
	`chef\s+de\s+produit`,
	`product\s+manager`,
	`video\s+editor`,
	`monteur\s+vid(é|e)o`,

	// Retail / service / logistics
	`\bcaissier\b`,
	`\bcaisse\b`,
	`\bcashier\b`,
	`\blivreur\b`,
	`\bcoursier\b`,
	`\bchauffeur\b`,
	`\bpréparateur\b`,
	`\bpreparateur\b`,
	`\bvendeur\b`,
	`\bvendeuse\b`,
}

var (
	tooSeniorRE = compileAny(tooSeniorPatterns)
	deleteRE    = compileAny(deletePatterns)
	// "IA" needs whole-word matching; substring matching would fire on
	// "Industrial", "Italia" and the like.
	iaWordRE = regexp.MustCompile(`(?i)\bia\b`)
)

func compileAny(patterns []string) *regexp.Regexp {
	parts := make([]string, len(patterns))
	for i, p := range patterns {
		parts[i] = "(?:" + p + ")"
	}
	return regexp.MustCompile("(?i)" + strings.Join(parts, "|"))
}

// Rule names a keyword family used for labeling.
type Rule struct {
	Label    string
	Keywords []string
}

// BroadRules are the default labeling families. They label and gate locally
// only; nothing here generates search requests.
var BroadRules = []Rule{
	{
		Label: "TECH",
		Keywords: []string{
			"full stack", "full-stack", "fullstack",
			"développeur", "developer", "ingénieur", "engineer",
			"frontend", "front-end", "backend", "back-end",
			"software", "web", "it", "informatique",
			"chef de projet", "project manager",
			"analyste", "analyste fonctionnel", "fonctionnel", "consultant",
			"data center", "datacenter", "monétique",
			"react", "next", "node", "javascript", "typescript",
			"python", "sql", "devops", "docker",
			"postgres", "postgresql", "prisma", "supabase",
			"technico-fonctionnel", "techno-fonctionnel", "sage",
		},
	},
	{
		Label: "AI",
		Keywords: []string{
			"machine learning", "deep learning", "intelligence artificielle",
			"computer vision", "vision", "yolo", "rag", "llm",
		},
	},
	{
		Label: "SALES",
		Keywords: []string{
			"sales", "commercial", "vente",
			"business development", "développement commercial",
			"account executive", "account manager",
			"chargé d'affaires", "chargé daffaires",
			"ingénieur commercial", "technico-commercial", "chef des ventes",
			"télévente", "télévendeur", "télévendeurs",
			"téléconseiller", "téléconseillère",
			"téléopérateur", "téléopérateurs",
			"centre d'appel", "centre d’appels", "call center", "centre de contact",
			"vendeur", "vendeuse",
			"conseiller commercial",
			"chargé clientèle", "chargé de clientèle", "chargée de clientèle",
			"prise de rdv", "prise de rendez", "rdv",
		},
	},
}

// MatchLabels returns the labels of every rule whose keywords appear in the
// text, in rule order and without duplicates. The short token "IA" is only
// matched as a whole word.
func MatchLabels(text string, rules []Rule) []string {
	if rules == nil {
		rules = BroadRules
	}
	lower := strings.ToLower(text)

	var labels []string
	seen := make(map[string]struct{})
	add := func(label string) {
		if _, ok := seen[label]; ok {
			return
		}
		seen[label] = struct{}{}
		labels = append(labels, label)
	}

	for _, rule := range rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				add(rule.Label)
				break
			}
		}
	}
	if iaWordRE.MatchString(text) {
		add("AI")
	}
	return labels
}

// IsTooSenior reports whether a title names a seniority level above the
// target band.
func IsTooSenior(text string) bool {
	t := strings.TrimSpace(text)
	return t != "" && tooSeniorRE.MatchString(t)
}

// IsBlocked reports whether a title falls in a discarded category.
func IsBlocked(text string) bool {
	t := strings.TrimSpace(text)
	return t != "" && deleteRE.MatchString(t)
}

// IsRelevant reports whether a title passes the local gate: not discarded
// and carrying at least one label.
func IsRelevant(text string) bool {
	if IsBlocked(text) {
		return false
	}
	return len(MatchLabels(text, nil)) > 0
}

// DecisionForTitle returns the sheet decision for a title. OVERSENIOR only
// applies to titles that are relevant in the first place, so irrelevant
// postings are not mislabeled.
func DecisionForTitle(title string) string {
	if !IsRelevant(title) {
		return DecisionNew
	}
	if IsTooSenior(title) {
		return DecisionTooSenior
	}
	return DecisionNew
}
