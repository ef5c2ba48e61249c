package embedindex

import (
	"regexp"
	"strings"

	"github.com/EricBintner/codrag/internal/chunk"
)

// Intent is the coarse query classification spec.md §4.3 step 5 reweights
// results by.
type Intent string

const (
	IntentDocs    Intent = "docs"
	IntentTests   Intent = "tests"
	IntentCode    Intent = "code"
	IntentDefault Intent = "default"
)

var docsVocab = map[string]bool{
	"readme": true, "doc": true, "docs": true, "documentation": true,
	"guide": true, "explain": true, "explanation": true, "overview": true,
	"tutorial": true, "howto": true, "usage": true, "primer": true,
}

var testsVocab = map[string]bool{
	"test": true, "tests": true, "testing": true, "spec": true,
	"assert": true, "assertion": true, "unittest": true, "pytest": true,
	"mock": true, "fixture": true, "coverage": true,
}

var codeVocab = map[string]bool{
	"function": true, "func": true, "class": true, "method": true,
	"implement": true, "implementation": true, "bug": true, "error": true,
	"exception": true, "refactor": true, "api": true, "variable": true,
	"struct": true, "interface": true, "algorithm": true,
}

var intentTokenRe = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// ClassifyIntent applies the fixed vocabulary match spec.md §4.3 step 5
// describes, with tests taking priority over docs over code over default.
func ClassifyIntent(query string) Intent {
	tokens := intentTokenRe.FindAllString(strings.ToLower(query), -1)
	hasTests, hasDocs, hasCode := false, false, false
	for _, t := range tokens {
		if testsVocab[t] {
			hasTests = true
		}
		if docsVocab[t] {
			hasDocs = true
		}
		if codeVocab[t] {
			hasCode = true
		}
	}
	switch {
	case hasTests:
		return IntentTests
	case hasDocs:
		return IntentDocs
	case hasCode:
		return IntentCode
	default:
		return IntentDefault
	}
}

// intentMultipliers is the fixed table spec.md §4.3 step 5 specifies.
var intentMultipliers = map[Intent]map[chunk.Role]float64{
	IntentDocs: {
		chunk.RoleDocs:  1.15,
		chunk.RoleCode:  0.98,
		chunk.RoleTests: 0.98,
		chunk.RoleOther: 0.95,
	},
	IntentTests: {
		chunk.RoleTests: 1.12,
		chunk.RoleCode:  1.00,
		chunk.RoleDocs:  0.95,
		chunk.RoleOther: 0.95,
	},
	IntentCode: {
		chunk.RoleCode:  1.08,
		chunk.RoleTests: 1.00,
		chunk.RoleDocs:  0.93,
		chunk.RoleOther: 0.90,
	},
	IntentDefault: {
		chunk.RoleCode:  1.0,
		chunk.RoleDocs:  1.0,
		chunk.RoleTests: 1.0,
		chunk.RoleOther: 1.0,
	},
}

func intentMultiplier(intent Intent, role chunk.Role) float64 {
	table, ok := intentMultipliers[intent]
	if !ok {
		return 1.0
	}
	if m, ok := table[role]; ok {
		return m
	}
	return 1.0
}
