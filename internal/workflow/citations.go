package workflow

import (
	"fmt"
	"net/url"
	"strings"

	"researchnerd/internal/schema"
	"researchnerd/internal/types"
)

// normalizeURL folds scheme and host case and ignores a trailing slash so
// that equivalent spellings of one page compare equal.
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(raw, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = ""
	return u.String()
}

// checkCitations verifies that every section source was produced by a finding.
func checkCitations(report types.SynthesizedReport, research []types.ResearchResult) error {
	known := make(map[string]struct{})
	for _, src := range types.Sources(research) {
		known[normalizeURL(src)] = struct{}{}
	}
	for i, sec := range report.Sections {
		for j, src := range sec.Sources {
			if _, ok := known[normalizeURL(src)]; !ok {
				return &schema.ValidationError{
					Shape:      report.Shape().Name,
					Field:      fmt.Sprintf("sections[%d].sources[%d]", i, j),
					Constraint: fmt.Sprintf("cites %q, which no finding reported", src),
				}
			}
		}
	}
	return nil
}
