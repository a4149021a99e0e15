package retrieval

import (
	"github.com/fyrsmithlabs/ragguard/internal/access"
	"github.com/fyrsmithlabs/ragguard/internal/index"
)

// Authorize returns the candidates whose access_level metadata is in
// allowed, in server order. A candidate whose label is missing, not a
// string, or unrecognized is dropped, as is one without text. Authorize
// never consults any filter the index may have applied.
func Authorize(candidates []index.Candidate, allowed access.LabelSet) []index.Candidate {
	out := make([]index.Candidate, 0, len(candidates))
	for _, c := range candidates {
		label, ok := c.Label()
		if !ok || !allowed.ContainsString(label) {
			continue
		}
		if c.Text() == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}
