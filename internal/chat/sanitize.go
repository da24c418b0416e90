package chat

import "github.com/microcosm-cc/bluemonday"

// ReplySanitizer strips unsafe markup from provider replies before they are
// shown in the browser. Formatting tags survive; scripts, event handlers and
// javascript: URLs do not.
type ReplySanitizer struct {
	policy *bluemonday.Policy
}

func NewReplySanitizer() *ReplySanitizer {
	p := bluemonday.UGCPolicy()
	p.RequireNoReferrerOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return &ReplySanitizer{policy: p}
}

// Sanitize is safe for concurrent use.
func (s *ReplySanitizer) Sanitize(reply string) string {
	return s.policy.Sanitize(reply)
}
