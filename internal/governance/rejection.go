package governance

import "strings"

/* RejectionReason is the fixed taxonomy a free-text cancellation reason
   is mapped into for analytics */
type RejectionReason string

const (
	RejectionTiming          RejectionReason = "timing"
	RejectionPrivacy         RejectionReason = "privacy"
	RejectionIncorrectAction RejectionReason = "incorrect_action"
	RejectionChangedMind     RejectionReason = "changed_mind"
	RejectionResourceConcern RejectionReason = "resource_concern"
	RejectionPreferManual    RejectionReason = "prefer_manual"
	RejectionOther           RejectionReason = "other"
	RejectionUnspecified     RejectionReason = "unspecified"
)

/* rejectionKeywords is matched in order; the first category with a hit
   wins. Matching is case-insensitive substring search. */
var rejectionKeywords = []struct {
	reason   RejectionReason
	keywords []string
}{
	{RejectionTiming, []string{"later", "not now", "timing", "too early", "too late", "wrong time", "busy"}},
	{RejectionPrivacy, []string{"privacy", "private", "personal", "don't share", "do not share", "confidential"}},
	{RejectionIncorrectAction, []string{"wrong", "incorrect", "mistake", "not what i", "error"}},
	{RejectionChangedMind, []string{"changed my mind", "change my mind", "nevermind", "never mind", "no longer"}},
	{RejectionResourceConcern, []string{"expensive", "cost", "credit", "quota", "budget"}},
	{RejectionPreferManual, []string{"myself", "manually", "on my own", "i'll do", "i will do", "prefer to do"}},
}

/* CategorizeRejection maps a free-text reason to the fixed taxonomy.
   Empty input is unspecified; text that matches nothing is other. */
func CategorizeRejection(text string) RejectionReason {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return RejectionUnspecified
	}

	lower := strings.ToLower(trimmed)
	for _, entry := range rejectionKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.reason
			}
		}
	}

	return RejectionOther
}
