package governance

import "hash/fnv"

/* RolloutEnabled reports whether a user falls inside a percentage
   rollout of a feature. The bucket is a stable function of (feature,
   userID): a user stays in or out of a rollout as the percentage only
   grows. This is plumbing around the governance core, consumed as a
   plain capability flag. */
func RolloutEnabled(feature, userID string, percent int) bool {
	if percent <= 0 {
		return false
	}
	if percent >= 100 {
		return true
	}

	h := fnv.New32a()
	h.Write([]byte(feature))
	h.Write([]byte(":"))
	h.Write([]byte(userID))
	bucket := int(h.Sum32() % 100)

	return bucket < percent
}
