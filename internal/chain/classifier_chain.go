package chain

import (
	"context"
)

// localSentinel is the special chain entry meaning "use the process-local
// safety-net model". ClassifierChainFor returns it unexpanded and
// ResolveSentinel maps it to a provider ID; the classifier itself does not
// expand it and looks it up as a provider ID like any other entry.
const localSentinel = "local"

// ClassifierChainFor implements the narrow interface the classifier package
// consumes (see classifier.chainResolver) without introducing a dependency
// from this package back onto the classifier package.
func (r *Resolver) ClassifierChainFor(userID string) []string {
	prefs, ok, err := r.prefsFor(context.Background(), userID)
	if err != nil {
		r.log.WithError(err).WithField("userId", userID).Warn("classifier chain preferences lookup failed")
	}

	var out []string
	if ok && len(prefs.ClassifierChain) > 0 {
		out = append(out, prefs.ClassifierChain...)
	} else {
		out = append(out, localSentinel)
	}

	if !containsString(out, localSentinel) {
		out = append(out, localSentinel)
	}
	return out
}

// ResolveSentinel expands the "local" sentinel entry in a classifier chain
// to the configured safety-net provider ID, leaving every other entry
// untouched.
func ResolveSentinel(chain []string, localSafetyNetProvider string) []string {
	out := make([]string, 0, len(chain))
	for _, id := range chain {
		if id == localSentinel {
			out = append(out, localSafetyNetProvider)
			continue
		}
		out = append(out, id)
	}
	return out
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
