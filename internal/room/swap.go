package room

import "math/rand"

// SwapThought is one submitted thought offered to the engine.
type SwapThought struct {
	Content    string
	AuthorID   string
	AuthorName string
}

// SwapRecipient is one connected student eligible to receive a thought.
type SwapRecipient struct {
	ConnID string
	UserID string
}

// Assignment is what one recipient ends up holding after a swap.
type Assignment struct {
	Content    string
	AuthorID   string
	AuthorName string
}

// Swap assigns exactly one thought to every recipient. Best effort, no
// recipient gets their own thought: the shuffle is retried up to five times,
// then offending positions are repaired pairwise. With a single distinct
// author the constraint is unsatisfiable and the pool is delivered as is.
// When thoughts are fewer than recipients the pool wraps around; surplus
// thoughts go undelivered this round.
func Swap(thoughts []SwapThought, recipients []SwapRecipient, rng *rand.Rand) map[string]Assignment {
	result := make(map[string]Assignment, len(recipients))
	if len(thoughts) == 0 || len(recipients) == 0 {
		return result
	}

	pool := make([]SwapThought, 0, len(recipients))
	for len(pool) < len(recipients) {
		pool = append(pool, thoughts...)
	}
	pool = pool[:len(recipients)]

	authors := make(map[string]struct{})
	for _, t := range thoughts {
		authors[t.AuthorID] = struct{}{}
	}

	shuffle := func() {
		rng.Shuffle(len(pool), func(i, j int) {
			pool[i], pool[j] = pool[j], pool[i]
		})
	}

	shuffle()
	if len(authors) >= 2 {
		for retry := 0; retry < 5 && countOwn(pool, recipients) > 0; retry++ {
			shuffle()
		}
		repairOwn(pool, recipients)
	}

	for i, r := range recipients {
		result[r.ConnID] = Assignment{
			Content:    pool[i].Content,
			AuthorID:   pool[i].AuthorID,
			AuthorName: pool[i].AuthorName,
		}
	}
	return result
}

func countOwn(pool []SwapThought, recipients []SwapRecipient) int {
	n := 0
	for i := range recipients {
		if pool[i].AuthorID == recipients[i].UserID {
			n++
		}
	}
	return n
}

// repairOwn swaps each offending position with a non-conflicting partner.
// Some positions may stay in violation when no partner exists; callers
// accept that as the best-effort bound.
func repairOwn(pool []SwapThought, recipients []SwapRecipient) {
	for i := range recipients {
		if pool[i].AuthorID != recipients[i].UserID {
			continue
		}
		for j := range recipients {
			if j == i {
				continue
			}
			if pool[j].AuthorID != recipients[i].UserID && pool[i].AuthorID != recipients[j].UserID {
				pool[i], pool[j] = pool[j], pool[i]
				break
			}
		}
	}
}

// pickEligible returns a uniformly random thought satisfying the filter, or
// false when none qualifies.
func pickEligible(thoughts []SwapThought, rng *rand.Rand, ok func(SwapThought) bool) (SwapThought, bool) {
	eligible := make([]SwapThought, 0, len(thoughts))
	for _, t := range thoughts {
		if ok(t) {
			eligible = append(eligible, t)
		}
	}
	if len(eligible) == 0 {
		return SwapThought{}, false
	}
	return eligible[rng.Intn(len(eligible))], true
}
