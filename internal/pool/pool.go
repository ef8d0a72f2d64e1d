// Package pool resolves question pools and shuffling into the fixed, ordered
// question list an attempt is graded against.
package pool

import (
	"hash/fnv"
	"math/rand"
	"sort"

	"github.com/mind-engage/mindengage-grading/internal/errs"
	"github.com/mind-engage/mindengage-grading/internal/question"
)

// Policy selects and orders questions for one attempt. The zero Policy keeps
// every question in authored order.
//
// PerDifficulty and PerBloom pick that many questions from each bucket; Size
// then caps the total. Questions without the bucket's tag are never drawn by
// that bucket.
type Policy struct {
	Shuffle       bool                        `json:"shuffle,omitempty"`
	Size          int                         `json:"size,omitempty" validate:"gte=0"`
	PerDifficulty map[question.Difficulty]int `json:"per_difficulty,omitempty"`
	PerBloom      map[question.BloomLevel]int `json:"per_bloom,omitempty"`
}

func (p Policy) IsZero() bool {
	return !p.Shuffle && p.Size == 0 && len(p.PerDifficulty) == 0 && len(p.PerBloom) == 0
}

// Seed derives a stable seed from an attempt id.
func Seed(attemptID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(attemptID))
	return int64(h.Sum64() & 0x7fffffffffffffff)
}

// Resolve applies p to questions deterministically for seed.
func Resolve(questions []question.Question, p Policy, seed int64) ([]question.Question, error) {
	if p.Size < 0 {
		return nil, errs.InvalidAssessment("pool size %d is negative", p.Size)
	}
	rng := rand.New(rand.NewSource(seed))

	selected := questions
	if len(p.PerDifficulty) > 0 || len(p.PerBloom) > 0 {
		var err error
		selected, err = drawBuckets(questions, p, rng)
		if err != nil {
			return nil, err
		}
	}
	if p.Size > 0 {
		if p.Size > len(selected) {
			return nil, errs.InvalidAssessment("pool size %d exceeds %d available questions", p.Size, len(selected))
		}
		if len(selected) > p.Size {
			idx := rng.Perm(len(selected))[:p.Size]
			// keep authored order unless shuffling
			sort.Ints(idx)
			picked := make([]question.Question, 0, p.Size)
			for _, i := range idx {
				picked = append(picked, selected[i])
			}
			selected = picked
		}
	}

	out := make([]question.Question, len(selected))
	copy(out, selected)
	if p.Shuffle {
		rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	}
	return out, nil
}

// drawBuckets draws the requested count from each difficulty and bloom
// bucket without replacement, then restores authored order.
func drawBuckets(questions []question.Question, p Policy, rng *rand.Rand) ([]question.Question, error) {
	taken := make([]bool, len(questions))

	draw := func(label string, want int, match func(question.Question) bool) error {
		if want < 0 {
			return errs.InvalidAssessment("negative count for %s", label)
		}
		var candidates []int
		for i, q := range questions {
			if !taken[i] && match(q) {
				candidates = append(candidates, i)
			}
		}
		if want > len(candidates) {
			return errs.InvalidAssessment("pool wants %d %s questions, only %d available", want, label, len(candidates))
		}
		rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
		for _, i := range candidates[:want] {
			taken[i] = true
		}
		return nil
	}

	// Map iteration order is random; sort bucket names for determinism.
	diffs := make([]string, 0, len(p.PerDifficulty))
	for d := range p.PerDifficulty {
		diffs = append(diffs, string(d))
	}
	sort.Strings(diffs)
	for _, d := range diffs {
		d := question.Difficulty(d)
		if err := draw(string(d), p.PerDifficulty[d], func(q question.Question) bool { return q.Meta.Difficulty == d }); err != nil {
			return nil, err
		}
	}
	blooms := make([]string, 0, len(p.PerBloom))
	for b := range p.PerBloom {
		blooms = append(blooms, string(b))
	}
	sort.Strings(blooms)
	for _, b := range blooms {
		b := question.BloomLevel(b)
		if err := draw(string(b), p.PerBloom[b], func(q question.Question) bool { return q.Meta.BloomLevel == b }); err != nil {
			return nil, err
		}
	}

	out := make([]question.Question, 0, len(questions))
	for i, q := range questions {
		if taken[i] {
			out = append(out, q)
		}
	}
	return out, nil
}
