package compressor

import (
	"hash/fnv"
	"math"
	"strings"
)

// Dim is the expectation vector dimensionality. Any fixed positive integer
// is spec-compliant (spec.md §9 Open Questions); 768 matches the source
// convention the spec attests to.
const Dim = 768

// hashEmbed projects text into a Dim-dimensional feature vector using the
// hashing trick over word 1/2/3-grams: each n-gram hashes (FNV-1a, stdlib —
// no example repo in this corpus shows a different deterministic hashed
// embedding scheme, so the standard library's non-cryptographic hash is used
// here rather than a third-party one; see DESIGN.md) to a bucket in [0,
// Dim), and that bucket's weight is incremented. The result is NOT
// normalized — callers normalize after combining multiple segment vectors.
func hashEmbed(text string) []float64 {
	vec := make([]float64, Dim)
	words := tokenizeWords(text)
	if len(words) == 0 {
		return vec
	}

	for n := 1; n <= 3; n++ {
		for i := 0; i+n <= len(words); i++ {
			gram := strings.Join(words[i:i+n], "_")
			idx := bucketOf(gram)
			vec[idx] += 1.0 / float64(n) // longer n-grams get slightly less weight
		}
	}
	return vec
}

func bucketOf(gram string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(gram))
	return int(h.Sum64() % uint64(Dim))
}

func tokenizeWords(text string) []string {
	lower := strings.ToLower(text)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= '0' && r <= '9':
			return false
		default:
			return true
		}
	})
	return fields
}

// cosineSim returns the cosine similarity between two vectors of equal
// length, clamped to [0, 1] (negative similarity is treated as zero
// relevance — the relevance score is defined on [0,1] by spec.md §3).
func cosineSim(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// normalizeL2 returns the L2-normalized copy of v, or a zero vector of the
// same length if v is all zeros (spec.md §4.1 "Expectation vector" /
// §4.1 Failure modes).
func normalizeL2(v []float64) []float64 {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	out := make([]float64, len(v))
	if sumSq == 0 {
		return out
	}
	norm := math.Sqrt(sumSq)
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
