package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Local is a deterministic feature-hash embedder: tokens are FNV-hashed into
// a fixed number of buckets and the vector is L2-normalized. No model, no
// network; it keeps sync fully offline and its output stable across runs.
type Local struct {
	dims int
}

func NewLocal(dims int) *Local {
	return &Local{dims: dims}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Dimensions() int { return l.dims }

func (l *Local) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = l.embed(text)
	}
	return out, nil
}

func (l *Local) embed(text string) []float32 {
	vec := make([]float32, l.dims)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		bucket := int(sum % uint32(l.dims))
		// Half the hash space contributes negatively so vectors spread
		// across the sphere instead of clustering in one orthant.
		if sum&0x80000000 != 0 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}
