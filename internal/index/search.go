package index

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// EncodeVector packs an embedding as little-endian float32 bytes.
func EncodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(b []byte) []float32 {
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec
}

// CosineSimilarity over two equal-length vectors; zero when either is empty
// or degenerate.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SearchResult is one match with its relevance score.
type SearchResult struct {
	Document Document
	Score    float64
}

// Search does a LIKE match over page content, optionally re-ranked by cosine
// similarity against queryVec when stored embeddings are present. It exists
// so the index file is inspectable without external tooling, not as a
// serving-path feature.
func (s *Store) Search(ctx context.Context, indexRef, query string, queryVec []float32, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT doc_id, index_ref, page_content, embedding, run_id
FROM documents
WHERE index_ref = ? AND page_content LIKE ?
LIMIT ?`, indexRef, "%"+query+"%", limit*10)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", indexRef, err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var doc Document
		var blob []byte
		if err := rows.Scan(&doc.DocID, &doc.IndexRef, &doc.PageContent, &blob, &doc.RunID); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		if len(blob) > 0 {
			doc.Embedding = DecodeVector(blob)
		}
		score := 1.0
		if len(queryVec) > 0 && len(doc.Embedding) > 0 {
			score = CosineSimilarity(queryVec, doc.Embedding)
		}
		results = append(results, SearchResult{Document: doc, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
