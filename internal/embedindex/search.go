package embedindex

import (
	"context"
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/EricBintner/codrag/internal/repopolicy"
)

var keywordTokenRe = regexp.MustCompile(`[A-Za-z0-9_./-]{3,}`)

// keywordBoosts implements spec.md §4.3 step 3: +0.03 per distinct query
// token of length >= 3 appearing as a lowercase substring of a chunk's
// source_path or section, capped at 0.25 per chunk.
func keywordBoosts(query string, docs []Document) []float64 {
	tokens := keywordTokenRe.FindAllString(strings.ToLower(query), -1)
	if len(tokens) == 0 {
		return make([]float64, len(docs))
	}
	uniq := map[string]bool{}
	for _, t := range tokens {
		uniq[t] = true
	}

	out := make([]float64, len(docs))
	for i, d := range docs {
		score := 0.0
		fields := []string{strings.ToLower(d.SourcePath), strings.ToLower(d.Section)}
		for t := range uniq {
			for _, f := range fields {
				if f != "" && strings.Contains(f, t) {
					score += 0.03
					break
				}
			}
		}
		if score > 0.25 {
			score = 0.25
		}
		out[i] = score
	}
	return out
}

// ftsBoosts implements spec.md §4.3 step 4: query the keyword facility for
// up to limit (chunk_id, rank) rows and apply boost = 0.35/(1+max(0,rank)),
// taking the max if a chunk is returned more than once.
func ftsBoosts(ftsPath, query string, docs []Document, limit int) []float64 {
	out := make([]float64, len(docs))
	rows := queryFTS(ftsPath, query, limit)
	if len(rows) == 0 {
		return out
	}
	idByID := make(map[string]int, len(docs))
	for i, d := range docs {
		idByID[d.ID] = i
	}
	for _, r := range rows {
		i, ok := idByID[r.ChunkID]
		if !ok {
			continue
		}
		rank := r.Rank
		if rank < 0 {
			rank = 0
		}
		boost := 0.35 / (1.0 + rank)
		if boost > out[i] {
			out[i] = boost
		}
	}
	return out
}

func cosine(query []float32, row []float32, queryNorm float64) float64 {
	var dot float64
	var rowNormSq float64
	for i, v := range row {
		dot += float64(v) * float64(query[i])
		rowNormSq += float64(v) * float64(v)
	}
	denom := math.Sqrt(rowNormSq) * queryNorm
	if denom == 0 {
		denom = 1e-8
	}
	return dot / denom
}

func vectorNorm(v []float32) float64 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	return math.Sqrt(sumSq)
}

// SearchOptions carries the tunables spec.md §4.3 names beyond the raw
// query/k/min_score triple.
type SearchOptions struct {
	K                  int
	MinScore           float64
	Primer             *repopolicy.PrimerConfig
	ExcludePrimerFiles bool
}

// Search performs spec.md §4.3's full hybrid scoring pipeline: cosine
// similarity, keyword boost, FTS boost, role/intent reweighting, and an
// optional primer boost, returning the top K results above MinScore with
// ties broken by original chunk insertion order.
func (idx *Index) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	idx.mu.RLock()
	docs := idx.documents
	vectors := idx.vectorRows()
	roleWeights := idx.manifest.Config.RoleWeights
	loaded := idx.loaded
	idx.mu.RUnlock()

	if !loaded || len(docs) == 0 {
		return nil, nil
	}

	result, err := idx.Provider.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	qNorm := vectorNorm(result.Vector)
	if qNorm == 0 {
		return nil, nil
	}

	k := opts.K
	if k <= 0 {
		k = 8
	}

	scores := make([]float64, len(docs))
	for i, row := range vectors {
		scores[i] = cosine(result.Vector, row, qNorm)
	}

	kb := keywordBoosts(query, docs)
	limit := 4 * k
	if limit < 10 {
		limit = 10
	}
	fb := ftsBoosts(idx.ftsPath(), query, docs, limit)

	intent := ClassifyIntent(query)
	for i := range docs {
		scores[i] += kb[i]
		scores[i] += fb[i]

		role := docs[i].Role
		roleWeight := 1.0
		if roleWeights != nil {
			if w, ok := roleWeights[string(role)]; ok {
				roleWeight = w
			}
		}
		scores[i] *= roleWeight * intentMultiplier(intent, role)

		if opts.Primer != nil && opts.Primer.Enabled {
			base := filepath.Base(docs[i].SourcePath)
			for _, name := range opts.Primer.Filenames {
				if base == name {
					scores[i] += opts.Primer.ScoreBoost
					break
				}
			}
		}
	}

	order := make([]int, len(docs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	var out []SearchResult
	for _, i := range order {
		if scores[i] < opts.MinScore {
			break
		}
		if opts.ExcludePrimerFiles && opts.Primer != nil {
			base := filepath.Base(docs[i].SourcePath)
			isPrimer := false
			for _, name := range opts.Primer.Filenames {
				if base == name {
					isPrimer = true
					break
				}
			}
			if isPrimer {
				continue
			}
		}
		out = append(out, SearchResult{Document: docs[i], Score: scores[i]})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}
