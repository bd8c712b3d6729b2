package diagnosis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/clinisights/dx-core/internal/config"
	"github.com/clinisights/dx-core/internal/encoder"
	"github.com/clinisights/dx-core/internal/models"
	"github.com/clinisights/dx-core/internal/monitoring"
	"github.com/clinisights/dx-core/internal/vecstore"
	"github.com/clinisights/dx-core/pkg/cache"
	"github.com/clinisights/dx-core/pkg/logger"
)

// Sub-query names, also used as metric labels.
const (
	queryBroad   = "broad"
	queryFocused = "focused"
	queryRare    = "rare"
)

// Candidate is a fused retrieval hit prior to clinical scoring.
type Candidate struct {
	Condition *models.Condition
	// VectorSimilarity is the best per-query cosine seen, mapped to [0,1].
	VectorSimilarity float64
	RRFScore         float64
	SubQueries       []string
	BestRank         int
}

// RetrievalOutcome carries the fused candidates plus enough failure
// detail for the service to decide fail versus degrade.
type RetrievalOutcome struct {
	Candidates    []*Candidate
	FailedQueries []string
	// EncoderFailed is set when at least one sub-query could not encode its
	// text; queries that proceeded did so on cached vectors.
	EncoderFailed bool
}

// Partial reports whether some but not all sub-queries failed.
func (o *RetrievalOutcome) Partial() bool {
	return len(o.FailedQueries) > 0 && len(o.Candidates) > 0
}

// Retriever runs the three retrieval sub-queries and fuses them with
// reciprocal rank fusion. Sub-queries run in parallel bounded by a
// process-wide semaphore sized to the index client's concurrency limit.
type Retriever struct {
	store    vecstore.VectorStore
	embedder encoder.Embedder
	cache    cache.EmbeddingCache
	sem      *semaphore.Weighted
	cfg      config.RetrieveConfig
	timeouts config.TimeoutConfig
	logger   logger.Logger
}

func NewRetriever(
	store vecstore.VectorStore,
	emb encoder.Embedder,
	embCache cache.EmbeddingCache,
	cfg config.RetrieveConfig,
	timeouts config.TimeoutConfig,
	concurrency int,
	log logger.Logger,
) *Retriever {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Retriever{
		store:    store,
		embedder: emb,
		cache:    embCache,
		sem:      semaphore.NewWeighted(int64(concurrency)),
		cfg:      cfg,
		timeouts: timeouts,
		logger:   log,
	}
}

type subQuery struct {
	name   string
	text   string
	topK   int
	filter *vecstore.Filter
	weight float64
}

type subQueryResult struct {
	name    string
	weight  float64
	results []vecstore.SearchResult
}

// Retrieve produces up to top_k_candidates fused candidates for a case.
// Individual sub-query failures are recorded, not fatal; the call errors
// only when every sub-query failed.
func (r *Retriever) Retrieve(ctx context.Context, c *models.PatientCase, includeRare bool) (*RetrievalOutcome, error) {
	descriptions := make([]string, 0, len(c.Symptoms))
	for _, s := range c.Symptoms {
		descriptions = append(descriptions, s.Description)
	}
	broadText := encoder.Canonicalize(c.ChiefComplaint + " " + strings.Join(descriptions, " "))
	focusedText := encoder.Canonicalize(c.ChiefComplaint)

	queries := []subQuery{
		{name: queryBroad, text: broadText, topK: r.cfg.BroadTopK, weight: r.cfg.BroadWeight},
	}
	if focusedText != "" {
		queries = append(queries, subQuery{
			name: queryFocused, text: focusedText, topK: r.cfg.FocusedTopK, weight: r.cfg.FocusedWeight,
		})
	}
	if includeRare {
		queries = append(queries, subQuery{
			name: queryRare, text: broadText, topK: r.cfg.RareTopK,
			filter: vecstore.RareOnly(), weight: r.cfg.RareWeight,
		})
	}

	// Encode the distinct texts up front; the rare query reuses the broad
	// vector so at most two encoder calls happen per case.
	vectors, encoderFailed := r.resolveVectors(ctx, broadText, focusedText)

	// Partition before spawning anything so FailedQueries is complete
	// prior to any concurrent writer existing.
	outcome := &RetrievalOutcome{EncoderFailed: encoderFailed}
	runnable := queries[:0]
	for _, q := range queries {
		if _, ok := vectors[q.text]; !ok {
			outcome.FailedQueries = append(outcome.FailedQueries, q.name)
			continue
		}
		runnable = append(runnable, q)
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		fetched []subQueryResult
	)
	for _, q := range runnable {
		vec := vectors[q.text]
		wg.Add(1)
		go func(q subQuery, vec []float32) {
			defer wg.Done()
			results, err := r.runSubQuery(ctx, q, vec)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.logger.Warn("Retrieval sub-query failed", "query", q.name, "error", err)
				outcome.FailedQueries = append(outcome.FailedQueries, q.name)
				return
			}
			fetched = append(fetched, subQueryResult{name: q.name, weight: q.weight, results: results})
		}(q, vec)
	}
	wg.Wait()

	if len(fetched) == 0 {
		return outcome, fmt.Errorf("%w: all retrieval sub-queries failed", models.ErrIndexUnavailable)
	}

	outcome.Candidates = r.fuse(fetched, c)
	return outcome, nil
}

// resolveVectors returns the vectors for the distinct query texts,
// consulting the embedding cache first and writing back on miss.
func (r *Retriever) resolveVectors(ctx context.Context, texts ...string) (map[string][]float32, bool) {
	vectors := make(map[string][]float32, len(texts))
	encoderFailed := false
	for _, text := range texts {
		if text == "" {
			continue
		}
		if _, done := vectors[text]; done {
			continue
		}
		key := cache.Key(r.embedder.ModelID(), text)

		cacheCtx, cancel := context.WithTimeout(ctx, time.Duration(r.timeouts.CacheMS)*time.Millisecond)
		vec, hit := r.cache.Get(cacheCtx, key)
		cancel()
		if hit {
			vectors[text] = vec
			continue
		}

		encCtx, cancel := context.WithTimeout(ctx, time.Duration(r.timeouts.EncoderMS)*time.Millisecond)
		vec, err := r.embedder.Encode(encCtx, text)
		cancel()
		if err != nil {
			r.logger.Warn("Query encoding failed", "error", err)
			encoderFailed = true
			continue
		}
		vectors[text] = vec

		setCtx, cancel := context.WithTimeout(ctx, time.Duration(r.timeouts.CacheMS)*time.Millisecond)
		r.cache.Set(setCtx, key, vec)
		cancel()
	}
	return vectors, encoderFailed
}

func (r *Retriever) runSubQuery(ctx context.Context, q subQuery, vec []float32) ([]vecstore.SearchResult, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	searchCtx, cancel := context.WithTimeout(ctx, time.Duration(r.timeouts.SearchMS)*time.Millisecond)
	defer cancel()

	start := time.Now()
	results, err := r.store.Search(searchCtx, vec, q.topK, q.filter)
	monitoring.RecordVectorSearch(q.name, time.Since(start), err == nil)
	return results, err
}

// fuse merges ranked sub-query lists with weighted reciprocal rank
// fusion, applying the demographic pre-filter first. Fusion is
// order-independent: the outcome depends only on each list's ranking.
func (r *Retriever) fuse(lists []subQueryResult, c *models.PatientCase) []*Candidate {
	// Deterministic fusion regardless of goroutine completion order.
	sort.Slice(lists, func(i, j int) bool { return lists[i].name < lists[j].name })

	byID := make(map[string]*Candidate)
	for _, list := range lists {
		rank := 0
		for _, hit := range list.results {
			if r.dropForDemographics(hit.Condition, c) {
				continue
			}
			rank++
			cand, ok := byID[hit.Condition.ConditionID]
			if !ok {
				cand = &Candidate{Condition: hit.Condition, BestRank: rank}
				byID[hit.Condition.ConditionID] = cand
			}
			cand.RRFScore += list.weight * (1.0 / float64(r.cfg.RRFK+rank))
			if hit.Score > cand.VectorSimilarity {
				cand.VectorSimilarity = hit.Score
			}
			if rank < cand.BestRank {
				cand.BestRank = rank
			}
			cand.SubQueries = append(cand.SubQueries, list.name)
		}
	}

	fused := make([]*Candidate, 0, len(byID))
	for _, cand := range byID {
		fused = append(fused, cand)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].RRFScore != fused[j].RRFScore {
			return fused[i].RRFScore > fused[j].RRFScore
		}
		if fused[i].VectorSimilarity != fused[j].VectorSimilarity {
			return fused[i].VectorSimilarity > fused[j].VectorSimilarity
		}
		return fused[i].Condition.ConditionID < fused[j].Condition.ConditionID
	})

	limit := r.cfg.TopKCandidates
	if r.cfg.MaxFusedCandidates > 0 && r.cfg.MaxFusedCandidates < limit {
		limit = r.cfg.MaxFusedCandidates
	}
	if len(fused) > limit {
		fused = fused[:limit]
	}
	return fused
}

// dropForDemographics removes candidates whose age range excludes the
// patient by more than the tolerance, or whose sex predilection
// contradicts the patient's sex.
func (r *Retriever) dropForDemographics(cond *models.Condition, c *models.PatientCase) bool {
	if !cond.SexPredilection.Compatible(c.Sex) {
		return true
	}
	if cond.TypicalAgeRange != nil &&
		cond.TypicalAgeRange.DistanceFrom(c.Age) > r.cfg.AgeToleranceYrs {
		return true
	}
	return false
}
