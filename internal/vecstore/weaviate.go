package vecstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	wv "github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	wm "github.com/weaviate/weaviate/entities/models"

	"github.com/clinisights/dx-core/internal/config"
	"github.com/clinisights/dx-core/internal/models"
	"github.com/clinisights/dx-core/pkg/logger"
)

// ageRangeAbsent encodes "no typical age range" in filterable properties.
const ageRangeAbsent = -1

// nsConditions seeds deterministic UUIDv5 object IDs so reingest upserts
// instead of duplicating points.
var nsConditions = uuid.NewV5(uuid.NamespaceURL, "github.com/clinisights/dx-core/conditions")

var dimFromDescription = regexp.MustCompile(`dim=(\d+)`)

// WeaviateStore implements VectorStore over the official weaviate v5
// client. The condition record is stored as a JSON text payload plus a
// small set of filterable scalar properties.
type WeaviateStore struct {
	client *wv.Client
	class  string
	retry  retryPolicy
	logger logger.Logger
}

// NewWeaviateStore builds the adapter from configuration. The configured
// collection name (snake_case) maps to a Weaviate class name.
func NewWeaviateStore(cfg config.WeaviateConfig, log logger.Logger) (*WeaviateStore, error) {
	wcfg := wv.Config{
		Scheme: cfg.Scheme,
		Host:   cfg.Host,
	}
	if cfg.APIKey != "" {
		wcfg.AuthConfig = auth.ApiKey{Value: cfg.APIKey}
	}
	client, err := wv.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}
	return &WeaviateStore{
		client: client,
		class:  classNameFor(cfg.Collection),
		retry:  newRetryPolicy(cfg.RetryAttempts, time.Duration(cfg.RetryBackoffMS)*time.Millisecond),
		logger: log,
	}, nil
}

// classNameFor maps the configured collection name to a GraphQL-safe
// Weaviate class name: medical_conditions -> MedicalConditions.
func classNameFor(collection string) string {
	if collection == "" {
		collection = "medical_conditions"
	}
	parts := strings.Split(collection, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "")
}

func objectIDFor(conditionID string) string {
	return uuid.NewV5(nsConditions, conditionID).String()
}

// EnsureCollection creates the class with cosine distance, or validates
// an existing one against the configured dimension.
func (s *WeaviateStore) EnsureCollection(ctx context.Context, dim int) error {
	existing, err := s.client.Schema().ClassGetter().WithClassName(s.class).Do(ctx)
	if err == nil && existing != nil {
		return s.validateClass(existing, dim)
	}

	classDef := &wm.Class{
		Class:       s.class,
		Description: fmt.Sprintf("Canonical medical condition embeddings (dim=%d, distance=cosine)", dim),
		Vectorizer:  "none",
		VectorIndexConfig: map[string]interface{}{
			"distance": "cosine",
		},
		Properties: []*wm.Property{
			{Name: "conditionId", DataType: []string{"string"}},
			{Name: "name", DataType: []string{"string"}},
			{Name: "payload", DataType: []string{"text"}}, // full condition JSON
			{Name: "isRareDisease", DataType: []string{"boolean"}},
			{Name: "sexPredilection", DataType: []string{"string"}},
			{Name: "urgencyLevel", DataType: []string{"string"}},
			{Name: "prevalenceBucket", DataType: []string{"string"}},
			{Name: "source", DataType: []string{"string"}},
			{Name: "ageMin", DataType: []string{"int"}},
			{Name: "ageMax", DataType: []string{"int"}},
		},
	}

	var createdElsewhere bool
	err = s.retry.do(ctx, "ensure_collection", func() error {
		cerr := s.client.Schema().ClassCreator().WithClass(classDef).Do(ctx)
		if cerr != nil && strings.Contains(cerr.Error(), "already exists") {
			createdElsewhere = true
			return nil
		}
		return cerr
	})
	if err != nil {
		return err
	}
	if createdElsewhere {
		// Another writer won the race; its class must still match ours.
		existing, gerr := s.client.Schema().ClassGetter().WithClassName(s.class).Do(ctx)
		if gerr != nil {
			return fmt.Errorf("fetching concurrently created class %s: %w", s.class, gerr)
		}
		if verr := s.validateClass(existing, dim); verr != nil {
			return verr
		}
	}
	s.logger.Info("Vector collection ready", "class", s.class, "dim", dim)
	return nil
}

// validateClass checks a pre-existing class for dimension and distance
// compatibility. The dimension is recorded in the class description
// because Weaviate does not constrain bring-your-own vectors.
func (s *WeaviateStore) validateClass(class *wm.Class, dim int) error {
	if vic, ok := class.VectorIndexConfig.(map[string]interface{}); ok {
		if dist, ok := vic["distance"].(string); ok && dist != "" && dist != "cosine" {
			return fmt.Errorf("%w: collection %s uses distance %q, expected cosine",
				models.ErrSchemaMismatch, s.class, dist)
		}
	}
	if m := dimFromDescription.FindStringSubmatch(class.Description); len(m) == 2 {
		existing, _ := strconv.Atoi(m[1])
		if existing != dim {
			return fmt.Errorf("%w: collection %s has dimension %d, expected %d",
				models.ErrSchemaMismatch, s.class, existing, dim)
		}
	}
	return nil
}

// Upsert writes points with deterministic object IDs; an existing object
// for the same condition is replaced.
func (s *WeaviateStore) Upsert(ctx context.Context, points []Point) error {
	for _, p := range points {
		if p.Condition == nil || p.Condition.ConditionID == "" {
			return fmt.Errorf("%w: point without condition id", models.ErrInvalidInput)
		}
		props, err := conditionProps(p.Condition)
		if err != nil {
			return err
		}
		objID := objectIDFor(p.Condition.ConditionID)

		err = s.retry.do(ctx, "upsert", func() error {
			_, cerr := s.client.Data().Creator().
				WithClassName(s.class).
				WithID(objID).
				WithProperties(props).
				WithVector(p.Vector).
				Do(ctx)
			if cerr != nil && strings.Contains(cerr.Error(), "already exists") {
				return s.client.Data().Updater().
					WithClassName(s.class).
					WithID(objID).
					WithProperties(props).
					WithVector(p.Vector).
					Do(ctx)
			}
			return cerr
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func conditionProps(c *models.Condition) (map[string]interface{}, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal condition %s: %w", c.ConditionID, err)
	}
	ageMin, ageMax := ageRangeAbsent, ageRangeAbsent
	if c.TypicalAgeRange != nil {
		ageMin, ageMax = c.TypicalAgeRange.Min, c.TypicalAgeRange.Max
	}
	return map[string]interface{}{
		"conditionId":      c.ConditionID,
		"name":             c.Name,
		"payload":          string(payload),
		"isRareDisease":    c.IsRareDisease,
		"sexPredilection":  string(c.SexPredilection),
		"urgencyLevel":     string(c.UrgencyLevel),
		"prevalenceBucket": string(c.PrevalenceBucket),
		"source":           string(c.Source),
		"ageMin":           ageMin,
		"ageMax":           ageMax,
	}, nil
}

// Search runs a nearVector query with the compiled filter and returns
// hits ordered by certainty. Weaviate defines certainty as (1+cosine)/2,
// the same [0,1] score mapping the engine uses.
func (s *WeaviateStore) Search(ctx context.Context, vector []float32, topK int, filter *Filter) ([]SearchResult, error) {
	near := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	q := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithNearVector(near).
		WithLimit(topK).
		WithFields(
			graphql.Field{Name: "payload"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
		)
	if where := compileFilter(filter); where != nil {
		q = q.WithWhere(where)
	}

	// Search metrics are recorded by the retriever, which knows the
	// sub-query label; recording here as well would double-count.
	var resp *wm.GraphQLResponse
	err := s.retry.do(ctx, "search", func() error {
		r, gerr := q.Do(ctx)
		if gerr != nil {
			return gerr
		}
		if len(r.Errors) > 0 {
			return fmt.Errorf("graphql error: %s", r.Errors[0].Message)
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.parseSearchResponse(resp)
}

// compileFilter maps the typed filter to Weaviate's where clause. Sex
// compatibility and absent age ranges expand to OR branches.
func compileFilter(f *Filter) *filters.WhereBuilder {
	if f == nil {
		return nil
	}
	var operands []*filters.WhereBuilder

	if f.RareOnly != nil {
		operands = append(operands, filters.Where().
			WithPath([]string{"isRareDisease"}).
			WithOperator(filters.Equal).
			WithValueBoolean(*f.RareOnly))
	}
	if f.Sex == models.SexMale || f.Sex == models.SexFemale {
		operands = append(operands, filters.Where().
			WithOperator(filters.Or).
			WithOperands([]*filters.WhereBuilder{
				filters.Where().WithPath([]string{"sexPredilection"}).
					WithOperator(filters.Equal).WithValueString(string(models.PredilectionAny)),
				filters.Where().WithPath([]string{"sexPredilection"}).
					WithOperator(filters.Equal).WithValueString(string(f.Sex)),
			}))
	}
	if f.PatientAge != nil {
		age := int64(*f.PatientAge)
		operands = append(operands, filters.Where().
			WithOperator(filters.Or).
			WithOperands([]*filters.WhereBuilder{
				filters.Where().WithPath([]string{"ageMin"}).
					WithOperator(filters.Equal).WithValueInt(ageRangeAbsent),
				filters.Where().WithOperator(filters.And).
					WithOperands([]*filters.WhereBuilder{
						filters.Where().WithPath([]string{"ageMin"}).
							WithOperator(filters.LessThanEqual).WithValueInt(age),
						filters.Where().WithPath([]string{"ageMax"}).
							WithOperator(filters.GreaterThanEqual).WithValueInt(age),
					}),
			}))
	}

	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	default:
		return filters.Where().WithOperator(filters.And).WithOperands(operands)
	}
}

func (s *WeaviateStore) parseSearchResponse(resp *wm.GraphQLResponse) ([]SearchResult, error) {
	get, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: malformed search response", models.ErrIndexUnavailable)
	}
	rows, ok := get[s.class].([]interface{})
	if !ok {
		return nil, nil
	}

	results := make([]SearchResult, 0, len(rows))
	for _, row := range rows {
		obj, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		payload, _ := obj["payload"].(string)
		if payload == "" {
			s.logger.Warn("Search hit without payload; skipping")
			continue
		}
		var cond models.Condition
		if err := json.Unmarshal([]byte(payload), &cond); err != nil {
			s.logger.Warn("Search hit payload unmarshalable; skipping", "error", err)
			continue
		}
		score := 0.0
		if add, ok := obj["_additional"].(map[string]interface{}); ok {
			if c, ok := add["certainty"].(float64); ok {
				score = c
			}
		}
		results = append(results, SearchResult{Condition: &cond, Score: score})
	}
	return results, nil
}

// Count aggregates the number of stored conditions.
func (s *WeaviateStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.retry.do(ctx, "count", func() error {
		resp, gerr := s.client.GraphQL().Aggregate().
			WithClassName(s.class).
			WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
			Do(ctx)
		if gerr != nil {
			return gerr
		}
		if len(resp.Errors) > 0 {
			return fmt.Errorf("graphql error: %s", resp.Errors[0].Message)
		}
		agg, ok := resp.Data["Aggregate"].(map[string]interface{})
		if !ok {
			return fmt.Errorf("malformed aggregate response")
		}
		rows, ok := agg[s.class].([]interface{})
		if !ok || len(rows) == 0 {
			count = 0
			return nil
		}
		obj, _ := rows[0].(map[string]interface{})
		meta, _ := obj["meta"].(map[string]interface{})
		if c, ok := meta["count"].(float64); ok {
			count = int(c)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Ready probes the backend readiness endpoint.
func (s *WeaviateStore) Ready(ctx context.Context) error {
	ok, err := s.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("%w: backend not ready", models.ErrIndexUnavailable)
	}
	return nil
}
