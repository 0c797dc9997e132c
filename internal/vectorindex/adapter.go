// Package vectorindex adapts the core's chunk/metadata model onto Qdrant,
// narrowed from the teacher's internal/storage/qdrant.go QdrantStore to
// the §4.H add_documents/delete_documents/similarity_search contract.
package vectorindex

import (
	"context"
	"fmt"
	"sort"

	"github.com/qdrant/go-client/qdrant"

	"mdvec-core/internal/config"
	"mdvec-core/internal/errors"
	"mdvec-core/internal/logging"
)

const defaultVectorSize = 1536

// Match is a single similarity_search hit.
type Match struct {
	ID       string
	Content  string
	Metadata map[string]interface{}
	Score    float64
}

// Filter restricts similarity_search to points whose metadata matches
// every key/value pair.
type Filter map[string]string

// Adapter is the Qdrant-backed vector index adapter. The caller constructs
// one Adapter instance and passes it to both the sync engine and the search
// coordinator for the process lifetime (SPEC_FULL.md open question iii).
type Adapter struct {
	client         *qdrant.Client
	collectionName string
	vectorSize     uint64
}

// New connects to Qdrant and ensures the backing collection exists.
func New(ctx context.Context, cfg config.QdrantConfig, collection string) (*Adapter, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   cfg.Host,
		Port:                   cfg.Port,
		APIKey:                 cfg.APIKey,
		UseTLS:                 cfg.UseTLS,
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindVectorIndexFailure, "failed to create qdrant client", err)
	}

	name := cfg.CollectionPrefix + collection
	a := &Adapter{client: client, collectionName: name, vectorSize: defaultVectorSize}

	collections, err := client.ListCollections(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.KindVectorIndexFailure, "failed to list qdrant collections", err)
	}
	exists := false
	for _, c := range collections {
		if c == name {
			exists = true
			break
		}
	}
	if !exists {
		if err := client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     a.vectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil {
			return nil, errors.Wrap(errors.KindVectorIndexFailure, fmt.Sprintf("failed to create collection %s", name), err)
		}
		logging.Info("created vector index collection", "collection", name)
	}

	return a, nil
}

// AddDocuments upserts points with their flattened metadata. ids, vectors,
// and metadatas must be parallel slices.
func (a *Adapter) AddDocuments(ctx context.Context, ids []string, vectors [][]float32, metadatas []map[string]interface{}) error {
	if len(ids) != len(vectors) || len(ids) != len(metadatas) {
		return errors.InvalidInput("ids, vectors, and metadatas must have equal length")
	}
	points := make([]*qdrant.PointStruct, len(ids))
	for i := range ids {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(ids[i]),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(FlattenMetadata(metadatas[i])),
		}
	}

	if _, err := a.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: a.collectionName,
		Points:         points,
	}); err != nil {
		return errors.Wrap(errors.KindVectorIndexFailure, "failed to upsert points", err)
	}
	return nil
}

// DeleteDocuments removes points by id. Deleting an id that does not exist
// is not an error.
func (a *Adapter) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}
	if _, err := a.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: a.collectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	}); err != nil {
		return errors.Wrap(errors.KindVectorIndexFailure, "failed to delete points", err)
	}
	return nil
}

// SimilaritySearch returns up to k matches at or above threshold,
// optionally restricted by filter, ordered by descending similarity.
func (a *Adapter) SimilaritySearch(ctx context.Context, queryVector []float32, k int, threshold float64, filter Filter) ([]Match, error) {
	req := &qdrant.QueryPoints{
		CollectionName: a.collectionName,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          qdrant.PtrOf(uint64(k)), //nolint:gosec // k is caller-bounded
		WithPayload:    qdrant.NewWithPayload(true),
		ScoreThreshold: qdrant.PtrOf(float32(threshold)),
	}
	if len(filter) > 0 {
		req.Filter = buildFilter(filter)
	}

	scored, err := a.client.Query(ctx, req)
	if err != nil {
		return nil, errors.Wrap(errors.KindVectorIndexFailure, "similarity search failed", err)
	}

	matches := make([]Match, 0, len(scored))
	for _, point := range scored {
		distance := float64(point.GetScore())
		similarity := distance
		if similarity < 0 {
			similarity = 0
		}
		payload := valueMapToMetadata(point.GetPayload())
		content, _ := payload["content"].(string)
		matches = append(matches, Match{
			ID:       pointIDToString(point.GetId()),
			Content:  content,
			Metadata: payload,
			Score:    similarity,
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches, nil
}

// DeleteCollection drops every vector the adapter manages, used on the
// §4.F force-delete path when embeddings must be fully regenerated.
func (a *Adapter) DeleteCollection(ctx context.Context) error {
	if err := a.client.DeleteCollection(ctx, a.collectionName); err != nil {
		return errors.Wrap(errors.KindVectorIndexFailure, "failed to delete collection", err)
	}
	return nil
}

// Close releases the underlying gRPC connection.
func (a *Adapter) Close() error {
	return a.client.Close()
}

func pointIDToString(id *qdrant.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func buildFilter(filter Filter) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for k, v := range filter {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   k,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

func valueMapToMetadata(payload map[string]*qdrant.Value) map[string]interface{} {
	result := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		switch {
		case v.GetStringValue() != "":
			result[k] = v.GetStringValue()
		case v.GetIntegerValue() != 0:
			result[k] = v.GetIntegerValue()
		case v.GetDoubleValue() != 0:
			result[k] = v.GetDoubleValue()
		case v.GetBoolValue():
			result[k] = true
		}
	}
	return result
}
