// Package memory persists conversation memories in a vector store, scoped
// strictly to the owning context.
package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/conductor-ai/conductor/internal/config"
	"github.com/conductor-ai/conductor/pkg/models"
)

// VectorClient abstracts the vector database. The production implementation
// wraps qdrant; tests use an in-process fake.
type VectorClient interface {
	EnsureCollection(ctx context.Context, name string, dimension int) error
	Upsert(ctx context.Context, collection string, record models.MemoryRecord, vector []float32) error
	Search(ctx context.Context, collection string, vector []float32, filter SearchFilter, limit int) ([]models.MemoryResult, error)
	DeleteByContext(ctx context.Context, collection, contextID string) error
	Close() error
}

// SearchFilter restricts a vector search. ContextID is always required.
type SearchFilter struct {
	ContextID      string
	ConversationID string
}

// QdrantClient implements VectorClient on a qdrant instance.
type QdrantClient struct {
	client *qdrant.Client
}

// NewQdrantClient connects to qdrant.
func NewQdrantClient(cfg config.QdrantConfig) (*QdrantClient, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant: %w", err)
	}
	return &QdrantClient{client: client}, nil
}

func (q *QdrantClient) EnsureCollection(ctx context.Context, name string, dimension int) error {
	exists, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %q: %w", name, err)
	}
	if exists {
		return nil
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("create collection %q: %w", name, err)
	}
	return nil
}

func (q *QdrantClient) Upsert(ctx context.Context, collection string, record models.MemoryRecord, vector []float32) error {
	fields := map[string]any{
		"context_id": record.ContextID,
		"text":       record.Text,
	}
	if record.ConversationID != "" {
		fields["conversation_id"] = record.ConversationID
	}
	for key, value := range record.Metadata {
		fields["meta_"+key] = value
	}
	payload := make(map[string]*qdrant.Value, len(fields))
	for key, value := range fields {
		val, err := qdrant.NewValue(value)
		if err != nil {
			return fmt.Errorf("convert payload field %s: %w", key, err)
		}
		payload[key] = val
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(record.ID),
			Vectors: qdrant.NewVectors(vector...),
			Payload: payload,
		}},
	})
	if err != nil {
		return fmt.Errorf("upsert memory %q: %w", record.ID, err)
	}
	return nil
}

func (q *QdrantClient) Search(ctx context.Context, collection string, vector []float32, filter SearchFilter, limit int) ([]models.MemoryResult, error) {
	if filter.ContextID == "" {
		return nil, fmt.Errorf("memory: search requires a context id")
	}

	request := &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         scopeFilter(filter),
	}

	response, err := q.client.GetPointsClient().Search(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}

	results := make([]models.MemoryResult, 0, len(response.Result))
	for _, point := range response.Result {
		record := models.MemoryRecord{
			ID:       pointID(point.Id),
			Metadata: map[string]string{},
		}
		for key, value := range point.Payload {
			text := value.GetStringValue()
			switch key {
			case "context_id":
				record.ContextID = text
			case "conversation_id":
				record.ConversationID = text
			case "text":
				record.Text = text
			default:
				if meta, ok := strings.CutPrefix(key, "meta_"); ok {
					record.Metadata[meta] = text
				}
			}
		}
		results = append(results, models.MemoryResult{Record: record, Score: point.Score})
	}
	return results, nil
}

func (q *QdrantClient) DeleteByContext(ctx context.Context, collection, contextID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: scopeFilter(SearchFilter{ContextID: contextID}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete memories for context %q: %w", contextID, err)
	}
	return nil
}

func (q *QdrantClient) Close() error {
	return q.client.Close()
}

// scopeFilter builds the mandatory context filter, optionally narrowed to one
// conversation.
func scopeFilter(filter SearchFilter) *qdrant.Filter {
	conditions := []*qdrant.Condition{keywordCondition("context_id", filter.ContextID)}
	if filter.ConversationID != "" {
		conditions = append(conditions, keywordCondition("conversation_id", filter.ConversationID))
	}
	return &qdrant.Filter{Must: conditions}
}

func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid, ok := id.PointIdOptions.(*qdrant.PointId_Uuid); ok {
		return uuid.Uuid
	}
	return id.String()
}
