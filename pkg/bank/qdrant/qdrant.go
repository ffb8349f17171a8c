// Package qdrant provides a Qdrant-backed bank.Bank using the official
// gRPC client. Entry metadata travels in the point payload; the topic
// summary embedding is the point vector.
package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/papercomputeco/remem/pkg/bank"
	"github.com/papercomputeco/remem/pkg/embeddings"
	"github.com/papercomputeco/remem/pkg/memory"
)

// DefaultCollectionName is the default collection for remem entries.
const DefaultCollectionName = "remem"

// Bank implements bank.Bank against a Qdrant instance.
type Bank struct {
	client     *qdrant.Client
	collection string
	embedder   embeddings.Embedder
	logger     *zap.Logger
}

// Config holds configuration for the Qdrant bank.
type Config struct {
	// Host is the Qdrant gRPC host (e.g., "localhost").
	Host string

	// Port is the Qdrant gRPC port. Defaults to 6334 if zero.
	Port int

	// CollectionName defaults to DefaultCollectionName if empty.
	CollectionName string

	// Dimensions is the embedding dimension used when the collection must
	// be created.
	Dimensions uint
}

// NewBank connects to Qdrant and creates the collection if it is missing.
func NewBank(ctx context.Context, c Config, embedder embeddings.Embedder, logger *zap.Logger) (*Bank, error) {
	if c.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions cannot be 0, must be configured")
	}

	port := c.Port
	if port == 0 {
		port = 6334
	}

	collection := c.CollectionName
	if collection == "" {
		collection = DefaultCollectionName
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: c.Host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bank.ErrConnection, err)
	}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: checking collection: %v", bank.ErrConnection, err)
	}

	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(c.Dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("creating collection %q: %w", collection, err)
		}
	}

	logger.Info("connected to Qdrant",
		zap.String("host", c.Host),
		zap.Int("port", port),
		zap.String("collection", collection),
	)

	return &Bank{
		client:     client,
		collection: collection,
		embedder:   embedder,
		logger:     logger,
	}, nil
}

// Search embeds the query and runs a KNN query against the collection.
func (b *Bank) Search(ctx context.Context, query string, k int) ([]bank.Match, error) {
	if k <= 0 {
		k = 5
	}

	queryVec, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	limit := uint64(k)
	points, err := b.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: b.collection,
		Query:          qdrant.NewQuery(toFloat32(queryVec)...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", bank.ErrConnection, err)
	}

	matches := make([]bank.Match, 0, len(points))
	for _, point := range points {
		matches = append(matches, bank.Match{
			Content:  payloadString(point.Payload, "topic_summary"),
			Score:    float64(point.GetScore()),
			Metadata: decodePayload(point.GetId().GetUuid(), point.Payload),
		})
	}

	b.logger.Debug("searched qdrant bank",
		zap.Int("results", len(matches)),
	)

	return matches, nil
}

// Insert adds an entry, embedding its topic summary if needed.
func (b *Bank) Insert(ctx context.Context, entry *memory.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	embedding := entry.Embedding
	if len(embedding) == 0 {
		vec, err := b.embedder.Embed(ctx, entry.TopicSummary)
		if err != nil {
			return fmt.Errorf("embedding entry: %w", err)
		}
		embedding = vec
	}

	_, err := b.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: b.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(entry.ID),
				Vectors: qdrant.NewVectors(toFloat32(embedding)...),
				Payload: encodePayload(entry.TopicSummary, entry.RawDialogue, entry.SessionID, entry.CreatedAt, entry.TurnRefs),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: upsert: %v", bank.ErrConnection, err)
	}

	b.logger.Debug("inserted entry into qdrant bank",
		zap.String("entry_id", entry.ID),
	)

	return nil
}

// Rewrite replaces an entry's summary and dialogue and re-embeds the summary.
func (b *Bank) Rewrite(ctx context.Context, id, topicSummary, rawDialogue string) error {
	points, err := b.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: b.collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return fmt.Errorf("%w: get: %v", bank.ErrConnection, err)
	}
	if len(points) == 0 {
		return fmt.Errorf("%w: %s", bank.ErrNotFound, id)
	}
	existing := points[0].Payload

	vec, err := b.embedder.Embed(ctx, topicSummary)
	if err != nil {
		return fmt.Errorf("embedding merged summary: %w", err)
	}

	payload := encodePayload(
		topicSummary,
		rawDialogue,
		payloadString(existing, "session_id"),
		time.UnixMilli(payloadInt(existing, "created_at")),
		decodeTurnRefs(existing),
	)

	_, err = b.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: b.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(id),
				Vectors: qdrant.NewVectors(toFloat32(vec)...),
				Payload: payload,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: upsert: %v", bank.ErrConnection, err)
	}

	return nil
}

// Close closes the gRPC connection.
func (b *Bank) Close() error {
	return b.client.Close()
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func encodePayload(summary, dialogue, sessionID string, createdAt time.Time, turnRefs []int) map[string]*qdrant.Value {
	refs, err := json.Marshal(turnRefs)
	if err != nil {
		refs = []byte("[]")
	}
	return qdrant.NewValueMap(map[string]any{
		"topic_summary": summary,
		"raw_dialogue":  dialogue,
		"session_id":    sessionID,
		"created_at":    createdAt.UnixMilli(),
		"turn_refs":     string(refs),
	})
}

func decodePayload(id string, payload map[string]*qdrant.Value) bank.Metadata {
	return bank.Metadata{
		ID:          id,
		SessionID:   payloadString(payload, "session_id"),
		TurnRefs:    decodeTurnRefs(payload),
		Timestamp:   time.UnixMilli(payloadInt(payload, "created_at")),
		RawDialogue: payloadString(payload, "raw_dialogue"),
	}
}

func decodeTurnRefs(payload map[string]*qdrant.Value) []int {
	var refs []int
	if err := json.Unmarshal([]byte(payloadString(payload, "turn_refs")), &refs); err != nil {
		return nil
	}
	return refs
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func payloadInt(payload map[string]*qdrant.Value, key string) int64 {
	if v, ok := payload[key]; ok {
		return v.GetIntegerValue()
	}
	return 0
}

var _ bank.Bank = (*Bank)(nil)
