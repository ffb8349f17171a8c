// Package chroma provides a Chroma-backed bank.Bank via Chroma's REST API.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/remem/pkg/bank"
	"github.com/papercomputeco/remem/pkg/embeddings"
	"github.com/papercomputeco/remem/pkg/memory"
)

// DefaultCollectionName is the default collection for remem entries.
const DefaultCollectionName = "remem"

// Bank implements bank.Bank against a Chroma server.
type Bank struct {
	baseURL        string
	collectionName string
	collectionID   string
	embedder       embeddings.Embedder
	httpClient     *http.Client
	logger         *zap.Logger
}

// Config holds configuration for the Chroma bank.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string

	// CollectionName is the collection to use.
	// Defaults to DefaultCollectionName if empty.
	CollectionName string
}

// NewBank connects to Chroma and gets or creates the collection.
func NewBank(c Config, embedder embeddings.Embedder, logger *zap.Logger) (*Bank, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("chroma URL is required")
	}

	collectionName := c.CollectionName
	if collectionName == "" {
		collectionName = DefaultCollectionName
	}

	b := &Bank{
		baseURL:        c.URL,
		collectionName: collectionName,
		embedder:       embedder,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}

	collectionID, err := b.getOrCreateCollection(context.Background())
	if err != nil {
		return nil, fmt.Errorf("getting or creating collection %q: %w", collectionName, err)
	}
	b.collectionID = collectionID

	logger.Info("connected to Chroma",
		zap.String("url", c.URL),
		zap.String("collection", collectionName),
		zap.String("collection_id", collectionID),
	)

	return b, nil
}

func (b *Bank) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/api/v2/tenants/default_tenant/databases/default_database/collections/%s%s",
		b.baseURL, b.collectionID, suffix)
}

// getOrCreateCollection gets an existing collection or creates a new one.
func (b *Bank) getOrCreateCollection(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/api/v2/tenants/default_tenant/databases/default_database/collections/%s", b.baseURL, b.collectionName)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("creating get request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", bank.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var collection chromaCollection
		if err := json.NewDecoder(resp.Body).Decode(&collection); err != nil {
			return "", fmt.Errorf("decoding collection response: %w", err)
		}
		return collection.ID, nil
	}

	// Collection doesn't exist, create it
	createURL := fmt.Sprintf("%s/api/v2/tenants/default_tenant/databases/default_database/collections", b.baseURL)
	jsonBody, err := json.Marshal(map[string]string{"name": b.collectionName})
	if err != nil {
		return "", fmt.Errorf("marshaling create request: %w", err)
	}

	req, err = http.NewRequestWithContext(ctx, "POST", createURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("creating create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err = b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", bank.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("failed to create collection: status %d: %s", resp.StatusCode, string(body))
	}

	var collection chromaCollection
	if err := json.NewDecoder(resp.Body).Decode(&collection); err != nil {
		return "", fmt.Errorf("decoding create response: %w", err)
	}

	return collection.ID, nil
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

	reqBody := chromaQueryRequest{
		QueryEmbeddings: [][]float64{queryVec},
		NResults:        k,
		Include:         []string{"metadatas", "distances", "documents"},
	}

	var queryResp chromaQueryResponse
	if err := b.post(ctx, b.collectionURL("/query"), reqBody, &queryResp); err != nil {
		return nil, err
	}

	// Only the first group matters; we query with a single embedding.
	if len(queryResp.IDs) == 0 || len(queryResp.IDs[0]) == 0 {
		return nil, nil
	}

	ids := queryResp.IDs[0]
	distances := queryResp.Distances[0]

	var metadatas []map[string]any
	if len(queryResp.Metadatas) > 0 {
		metadatas = queryResp.Metadatas[0]
	}
	var documents []string
	if len(queryResp.Documents) > 0 {
		documents = queryResp.Documents[0]
	}

	matches := make([]bank.Match, 0, len(ids))
	for i, id := range ids {
		match := bank.Match{
			Metadata: bank.Metadata{ID: id},
		}
		if i < len(documents) {
			match.Content = documents[i]
		}
		if i < len(metadatas) && metadatas[i] != nil {
			match.Metadata = decodeMetadata(id, metadatas[i])
		}
		// Convert distance to similarity: lower distance = higher similarity
		if i < len(distances) {
			match.Score = 1.0 / (1.0 + distances[i])
		}
		matches = append(matches, match)
	}

	b.logger.Debug("searched chroma bank",
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

	turnRefs, err := json.Marshal(entry.TurnRefs)
	if err != nil {
		return fmt.Errorf("marshaling turn refs: %w", err)
	}

	reqBody := chromaUpsertRequest{
		IDs:        []string{entry.ID},
		Embeddings: [][]float64{embedding},
		Documents:  []string{entry.TopicSummary},
		Metadatas: []map[string]any{{
			"session_id":   entry.SessionID,
			"created_at":   entry.CreatedAt.UnixMilli(),
			"raw_dialogue": entry.RawDialogue,
			"turn_refs":    string(turnRefs),
		}},
	}

	if err := b.post(ctx, b.collectionURL("/upsert"), reqBody, nil); err != nil {
		return err
	}

	b.logger.Debug("inserted entry into chroma bank",
		zap.String("entry_id", entry.ID),
	)

	return nil
}

// Rewrite replaces an entry's summary and dialogue and re-embeds the summary.
func (b *Bank) Rewrite(ctx context.Context, id, topicSummary, rawDialogue string) error {
	// Fetch the existing record to preserve its other metadata.
	var getResp chromaGetResponse
	getReq := chromaGetRequest{IDs: []string{id}, Include: []string{"metadatas"}}
	if err := b.post(ctx, b.collectionURL("/get"), getReq, &getResp); err != nil {
		return err
	}
	if len(getResp.IDs) == 0 {
		return fmt.Errorf("%w: %s", bank.ErrNotFound, id)
	}

	metadata := map[string]any{}
	if len(getResp.Metadatas) > 0 && getResp.Metadatas[0] != nil {
		metadata = getResp.Metadatas[0]
	}
	metadata["raw_dialogue"] = rawDialogue

	vec, err := b.embedder.Embed(ctx, topicSummary)
	if err != nil {
		return fmt.Errorf("embedding merged summary: %w", err)
	}

	reqBody := chromaUpsertRequest{
		IDs:        []string{id},
		Embeddings: [][]float64{vec},
		Documents:  []string{topicSummary},
		Metadatas:  []map[string]any{metadata},
	}

	return b.post(ctx, b.collectionURL("/upsert"), reqBody, nil)
}

// Close releases resources held by the bank.
func (b *Bank) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}

func (b *Bank) post(ctx context.Context, url string, body any, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", bank.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chroma returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func decodeMetadata(id string, raw map[string]any) bank.Metadata {
	md := bank.Metadata{ID: id}
	if s, ok := raw["session_id"].(string); ok {
		md.SessionID = s
	}
	if s, ok := raw["raw_dialogue"].(string); ok {
		md.RawDialogue = s
	}
	if ms, ok := raw["created_at"].(float64); ok {
		md.Timestamp = time.UnixMilli(int64(ms))
	}
	if s, ok := raw["turn_refs"].(string); ok {
		var refs []int
		if err := json.Unmarshal([]byte(s), &refs); err == nil {
			md.TurnRefs = refs
		}
	}
	return md
}

var _ bank.Bank = (*Bank)(nil)
