package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"
)

const indexName = "applications"

// ElasticIndex implements Index against an Elasticsearch cluster.
type ElasticIndex struct {
	client *elasticsearch.Client
}

// NewElasticIndex connects to Elasticsearch and verifies the cluster responds.
func NewElasticIndex(addresses []string, username, password string) (*ElasticIndex, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
		Username:  username,
		Password:  password,
	})
	if err != nil {
		return nil, fmt.Errorf("init elasticsearch client: %w", err)
	}
	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("elasticsearch info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch info: %s", res.String())
	}
	return &ElasticIndex{client: client}, nil
}

// Create writes one application record under the given document id.
func (e *ElasticIndex) Create(ctx context.Context, id string, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	res, err := e.client.Index(
		indexName,
		bytes.NewReader(body),
		e.client.Index.WithDocumentID(id),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index record: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index record: %s", res.String())
	}
	return nil
}

// Search runs an organization-scoped query_string search, newest first.
// The org clause is always injected; query text is AND-combined when present.
func (e *ElasticIndex) Search(ctx context.Context, orgID, query string) ([]Hit, error) {
	q := "orgid:" + orgID
	if query != "" {
		q += " AND " + query
	}
	body := map[string]any{
		"query": map[string]any{
			"query_string": map[string]any{"query": q},
		},
		"highlight": map[string]any{
			"fields": map[string]any{"resume_attachment": map[string]any{}},
		},
		"sort":    []any{map[string]any{"submitted_at": map[string]any{"order": "desc"}}},
		"size":    MaxResults,
		"_source": []string{"name", "email", "submitted_at", "position_id", "resume_attachment_url"},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(indexName),
		e.client.Search.WithBody(bytes.NewReader(raw)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search: %s", res.String())
	}
	return decodeHits(res.Body)
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source    Record              `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

func decodeHits(r io.Reader) ([]Hit, error) {
	var resp searchResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	hits := make([]Hit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		hits = append(hits, Hit{
			Record:     h.Source,
			Highlights: h.Highlight["resume_attachment"],
		})
	}
	return hits, nil
}
