// Package pinecone is a REST client for a single Pinecone index host.
package pinecone

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nicklasc86/travelbot/internal/domain/model"
	"github.com/nicklasc86/travelbot/internal/infra/httpclient"
)

const DefaultNamespace = "default"

type Config struct {
	APIKey     string
	Host       string
	Namespace  string
	Timeout    time.Duration
	MaxRetries uint64
	Transport  http.RoundTripper
}

type Index struct {
	http      *httpclient.JSONClient
	namespace string
}

func NewIndex(cfg Config) (*Index, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("pinecone api key is required")
	}

	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, fmt.Errorf("pinecone index host is required")
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}

	namespace := strings.TrimSpace(cfg.Namespace)
	if namespace == "" {
		namespace = DefaultNamespace
	}

	jsonClient, err := httpclient.NewJSONClient(httpclient.Options{
		BaseURL: host,
		Headers: map[string]string{
			"Api-Key":                apiKey,
			"X-Pinecone-API-Version": "2024-07",
		},
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		Transport:  cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create pinecone http client: %w", err)
	}

	return &Index{http: jsonClient, namespace: namespace}, nil
}

type vector struct {
	ID       string            `json:"id"`
	Values   []float32         `json:"values"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type upsertRequest struct {
	Vectors   []vector `json:"vectors"`
	Namespace string   `json:"namespace"`
}

// Upsert writes one vector. Re-upserting an id replaces its values and metadata.
func (i *Index) Upsert(ctx context.Context, id string, values []float32, meta model.VectorMetadata) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("vector id is required")
	}
	if len(values) == 0 {
		return fmt.Errorf("vector values are empty")
	}

	req := upsertRequest{
		Vectors: []vector{{
			ID:     id,
			Values: values,
			Metadata: map[string]string{
				"city":    meta.City,
				"country": meta.Country,
				"text":    meta.Text,
			},
		}},
		Namespace: i.namespace,
	}
	if err := i.http.DoJSON(ctx, http.MethodPost, "/vectors/upsert", req, nil); err != nil {
		return fmt.Errorf("upsert pinecone vector: %w", err)
	}
	return nil
}

type queryRequest struct {
	Namespace       string         `json:"namespace"`
	Vector          []float32      `json:"vector"`
	Filter          map[string]any `json:"filter,omitempty"`
	TopK            int            `json:"topK"`
	IncludeMetadata bool           `json:"includeMetadata"`
}

type queryResponse struct {
	Matches []struct {
		ID       string            `json:"id"`
		Score    float64           `json:"score"`
		Metadata map[string]string `json:"metadata"`
	} `json:"matches"`
}

func (i *Index) Query(ctx context.Context, values []float32, filter model.VectorFilter, topK int) ([]model.VectorMatch, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	if topK <= 0 {
		topK = 3
	}

	req := queryRequest{
		Namespace:       i.namespace,
		Vector:          values,
		Filter:          buildFilter(filter),
		TopK:            topK,
		IncludeMetadata: true,
	}

	var resp queryResponse
	if err := i.http.DoJSON(ctx, http.MethodPost, "/query", req, &resp); err != nil {
		return nil, fmt.Errorf("query pinecone index: %w", err)
	}

	matches := make([]model.VectorMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		matches = append(matches, model.VectorMatch{
			ID:    m.ID,
			Score: m.Score,
			Metadata: model.VectorMetadata{
				City:    m.Metadata["city"],
				Country: m.Metadata["country"],
				Text:    m.Metadata["text"],
			},
		})
	}
	return matches, nil
}

// buildFilter only constrains on known attributes; "Unknown" never narrows a query.
func buildFilter(filter model.VectorFilter) map[string]any {
	out := make(map[string]any, 2)
	if model.IsKnown(filter.City) {
		out["city"] = map[string]string{"$eq": filter.City}
	}
	if model.IsKnown(filter.Country) {
		out["country"] = map[string]string{"$eq": filter.Country}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
