package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/schema"

	"github.com/avi3tal/flowcanvas/internal/types"
)

// UploadDocument uploads a document file into a knowledge-base collection.
// The returned record is not yet ingested.
func (c *Client) UploadDocument(ctx context.Context, file io.Reader, filename, collection string) (types.Document, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return types.Document{}, errors.Wrap(err, "create multipart file")
	}
	if _, err := io.Copy(part, file); err != nil {
		return types.Document{}, errors.Wrap(err, "copy file into multipart body")
	}
	if err := w.WriteField("collection", collection); err != nil {
		return types.Document{}, errors.Wrap(err, "write collection field")
	}
	if err := w.Close(); err != nil {
		return types.Document{}, errors.Wrap(err, "finalize multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/kb/upload", &body)
	if err != nil {
		return types.Document{}, errors.Wrap(err, "create upload request")
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return types.Document{}, errors.Wrap(err, "upload document")
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.Document{}, c.requestError(resp)
	}

	var doc types.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return types.Document{}, errors.Wrap(err, "decode upload response")
	}
	return doc, nil
}

// IngestDocument asks the backend to extract, embed and index an uploaded
// document.
func (c *Client) IngestDocument(ctx context.Context, documentID string) error {
	var env successEnvelope
	if err := c.doJSON(ctx, http.MethodPost, "/api/kb/ingest/"+documentID, nil, &env); err != nil {
		return err
	}
	return env.errOr(http.StatusOK)
}

// DeleteDocument removes a document from disk, database and vector store.
func (c *Client) DeleteDocument(ctx context.Context, documentID string) error {
	var env successEnvelope
	if err := c.doJSON(ctx, http.MethodDelete, "/api/kb/"+documentID, nil, &env); err != nil {
		return err
	}
	return env.errOr(http.StatusOK)
}

// searchResult is the backend's search hit shape.
type searchResult struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`
}

// Search runs a similarity search against a collection and returns the hits
// in backend order as schema documents.
func (c *Client) Search(ctx context.Context, query, collection string, topK int) ([]schema.Document, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("collection", collection)
	q.Set("top_k", fmt.Sprintf("%d", topK))

	var results []searchResult
	if err := c.doJSON(ctx, http.MethodGet, "/api/kb/search?"+q.Encode(), nil, &results); err != nil {
		return nil, err
	}

	docs := make([]schema.Document, 0, len(results))
	for _, r := range results {
		meta := r.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		if r.ID != "" {
			meta["id"] = r.ID
		}
		docs = append(docs, schema.Document{
			PageContent: r.Content,
			Metadata:    meta,
			Score:       float32(r.Score),
		})
	}
	return docs, nil
}
