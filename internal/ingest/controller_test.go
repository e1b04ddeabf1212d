package ingest

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/avi3tal/flowcanvas/internal/faults"
	"github.com/avi3tal/flowcanvas/internal/store"
	"github.com/avi3tal/flowcanvas/internal/types"
)

// fakeAPI scripts the backend's document endpoints.
type fakeAPI struct {
	mu        sync.Mutex
	uploads   int
	ingestErr error
	deleteErr error
	deleted   []string
}

func (f *fakeAPI) UploadDocument(_ context.Context, _ io.Reader, filename, _ string) (types.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	return types.Document{ID: "doc-" + filename, Filename: filename, ContentType: "application/pdf"}, nil
}

func (f *fakeAPI) IngestDocument(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ingestErr
}

func (f *fakeAPI) DeleteDocument(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func newKBStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New()
	st.AddNode(types.Node{
		ID:     "kb",
		Kind:   types.KindKnowledgeBase,
		Config: map[string]any{"collection": "default", "topK": 5},
	})
	return st
}

func TestUploadRejectsNonPDFBeforeNetwork(t *testing.T) {
	st := newKBStore(t)
	api := &fakeAPI{}
	c := NewController(st, api)

	_, err := c.Upload(context.Background(), "kb", strings.NewReader("x"), "notes.txt", "default")
	require.Error(t, err)
	require.True(t, faults.IsValidation(err))
	require.Zero(t, api.uploads, "validation failures must not reach the network")
}

func TestUploadRejectsWrongNodeKind(t *testing.T) {
	st := store.New()
	st.AddNode(types.Node{ID: "out", Kind: types.KindOutput})
	c := NewController(st, &fakeAPI{})

	_, err := c.Upload(context.Background(), "out", strings.NewReader("x"), "a.pdf", "default")
	require.True(t, faults.IsValidation(err))
}

func TestUploadThenIngestHappyPath(t *testing.T) {
	st := newKBStore(t)
	c := NewController(st, &fakeAPI{})

	doc, err := c.Upload(context.Background(), "kb", strings.NewReader("%PDF"), "paper.pdf", "default")
	require.NoError(t, err)
	require.True(t, doc.IsIngested)
	require.Equal(t, StateIngested, c.State(doc.ID))

	docs := c.Documents("kb")
	require.Len(t, docs, 1)
	require.True(t, docs[0].IsIngested)
}

func TestIngestFailureKeepsUningestedDocument(t *testing.T) {
	st := newKBStore(t)
	api := &fakeAPI{ingestErr: errors.New("embedder down")}
	c := NewController(st, api)

	doc, err := c.Upload(context.Background(), "kb", strings.NewReader("%PDF"), "paper.pdf", "default")
	require.Error(t, err, "ingestion failure is surfaced as a recoverable error")
	require.NotEmpty(t, doc.ID, "the uploaded document is still returned")

	// No retry, no removal: the document stays, marked uningested.
	docs := c.Documents("kb")
	require.Len(t, docs, 1)
	require.False(t, docs[0].IsIngested)
	require.Equal(t, StateUploaded, c.State(doc.ID))
	require.Equal(t, 1, api.uploads)
}

func TestFailedRemoteDeleteLeavesLocalStateUnchanged(t *testing.T) {
	st := newKBStore(t)
	api := &fakeAPI{}
	c := NewController(st, api)

	doc, err := c.Upload(context.Background(), "kb", strings.NewReader("%PDF"), "paper.pdf", "default")
	require.NoError(t, err)

	api.mu.Lock()
	api.deleteErr = errors.New("vector store unavailable")
	api.mu.Unlock()

	err = c.Remove(context.Background(), "kb", doc.ID)
	require.Error(t, err)

	docs := c.Documents("kb")
	require.Len(t, docs, 1, "no optimistic removal")
	require.True(t, docs[0].IsIngested, "is_ingested unchanged")
	require.Equal(t, StateIngested, c.State(doc.ID), "state restored after failed delete")
}

func TestRemoveDeletesRemoteFirstThenLocal(t *testing.T) {
	st := newKBStore(t)
	api := &fakeAPI{}
	c := NewController(st, api)

	doc, err := c.Upload(context.Background(), "kb", strings.NewReader("%PDF"), "paper.pdf", "default")
	require.NoError(t, err)

	require.NoError(t, c.Remove(context.Background(), "kb", doc.ID))
	require.Empty(t, c.Documents("kb"))
	require.Equal(t, []string{doc.ID}, api.deleted)
	require.Equal(t, StateIdle, c.State(doc.ID))
}

func TestConcurrentUploadsDoNotLoseEntries(t *testing.T) {
	st := newKBStore(t)
	c := NewController(st, &fakeAPI{})

	var wg sync.WaitGroup
	names := []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf"}
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := c.Upload(context.Background(), "kb", strings.NewReader("%PDF"), name, "default")
			require.NoError(t, err)
		}(name)
	}
	wg.Wait()

	require.Len(t, c.Documents("kb"), len(names))
}
