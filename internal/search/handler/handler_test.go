package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"overflow/internal/platform/logger"
	"overflow/internal/search/index"
	"overflow/pkg/testutil"
)

type brokenSearcher struct{}

func (brokenSearcher) Search(context.Context, index.Query) ([]index.Document, error) {
	return nil, errors.New("index corrupted")
}

func (brokenSearcher) Get(context.Context, string) (index.Document, error) {
	return index.Document{}, errors.New("index corrupted")
}

func newRouter(t *testing.T, searcher Searcher) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	New(searcher, 20, logger.Discard(), nil).Register(r)
	return r
}

func seededIndex(t *testing.T) *index.Index {
	t.Helper()
	idx, _, err := index.Open(index.Options{Logger: logger.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	require.NoError(t, idx.Upsert(index.Document{ID: "q-1", Title: "Goroutine leaks", Content: "finding leaks", Tags: []string{"go"}}))
	require.NoError(t, idx.Upsert(index.Document{ID: "q-2", Title: "Rust leaks", Content: "memory leaks in rust", Tags: []string{"rust"}}))
	return idx
}

func TestSearch(t *testing.T) {
	router := newRouter(t, seededIndex(t))

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/search?query=leaks+%5Bgo%5D"))
	require.Equal(t, http.StatusOK, rr.Code)
	docs := testutil.UnmarshalResponse[[]index.Document](t, rr)
	require.Len(t, *docs, 1)
	assert.Equal(t, "q-1", (*docs)[0].ID)

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/search?query=leaks"))
	require.Equal(t, http.StatusOK, rr.Code)
	docs = testutil.UnmarshalResponse[[]index.Document](t, rr)
	assert.Len(t, *docs, 2)

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/search?query=nothing+matches"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestSearch_MissingQuery(t *testing.T) {
	router := newRouter(t, seededIndex(t))
	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/search"))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
}

func TestSearch_IndexFailure(t *testing.T) {
	router := newRouter(t, brokenSearcher{})
	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/search?query=x"))
	testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, "internal_error")
	assert.NotContains(t, rr.Body.String(), "corrupted")
}

func TestGetQuestion(t *testing.T) {
	router := newRouter(t, seededIndex(t))

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/search/questions/q-2"))
	require.Equal(t, http.StatusOK, rr.Code)
	doc := testutil.UnmarshalResponse[index.Document](t, rr)
	assert.Equal(t, "Rust leaks", doc.Title)

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/search/questions/q-9"))
	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
}
