package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
	tsclient "github.com/Tsili-spec/CareChat-DSWB-sub000/internal/infrastructure/clients/typesense"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/config"
	apperrors "github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/errors"
)

// fakeTypesense serves the handful of Typesense endpoints the adapter uses.
type fakeTypesense struct {
	mu        sync.Mutex
	exists    bool
	created   int
	dropped   int
	docs      map[string]map[string]interface{}
	failID    string
	lastQuery string
}

func (f *fakeTypesense) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	const coll = "/collections/" + CaseRecordsCollection
	switch {
	case r.URL.Path == "/health":
		io.WriteString(w, `{"ok":true}`)
	case r.Method == http.MethodGet && r.URL.Path == coll:
		if !f.exists {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"message":"Not Found"}`)
			return
		}
		io.WriteString(w, `{"name":"case_records","fields":[],"num_documents":0,"created_at":1}`)
	case r.Method == http.MethodPost && r.URL.Path == "/collections":
		f.exists = true
		f.created++
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"name":"case_records","fields":[],"num_documents":0,"created_at":1}`)
	case r.Method == http.MethodDelete && r.URL.Path == coll:
		if !f.exists {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"message":"Not Found"}`)
			return
		}
		f.exists = false
		f.dropped++
		io.WriteString(w, `{"name":"case_records","fields":[],"num_documents":0,"created_at":1}`)
	case r.Method == http.MethodPost && r.URL.Path == coll+"/documents":
		var doc map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"message":"bad json"}`)
			return
		}
		if doc["id"] == f.failID {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"message":"field diagnosis missing"}`)
			return
		}
		f.docs[doc["id"].(string)] = doc
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(doc)
	case r.Method == http.MethodGet && r.URL.Path == coll+"/documents/search":
		f.lastQuery = r.URL.Query().Get("q")
		io.WriteString(w, `{"found":2,"out_of":2,"page":1,"search_time_ms":1,"hits":[
			{"document":{"id":"c-1","diagnosis":"Malaria","symptoms":["fever","chills"],"searchable_text":"Diagnosis: Malaria","age":34},"text_match":578730123365187700},
			{"document":{"diagnosis":"broken"},"text_match":1}
		]}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"message":"Not Found"}`)
	}
}

func newTestAdapter(t *testing.T) (*TypesenseAdapter, *fakeTypesense) {
	t.Helper()
	fake := &fakeTypesense{docs: make(map[string]map[string]interface{})}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := tsclient.NewClient(context.Background(), &config.TypesenseConfig{URL: srv.URL, APIKey: "xyz"})
	require.NoError(t, err)
	return NewTypesenseAdapter(client), fake
}

func TestEnsureCollection_CreatesOnce(t *testing.T) {
	adapter, fake := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.EnsureCollection(ctx))
	require.NoError(t, adapter.EnsureCollection(ctx))

	assert.Equal(t, 1, fake.created)
}

func TestDropCollection_MissingIsFine(t *testing.T) {
	adapter, fake := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.DropCollection(ctx))
	require.NoError(t, adapter.EnsureCollection(ctx))
	require.NoError(t, adapter.DropCollection(ctx))

	assert.Equal(t, 1, fake.dropped)
}

func TestIndexCases(t *testing.T) {
	adapter, fake := newTestAdapter(t)
	records := []entities.CaseRecord{
		{ID: "c-1", Diagnosis: "Malaria", Symptoms: []string{"fever"}, SearchableText: "Diagnosis: Malaria"},
		{ID: "c-2", Diagnosis: "Asthma", SearchableText: "Diagnosis: Asthma"},
	}

	n, err := adapter.IndexCases(context.Background(), records)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []interface{}{}, fake.docs["c-2"]["symptoms"])
}

func TestIndexCases_ReportsFailure(t *testing.T) {
	adapter, fake := newTestAdapter(t)
	fake.failID = "bad"

	_, err := adapter.IndexCases(context.Background(), []entities.CaseRecord{{ID: "bad", Diagnosis: "x"}})

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
}

func TestSearch_MapsHits(t *testing.T) {
	adapter, fake := newTestAdapter(t)

	hits, err := adapter.Search(context.Background(), "fever", 5)

	require.NoError(t, err)
	assert.Equal(t, "fever", fake.lastQuery)
	require.Len(t, hits, 1, "documents without an id are skipped")
	assert.Equal(t, "c-1", hits[0].Record.ID)
	assert.Equal(t, 34, hits[0].Record.Age)
	assert.Equal(t, []string{"fever", "chills"}, hits[0].Record.Symptoms)
	assert.Greater(t, hits[0].Score, 0.0)
}
