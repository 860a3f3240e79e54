package elastic

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

	"github.com/swordot/portal/internal/domain/entity"
)

type recorded struct {
	method string
	path   string
	body   string
}

func fakeES(t *testing.T, handle func(w http.ResponseWriter, r *http.Request)) (*AccountIndex, func() []recorded) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recorded{method: r.Method, path: r.URL.Path, body: string(b)})
		mu.Unlock()
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handle(w, r)
	}))
	t.Cleanup(srv.Close)

	es, err := NewClient([]string{srv.URL}, "", "")
	require.NoError(t, err)
	return NewAccountIndex(es, "accounts"), func() []recorded {
		mu.Lock()
		defer mu.Unlock()
		return append([]recorded(nil), reqs...)
	}
}

func TestIndexAccount(t *testing.T) {
	idx, reqs := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	err := idx.IndexAccount(context.Background(), &entity.Account{
		ID: 5, Name: "alice", Email: "a@x.com", Password: "digest", Type: entity.AccountNormal, Creation: 1700000000,
	})
	require.NoError(t, err)

	got := reqs()
	require.Len(t, got, 1)
	assert.Equal(t, "/accounts/_doc/5", got[0].path)
	assert.Contains(t, got[0].body, `"name":"alice"`)
	assert.NotContains(t, got[0].body, "a@x.com")
	assert.NotContains(t, got[0].body, "digest")
}

func TestIndexAccount_ErrorStatus(t *testing.T) {
	idx, _ := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad"}`))
	})

	err := idx.IndexAccount(context.Background(), &entity.Account{ID: 5, Name: "alice"})
	assert.Error(t, err)
}

func TestSearchAccounts(t *testing.T) {
	idx, reqs := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hits":{"hits":[
			{"_id":"1","_source":{"id":1,"name":"alice","type":"normal","creation":1700000000}},
			{"_id":"2","_source":{"id":2,"name":"alicia","type":"tutor","creation":1700000100}}
		]}}`))
	})

	res, err := idx.SearchAccounts(context.Background(), "ali", 10)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "alicia", res[1].Name)
	assert.Equal(t, entity.AccountTutor, res[1].Type)

	got := reqs()
	require.Len(t, got, 1)
	assert.Equal(t, "/accounts/_search", got[0].path)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(got[0].body), &body))
	assert.EqualValues(t, 10, body["size"])
}

func TestEnsureIndex_CreatesWhenMissing(t *testing.T) {
	idx, reqs := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	})

	require.NoError(t, idx.EnsureIndex(context.Background()))
	got := reqs()
	require.Len(t, got, 2)
	assert.Equal(t, http.MethodPut, got[1].method)
	assert.Contains(t, got[1].body, "search_as_you_type")
}

func TestEnsureIndex_ExistingIsKept(t *testing.T) {
	idx, reqs := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, idx.EnsureIndex(context.Background()))
	assert.Len(t, reqs(), 1)
}
