package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/swordot/portal/internal/domain/entity"
)

const requestTimeout = 3 * time.Second

// AccountIndex indexes public account fields. Email and password never leave postgres.
type AccountIndex struct {
	es    *elasticsearch.Client
	index string
}

func NewAccountIndex(es *elasticsearch.Client, index string) *AccountIndex {
	return &AccountIndex{es: es, index: index}
}

type accountDoc struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Creation int64  `json:"creation"`
}

var accountMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"id":       map[string]any{"type": "long"},
			"name":     map[string]any{"type": "search_as_you_type"},
			"type":     map[string]any{"type": "keyword"},
			"creation": map[string]any{"type": "long"},
		},
	},
}

// EnsureIndex creates the index with its mapping when it does not exist yet.
func (x *AccountIndex) EnsureIndex(ctx context.Context) error {
	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := esapi.IndicesExistsRequest{Index: []string{x.index}}.Do(c, x.es)
	if err != nil {
		return fmt.Errorf("es index exists: %w", err)
	}
	_ = res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	b, _ := json.Marshal(accountMapping)
	res, err = esapi.IndicesCreateRequest{Index: x.index, Body: bytes.NewReader(b)}.Do(c, x.es)
	if err != nil {
		return fmt.Errorf("es create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return fmt.Errorf("es create index: %s", res.Status())
	}
	return nil
}

// IndexAccount upserts the searchable document of a.
func (x *AccountIndex) IndexAccount(ctx context.Context, a *entity.Account) error {
	b, err := json.Marshal(accountDoc{ID: a.ID, Name: a.Name, Type: string(a.Type), Creation: a.Creation})
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{
		Index:      x.index,
		DocumentID: strconv.FormatInt(a.ID, 10),
		Body:       bytes.NewReader(b),
		Refresh:    "false",
	}
	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	res, err := req.Do(c, x.es)
	if err != nil {
		return fmt.Errorf("es index account %d: %w", a.ID, err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return fmt.Errorf("es index account %d: %s", a.ID, res.Status())
	}
	return nil
}

// SearchAccounts runs an as-you-type match on the account name. Returned accounts only carry
// the indexed fields.
func (x *AccountIndex) SearchAccounts(ctx context.Context, q string, size int) ([]entity.Account, error) {
	query := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"type":   "bool_prefix",
				"fields": []string{"name", "name._2gram", "name._3gram"},
			},
		},
		"size": size,
	}
	b, _ := json.Marshal(query)

	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := x.es.Search(
		x.es.Search.WithContext(c),
		x.es.Search.WithIndex(x.index),
		x.es.Search.WithBody(bytes.NewReader(b)),
	)
	if err != nil {
		return nil, fmt.Errorf("es search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return nil, fmt.Errorf("es search: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source accountDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("es search decode: %w", err)
	}

	out := make([]entity.Account, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, entity.Account{
			ID:       h.Source.ID,
			Name:     h.Source.Name,
			Type:     entity.AccountType(h.Source.Type),
			Creation: h.Source.Creation,
		})
	}
	return out, nil
}
