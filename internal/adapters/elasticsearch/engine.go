package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"

	"github.com/jobrunner/hospigeo/internal/domain"
)

// CreateIndex implements output.SearchEngine.
func (e *Engine) CreateIndex(ctx context.Context, name string, schema domain.IndexSchema) error {
	body, err := json.Marshal(e.indexBody(schema))
	if err != nil {
		return fmt.Errorf("encoding mapping for %s: %w", name, err)
	}

	res, err := e.es.Indices.Create(name,
		e.es.Indices.Create.WithBody(bytes.NewReader(body)),
		e.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return &domain.IndexError{Target: name, Operation: "create", Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError(res, "create", name)
	}
	e.logger.Debug("created index", "index", name)
	return nil
}

// IndexExists implements output.SearchEngine.
func (e *Engine) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := e.es.Indices.Exists([]string{name}, e.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, &domain.IndexError{Target: name, Operation: "exists", Err: err}
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, responseError(res, "exists", name)
	}
}

// DeleteIndex implements output.SearchEngine.
func (e *Engine) DeleteIndex(ctx context.Context, name string) error {
	res, err := e.es.Indices.Delete([]string{name}, e.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return &domain.IndexError{Target: name, Operation: "delete", Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError(res, "delete", name)
	}
	return nil
}

// ResolveAlias implements output.SearchEngine.
func (e *Engine) ResolveAlias(ctx context.Context, alias string) ([]string, error) {
	res, err := e.es.Indices.GetAlias(
		e.es.Indices.GetAlias.WithName(alias),
		e.es.Indices.GetAlias.WithContext(ctx),
	)
	if err != nil {
		return nil, &domain.IndexError{Target: alias, Operation: "get alias", Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, responseError(res, "get alias", alias)
	}

	var byIndex map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&byIndex); err != nil {
		return nil, fmt.Errorf("decoding alias %s: %w", alias, err)
	}

	indices := make([]string, 0, len(byIndex))
	for name := range byIndex {
		indices = append(indices, name)
	}
	slices.Sort(indices)
	return indices, nil
}

// PutAlias implements output.SearchEngine.
func (e *Engine) PutAlias(ctx context.Context, index, alias string) error {
	res, err := e.es.Indices.PutAlias([]string{index}, alias, e.es.Indices.PutAlias.WithContext(ctx))
	if err != nil {
		return &domain.IndexError{Target: index, Operation: "put alias " + alias, Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError(res, "put alias "+alias, index)
	}
	return nil
}

type aliasAction map[string]map[string]string

// swapActions builds the single update-aliases request that moves alias.
func swapActions(alias string, from []string, to string) map[string]any {
	actions := make([]aliasAction, 0, len(from)+1)
	for _, idx := range from {
		if idx == to {
			continue
		}
		actions = append(actions, aliasAction{"remove": {"index": idx, "alias": alias}})
	}
	actions = append(actions, aliasAction{"add": {"index": to, "alias": alias}})
	return map[string]any{"actions": actions}
}

// SwapAlias implements output.SearchEngine.
func (e *Engine) SwapAlias(ctx context.Context, alias string, from []string, to string) error {
	body, err := json.Marshal(swapActions(alias, from, to))
	if err != nil {
		return fmt.Errorf("encoding alias actions: %w", err)
	}

	res, err := e.es.Indices.UpdateAliases(bytes.NewReader(body), e.es.Indices.UpdateAliases.WithContext(ctx))
	if err != nil {
		return &domain.IndexError{Target: alias, Operation: "swap alias", Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError(res, "swap alias", alias)
	}
	e.logger.Info("alias swapped", "alias", alias, "from", from, "to", to)
	return nil
}

// bulkResponse is the subset of a bulk response needed to report failures.
type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// Bulk implements output.SearchEngine.
func (e *Engine) Bulk(ctx context.Context, index string, docs []domain.SearchDocument) ([]domain.BulkItemFailure, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, d := range docs {
		meta := map[string]map[string]string{"index": {"_index": index, "_id": d.ID}}
		if err := enc.Encode(meta); err != nil {
			return nil, fmt.Errorf("encoding bulk action for %s: %w", d.ID, err)
		}
		if err := enc.Encode(d.Body); err != nil {
			return nil, fmt.Errorf("encoding document %s: %w", d.ID, err)
		}
	}

	res, err := e.es.Bulk(&buf, e.es.Bulk.WithIndex(index), e.es.Bulk.WithContext(ctx))
	if err != nil {
		return nil, &domain.IndexError{Target: index, Operation: "bulk", Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, responseError(res, "bulk", index)
	}

	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return nil, fmt.Errorf("decoding bulk response for %s: %w", index, err)
	}
	if !br.Errors {
		return nil, nil
	}

	var failures []domain.BulkItemFailure
	for _, item := range br.Items {
		for _, r := range item {
			if r.Error == nil {
				continue
			}
			failures = append(failures, domain.BulkItemFailure{
				ID:     r.ID,
				Status: r.Status,
				Type:   r.Error.Type,
				Reason: r.Error.Reason,
			})
		}
	}
	return failures, nil
}

// Refresh implements output.SearchEngine.
func (e *Engine) Refresh(ctx context.Context, index string) error {
	res, err := e.es.Indices.Refresh(
		e.es.Indices.Refresh.WithIndex(index),
		e.es.Indices.Refresh.WithContext(ctx),
	)
	if err != nil {
		return &domain.IndexError{Target: index, Operation: "refresh", Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError(res, "refresh", index)
	}
	return nil
}

type catIndex struct {
	Index     string `json:"index"`
	DocsCount string `json:"docs.count"`
	StoreSize string `json:"store.size"`
	Health    string `json:"health"`
}

// ListIndices implements output.SearchEngine. System indices are omitted.
func (e *Engine) ListIndices(ctx context.Context) ([]domain.IndexStats, error) {
	res, err := e.es.Cat.Indices(
		e.es.Cat.Indices.WithFormat("json"),
		e.es.Cat.Indices.WithH("index", "docs.count", "store.size", "health"),
		e.es.Cat.Indices.WithS("index"),
		e.es.Cat.Indices.WithContext(ctx),
	)
	if err != nil {
		return nil, &domain.IndexError{Target: "_all", Operation: "cat indices", Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, responseError(res, "cat indices", "_all")
	}

	var rows []catIndex
	if err := json.NewDecoder(res.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decoding cat indices: %w", err)
	}

	stats := make([]domain.IndexStats, 0, len(rows))
	for _, r := range rows {
		if len(r.Index) > 0 && r.Index[0] == '.' {
			continue
		}
		docs, _ := strconv.ParseInt(r.DocsCount, 10, 64)
		stats = append(stats, domain.IndexStats{
			Name:      r.Index,
			DocsCount: docs,
			StoreSize: r.StoreSize,
			Health:    r.Health,
		})
	}
	return stats, nil
}
