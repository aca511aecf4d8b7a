package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ParamsFunc customizes the outgoing query string before a request is sent.
// It runs after the standard paging/sort/search parameters are set.
type ParamsFunc func(url.Values)

// HTTPSource loads pages from a remote JSON endpoint.
//
// Request parameters: page/pageSize in paged mode, start/length in
// incremental mode, plus search, sortField, and sortOrder when set.
// The response must supply rows under "items" or "data" and a total under
// one of "totalRecords", "recordsTotal", "recordsFiltered", or "totalPages".
type HTTPSource struct {
	// URL is the endpoint queried for every page.
	URL string
	// Client defaults to a client with a 30s timeout.
	Client *http.Client
	// Params optionally rewrites the query string per request.
	Params ParamsFunc
	// Incremental switches to start/length parameters for lazy loading.
	Incremental bool
}

var defaultClient = &http.Client{Timeout: 30 * time.Second}

// envelope tolerates the field-name variants of common server frameworks.
type envelope struct {
	Items           []Row `json:"items"`
	Data            []Row `json:"data"`
	TotalRecords    *int  `json:"totalRecords"`
	RecordsTotal    *int  `json:"recordsTotal"`
	RecordsFiltered *int  `json:"recordsFiltered"`
	TotalPages      *int  `json:"totalPages"`
}

// LoadPage issues one GET and normalizes the response shape.
func (h *HTTPSource) LoadPage(ctx context.Context, req PageRequest) (*PageResult, error) {
	u, err := url.Parse(h.URL)
	if err != nil {
		return nil, &LoadError{Op: "fetch", URL: h.URL, Err: err}
	}

	q := u.Query()
	if h.Incremental {
		q.Set("start", strconv.Itoa(req.Offset))
		q.Set("length", strconv.Itoa(req.Limit))
	} else {
		page := 1
		if req.Limit > 0 {
			page = req.Offset/req.Limit + 1
		}
		q.Set("page", strconv.Itoa(page))
		q.Set("pageSize", strconv.Itoa(req.Limit))
	}
	if req.Search != "" {
		q.Set("search", req.Search)
	}
	if req.SortField != "" {
		q.Set("sortField", req.SortField)
		q.Set("sortOrder", string(req.SortDirection))
	}
	if h.Params != nil {
		h.Params(q)
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &LoadError{Op: "fetch", URL: h.URL, Err: err}
	}
	httpReq.Header.Set("Accept", "application/json")

	client := h.Client
	if client == nil {
		client = defaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &LoadError{Op: "fetch", URL: h.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &LoadError{Op: "fetch", URL: h.URL,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, &LoadError{Op: "decode", URL: h.URL, Err: err}
	}

	rows := env.Items
	if rows == nil {
		rows = env.Data
	}
	if rows == nil {
		return nil, &LoadError{Op: "decode", URL: h.URL,
			Err: fmt.Errorf("response has neither items nor data")}
	}

	return &PageResult{Rows: rows, TotalRecords: h.total(env, req, len(rows))}, nil
}

// total picks the first available record count from the envelope.
func (h *HTTPSource) total(env envelope, req PageRequest, returned int) int {
	switch {
	case env.TotalRecords != nil:
		return *env.TotalRecords
	case env.RecordsTotal != nil:
		return *env.RecordsTotal
	case env.RecordsFiltered != nil:
		return *env.RecordsFiltered
	case env.TotalPages != nil && req.Limit > 0:
		return *env.TotalPages * req.Limit
	default:
		return req.Offset + returned
	}
}
