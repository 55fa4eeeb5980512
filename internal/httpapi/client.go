package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/alexanderramin/treeline/internal/domain"
)

// Client implements sync.Transport over the httpapi server. Conflict
// rejections come back as *domain.ConflictError; any other failure is a
// transport error and the sync engine retries it.
type Client struct {
	baseURL string
	hc      *http.Client
}

// NewClient creates a Client for the given base URL. A nil httpClient uses
// http.DefaultClient; callers set timeouts there.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), hc: httpClient}
}

// Propose sends a mutation intent and decodes the authoritative result.
func (c *Client) Propose(ctx context.Context, intent domain.MutationIntent) (*domain.MutationResult, error) {
	body, err := json.Marshal(requestFromIntent(intent))
	if err != nil {
		return nil, fmt.Errorf("encoding mutation request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/projects/%s/mutations", c.baseURL, url.PathEscape(intent.ProjectID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building mutation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending mutation: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var res domain.MutationResult
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return nil, fmt.Errorf("decoding mutation result: %w", err)
		}
		return &res, nil

	case http.StatusConflict:
		var cr ConflictResponse
		if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
			return nil, fmt.Errorf("decoding conflict response: %w", err)
		}
		return nil, domain.NewConflict(domain.ConflictReason(cr.Reason), cr.ItemID, cr.Detail)

	case http.StatusNotFound:
		// The mutated item (or its parent) vanished between the client's
		// read and this request. Surfaced as a conflict so the resolution
		// policy handles it instead of the retry loop.
		return nil, domain.NewConflict(domain.ReasonParentNotFound, intent.ItemID, "item no longer exists on the server")

	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("mutation request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
}

// Fetch returns the project's full authoritative snapshot.
func (c *Client) Fetch(ctx context.Context, projectID string) ([]*domain.WorkItem, error) {
	endpoint := fmt.Sprintf("%s/projects/%s/tree", c.baseURL, url.PathEscape(projectID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building tree request: %w", err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching tree: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tree request failed with status %d", resp.StatusCode)
	}
	var items []Item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decoding tree response: %w", err)
	}
	return fromItems(items), nil
}
