// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package contentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/fieldsync/fieldsync/lib/credential"
	"github.com/fieldsync/fieldsync/lib/netutil"
)

// batchSize bounds the ids sent in one sys.id[in] query.
const batchSize = 50

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the API root, e.g. "https://api.example.com".
	BaseURL string
	// SpaceID is the space every request is scoped to.
	SpaceID string
	// Credential supplies the bearer token for each request.
	Credential credential.Supplier
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client is a content API client scoped to one space.
type Client struct {
	baseURL    string
	spaceID    string
	credential credential.Supplier
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a content API client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("contentapi: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("contentapi: invalid BaseURL %q: %w", config.BaseURL, err)
	}
	if config.SpaceID == "" {
		return nil, errors.New("contentapi: SpaceID is required")
	}
	if config.Credential == nil {
		return nil, errors.New("contentapi: Credential is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		spaceID:    config.SpaceID,
		credential: config.Credential,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Fetch returns the entries ("Entry") or assets ("Asset") with the
// given ids. Ids the server does not know are absent from the result.
func (c *Client) Fetch(ctx context.Context, entityType string, ids []string) ([]Entity, error) {
	collectionPath, err := collectionFor(entityType)
	if err != nil {
		return nil, err
	}

	var entities []Entity
	for start := 0; start < len(ids); start += batchSize {
		batch := ids[start:min(start+batchSize, len(ids))]
		query := url.Values{
			"sys.id[in]": {strings.Join(batch, ",")},
			"limit":      {strconv.Itoa(len(batch))},
		}
		var page collection[Entity]
		if err := c.get(ctx, c.spacePath(collectionPath), query, &page); err != nil {
			return nil, fmt.Errorf("contentapi: fetching %s: %w", collectionPath, err)
		}
		entities = append(entities, page.Items...)
	}
	return entities, nil
}

// ContentType returns a content type by id.
func (c *Client) ContentType(ctx context.Context, id string) (*ContentType, error) {
	var contentType ContentType
	if err := c.get(ctx, c.spacePath("content_types/"+url.PathEscape(id)), nil, &contentType); err != nil {
		return nil, fmt.Errorf("contentapi: fetching content type %s: %w", id, err)
	}
	return &contentType, nil
}

// Locales returns the locales configured for the space.
func (c *Client) Locales(ctx context.Context) ([]Locale, error) {
	var page collection[Locale]
	if err := c.get(ctx, c.spacePath("locales"), nil, &page); err != nil {
		return nil, fmt.Errorf("contentapi: fetching locales: %w", err)
	}
	return page.Items, nil
}

// Apply performs action on an entry or asset at the given version and
// returns the updated entity.
func (c *Client) Apply(ctx context.Context, entityType, id string, version int, action Action) (*Entity, error) {
	collectionPath, err := collectionFor(entityType)
	if err != nil {
		return nil, err
	}

	var method, state string
	switch action {
	case ActionPublish:
		method, state = http.MethodPut, "published"
	case ActionUnpublish:
		method, state = http.MethodDelete, "published"
	case ActionArchive:
		method, state = http.MethodPut, "archived"
	case ActionUnarchive:
		method, state = http.MethodDelete, "archived"
	default:
		return nil, fmt.Errorf("contentapi: unknown action %q", action)
	}

	path := c.spacePath(collectionPath + "/" + url.PathEscape(id) + "/" + state)
	headers := http.Header{"X-Contentful-Version": {strconv.Itoa(version)}}
	body, err := c.doRequest(ctx, method, path, nil, headers)
	if err != nil {
		return nil, fmt.Errorf("contentapi: %s %s %s: %w", action, entityType, id, err)
	}

	var entity Entity
	if err := json.Unmarshal(body, &entity); err != nil {
		return nil, fmt.Errorf("contentapi: failed to parse %s response: %w", action, err)
	}
	c.logger.Info("entity action applied",
		"action", string(action),
		"entity_type", entityType,
		"entity_id", id,
		"version", entity.Sys.Version,
	)
	return &entity, nil
}

func collectionFor(entityType string) (string, error) {
	switch entityType {
	case "Entry":
		return "entries", nil
	case "Asset":
		return "assets", nil
	default:
		return "", fmt.Errorf("contentapi: entity type %q is not Entry or Asset", entityType)
	}
}

func (c *Client) spacePath(rest string) string {
	return "/spaces/" + url.PathEscape(c.spaceID) + "/" + rest
}

func (c *Client) get(ctx context.Context, path string, query url.Values, into any) error {
	if query != nil {
		path += "?" + query.Encode()
	}
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, into); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// doRequest performs an authenticated request and returns the response
// body. Non-2xx responses become *APIError.
func (c *Client) doRequest(ctx context.Context, method, path string, requestBody any, headers http.Header) ([]byte, error) {
	token, err := c.credential.Token(ctx)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("Accept", "application/json")
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	for key, values := range headers {
		for _, value := range values {
			request.Header.Add(key, value)
		}
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		responseBody, err := netutil.ReadResponse(response.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		return responseBody, nil
	}

	raw := netutil.ErrorBody(response.Body)
	var payload struct {
		APIError
		Sys struct {
			ID string `json:"id"`
		} `json:"sys"`
	}
	if jsonErr := json.Unmarshal([]byte(raw), &payload); jsonErr != nil {
		return nil, &APIError{StatusCode: response.StatusCode, Message: strings.TrimSpace(raw)}
	}
	apiErr := payload.APIError
	apiErr.StatusCode = response.StatusCode
	apiErr.ID = payload.Sys.ID
	return nil, &apiErr
}
