package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultRequestTimeout = 10 * time.Second

// NotesAPIConfig describes the REST collaborator surface used for
// persistence.
type NotesAPIConfig struct {
	// BaseURL is the REST root, e.g. http://host:8080.
	BaseURL string
	// Token is the bearer token attached to every call.
	Token      string
	HTTPClient *http.Client
}

// NotesAPI is a thin client over the note persistence endpoints. The saver
// uses SaveContent as its SaveFunc.
type NotesAPI struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewNotesAPI constructs a REST client.
func NewNotesAPI(cfg NotesAPIConfig) (*NotesAPI, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base url required", ErrPersistence)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &NotesAPI{
		baseURL:    baseURL,
		token:      cfg.Token,
		httpClient: httpClient,
	}, nil
}

// SaveContent persists the content snapshot via PUT /notes/:id.
func (a *NotesAPI) SaveContent(ctx context.Context, noteID, content string) error {
	payload := map[string]string{"content": content}
	return a.put(ctx, "/notes/"+noteID, payload)
}

func (a *NotesAPI) put(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPut, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	request.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		request.Header.Set("Authorization", "Bearer "+a.token)
	}

	response, err := a.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, response.Body)
		_ = response.Body.Close()
	}()

	switch {
	case response.StatusCode == http.StatusOK:
		return nil
	case response.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: status %d", ErrAuthenticationFailed, response.StatusCode)
	case response.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrPermissionDenied, response.StatusCode)
	default:
		return fmt.Errorf("%w: status %d", ErrPersistence, response.StatusCode)
	}
}
