package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SymbolsClient fetches the list of replayable symbols
type SymbolsClient struct {
	baseURL    string
	httpClient *http.Client
}

type symbolsResponse struct {
	Symbols []string `json:"symbols"`
}

// NewSymbolsClient creates a client for a backend such as http://127.0.0.1:8000
func NewSymbolsClient(baseURL string, timeout time.Duration) *SymbolsClient {
	return &SymbolsClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetSymbols calls GET /symbols
func (s *SymbolsClient) GetSymbols(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/symbols", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build symbols request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch symbols: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("symbols request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload symbolsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode symbols: %w", err)
	}
	if payload.Symbols == nil {
		payload.Symbols = []string{}
	}
	return payload.Symbols, nil
}
