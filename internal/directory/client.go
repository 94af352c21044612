package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/Carl4WebDev/vet-user/internal/models"
	"github.com/Carl4WebDev/vet-user/internal/observability"
)

// Client fetches the clinic directory the chat session draws its
// counterparties from.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a directory client for the given API base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// List fetches all clinics and maps them into conversation peers. Any
// failure resolves to an empty list so the rest of the session can still
// initialize; the error is logged, never surfaced.
func (c *Client) List(ctx context.Context) []models.ConversationPeer {
	peers, err := c.fetch(ctx)
	if err != nil {
		log.Printf("directory fetch failed, falling back to empty list: %v", err)
		observability.IncDirectoryFetch("error")
		return []models.ConversationPeer{}
	}
	observability.IncDirectoryFetch("ok")
	return peers
}

func (c *Client) fetch(ctx context.Context) ([]models.ConversationPeer, error) {
	ctx, span := otel.Tracer("portal-gateway/directory").Start(ctx, "directory.fetch")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/clinics", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch clinics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var records []models.ClinicRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("unexpected clinic data format: %w", err)
	}

	peers := make([]models.ConversationPeer, 0, len(records))
	for _, rec := range records {
		if rec.ClinicID == "" {
			continue
		}
		peers = append(peers, models.PeerFromClinic(rec))
	}
	return peers, nil
}

// Filter returns peers whose display name contains the query,
// case-insensitively. An empty query returns the input unchanged.
func Filter(peers []models.ConversationPeer, query string) []models.ConversationPeer {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return peers
	}

	matched := make([]models.ConversationPeer, 0, len(peers))
	for _, peer := range peers {
		if strings.Contains(strings.ToLower(peer.DisplayName), query) {
			matched = append(matched, peer)
		}
	}
	return matched
}
