package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	pkgerrors "github.com/Sirveme/quevendi-pos/pkg/errors"
	"github.com/shopspring/decimal"
)

// ProductPayload is one catalog entry as the server serializes it.
type ProductPayload struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Barcode         *string         `json:"barcode"`
	SalePrice       decimal.Decimal `json:"sale_price"`
	PurchasePrice   decimal.Decimal `json:"purchase_price"`
	Stock           decimal.Decimal `json:"stock"`
	Unit            string          `json:"unit"`
	Category        *string         `json:"category"`
	AllowFractional bool            `json:"allow_fractional"`
	MinStock        decimal.Decimal `json:"min_stock"`
	Active          *bool           `json:"active"`
	UpdatedAt       string          `json:"updated_at"`
}

// CatalogPayload is the response of GET /products/catalog.
type CatalogPayload struct {
	Products   []ProductPayload `json:"products"`
	DeletedIDs []int64          `json:"deleted_ids"`
	ServerTime string           `json:"server_time"`
}

// Client fetches catalog updates from the server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a catalog client for the given API base URL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

// Fetch retrieves products updated since the given watermark; an empty
// since requests the full catalog.
func (c *Client) Fetch(ctx context.Context, token, since string) (*CatalogPayload, error) {
	endpoint := c.baseURL + "/products/catalog"
	if since != "" {
		endpoint += "?since=" + url.QueryEscape(since)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building catalog request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "catalog request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("catalog endpoint returned HTTP %d", resp.StatusCode))
	}

	var payload CatalogPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "malformed catalog payload")
	}
	return &payload, nil
}
