package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Sirveme/quevendi-pos/pkg/config"
	pkgerrors "github.com/Sirveme/quevendi-pos/pkg/errors"
	"github.com/Sirveme/quevendi-pos/pkg/store/models"
)

// SubmitResult is the server's answer to a delivered sale.
type SubmitResult struct {
	ServerSaleID int64
	// AlreadyExists marks a duplicate delivery: the server had the sale
	// from a prior attempt whose response was lost.
	AlreadyExists bool
}

// Submitter delivers one queued sale to the server.
type Submitter interface {
	Submit(ctx context.Context, sale models.PendingSale) (SubmitResult, error)
}

// SubmitClient posts queued sales to the server sales endpoint.
type SubmitClient struct {
	baseURL string
	client  *http.Client
}

// NewSubmitClient builds the submit client from the remote config.
func NewSubmitClient(cfg config.RemoteConfig) *SubmitClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SubmitClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// saleResponse covers both response shapes the server has used for the
// created sale id.
type saleResponse struct {
	ID         *int64 `json:"id"`
	SaleID     *int64 `json:"sale_id"`
	ExistingID *int64 `json:"existing_id"`
}

func (r saleResponse) serverID() int64 {
	switch {
	case r.ID != nil:
		return *r.ID
	case r.SaleID != nil:
		return *r.SaleID
	case r.ExistingID != nil:
		return *r.ExistingID
	}
	return -1
}

// Submit replays the frozen payload of a queued sale. The offline
// headers let the server recognize a replay and deduplicate by
// verification code.
func (c *SubmitClient) Submit(ctx context.Context, sale models.PendingSale) (SubmitResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sales", bytes.NewReader(sale.Payload))
	if err != nil {
		return SubmitResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building sale request")
	}
	req.Header.Set("Content-Type", "application/json")
	if sale.Token != "" {
		req.Header.Set("Authorization", "Bearer "+sale.Token)
	}
	req.Header.Set("X-Offline-Sale", "true")
	req.Header.Set("X-Local-Id", strconv.FormatInt(sale.LocalID, 10))
	req.Header.Set("X-Verification-Code", sale.VerificationCode)
	req.Header.Set("X-Created-At", sale.CreatedAt.UTC().Format(time.RFC3339))

	resp, err := c.client.Do(req)
	if err != nil {
		return SubmitResult{}, pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "delivering sale")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		var body saleResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return SubmitResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding sale response")
		}
		return SubmitResult{ServerSaleID: body.serverID()}, nil

	case resp.StatusCode == http.StatusConflict:
		// Duplicate from an earlier attempt. The body may or may not
		// echo the existing id; -1 means accepted without one.
		var body saleResponse
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return SubmitResult{ServerSaleID: body.serverID(), AlreadyExists: true}, nil

	case resp.StatusCode == http.StatusUnauthorized:
		return SubmitResult{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "sale rejected: credential expired or revoked")

	default:
		return SubmitResult{}, pkgerrors.New(pkgerrors.CodeRemoteRejected, fmt.Sprintf("sale rejected with HTTP %d", resp.StatusCode))
	}
}
