package syncer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Sirveme/quevendi-pos/pkg/config"
	pkgerrors "github.com/Sirveme/quevendi-pos/pkg/errors"
	"github.com/Sirveme/quevendi-pos/pkg/store/models"
)

func testSale() models.PendingSale {
	return models.PendingSale{
		LocalID:          7,
		TenantID:         "42",
		Payload:          json.RawMessage(`{"total":"15"}`),
		Token:            "tok",
		CreatedAt:        time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC),
		VerificationCode: "VNT-2026031509000012-1A2B",
	}
}

func newClient(url string) *SubmitClient {
	return NewSubmitClient(config.RemoteConfig{BaseURL: url, Timeout: time.Second})
}

func TestSubmitCreated(t *testing.T) {
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 55}`))
	}))
	defer server.Close()

	result, err := newClient(server.URL).Submit(context.Background(), testSale())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.ServerSaleID != 55 || result.AlreadyExists {
		t.Fatalf("unexpected result %+v", result)
	}

	if gotHeaders.Get("X-Offline-Sale") != "true" {
		t.Fatal("replay must carry the offline marker header")
	}
	if gotHeaders.Get("X-Local-Id") != "7" {
		t.Fatalf("wrong X-Local-Id: %q", gotHeaders.Get("X-Local-Id"))
	}
	if gotHeaders.Get("X-Verification-Code") != "VNT-2026031509000012-1A2B" {
		t.Fatalf("wrong X-Verification-Code: %q", gotHeaders.Get("X-Verification-Code"))
	}
	if gotHeaders.Get("X-Created-At") != "2026-03-15T09:00:00Z" {
		t.Fatalf("wrong X-Created-At: %q", gotHeaders.Get("X-Created-At"))
	}
	if gotHeaders.Get("Authorization") != "Bearer tok" {
		t.Fatal("replay must carry the snapshotted token")
	}
}

func TestSubmitSaleIDAlias(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"sale_id": 90}`))
	}))
	defer server.Close()

	result, err := newClient(server.URL).Submit(context.Background(), testSale())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.ServerSaleID != 90 {
		t.Fatalf("sale_id alias must be honored, got %+v", result)
	}
}

func TestSubmitConflictIsDuplicate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"existing_id": 77}`))
	}))
	defer server.Close()

	result, err := newClient(server.URL).Submit(context.Background(), testSale())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !result.AlreadyExists || result.ServerSaleID != 77 {
		t.Fatalf("409 must resolve as duplicate, got %+v", result)
	}
}

func TestSubmitConflictWithoutID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	result, err := newClient(server.URL).Submit(context.Background(), testSale())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !result.AlreadyExists || result.ServerSaleID != -1 {
		t.Fatalf("409 without an id must report -1, got %+v", result)
	}
}

func TestSubmitUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newClient(server.URL).Submit(context.Background(), testSale())
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("401 must map to an unauthorized error, got %v", err)
	}
}

func TestSubmitServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newClient(server.URL).Submit(context.Background(), testSale())
	if !pkgerrors.HasCode(err, pkgerrors.CodeRemoteRejected) {
		t.Fatalf("500 must map to a remote rejection, got %v", err)
	}
}

func TestSubmitTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := newClient(server.URL).Submit(context.Background(), testSale())
	if !pkgerrors.HasCode(err, pkgerrors.CodeNetwork) {
		t.Fatalf("refused connection must map to a network error, got %v", err)
	}
}
