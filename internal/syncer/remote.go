package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/pagemark/pagemark/internal/errors"
)

// RemoteStore is the thin network client the engine reconciles against.
// Reconcile must be idempotent under retry: the remote side upserts notes by
// id, so resending an already-synced note is harmless.
type RemoteStore interface {
	Reconcile(ctx context.Context, req *ReconcileRequest) (*ReconcileResponse, error)
}

// requestTimeout bounds a single reconcile call.
const requestTimeout = 30 * time.Second

// HTTPRemote reconciles against an HTTP remote store.
type HTTPRemote struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPRemote creates an HTTP remote store adapter. token may be empty for
// remotes that authenticate differently.
func NewHTTPRemote(baseURL, token string) *HTTPRemote {
	return &HTTPRemote{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// Reconcile POSTs the cycle's sealed notes and deletions and returns the
// missing set. Transport failures and non-2xx responses surface as
// NETWORK_UNAVAILABLE so the engine can park in Error and retry next tick.
func (r *HTTPRemote) Reconcile(ctx context.Context, req *ReconcileRequest) (*ReconcileResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/reconcile", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.token)
	}
	if req.CycleID != "" {
		httpReq.Header.Set("X-Idempotency-Key", req.CycleID)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewNetworkUnavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Auth failures take the same retry path as transport failures.
		return nil, apperrors.NewNetworkUnavailable(fmt.Errorf("reconcile returned %s", resp.Status))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, apperrors.NewNetworkUnavailable(err)
	}

	out := &ReconcileResponse{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, apperrors.NewNetworkUnavailable(fmt.Errorf("malformed reconcile response: %w", err))
	}
	return out, nil
}
