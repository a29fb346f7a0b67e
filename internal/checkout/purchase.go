package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/noah-isme/backend-kreatif/internal/cart"
	"github.com/noah-isme/backend-kreatif/internal/pricing"
	"github.com/noah-isme/backend-kreatif/internal/resilience"
)

// ErrPurchaseRejected is returned when the catalog backend refuses a purchase.
var ErrPurchaseRejected = errors.New("checkout: purchase rejected")

// PurchaseRequest is submitted to the catalog backend.
type PurchaseRequest struct {
	UserID     string        `json:"userId"`
	Items      []cart.Item   `json:"items"`
	CouponCode string        `json:"couponCode,omitempty"`
	Subtotal   pricing.Money `json:"subtotal"`
	Discount   pricing.Money `json:"discount"`
	Total      pricing.Money `json:"total"`
	Currency   string        `json:"currency"`
}

// PurchaseResult is the catalog backend's acknowledgement.
type PurchaseResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Purchaser submits purchases.
type Purchaser interface {
	Submit(ctx context.Context, idempotencyKey string, req PurchaseRequest) (PurchaseResult, error)
}

// HTTPPurchaser posts purchases to {BaseURL}/purchases.
type HTTPPurchaser struct {
	BaseURL string
	Client  *resilience.HTTPClient
	// Token, when set, authenticates the storefront to the catalog backend.
	Token string
}

// Submit implements Purchaser.
func (p HTTPPurchaser) Submit(ctx context.Context, idempotencyKey string, in PurchaseRequest) (PurchaseResult, error) {
	if p.Client == nil || strings.TrimSpace(p.BaseURL) == "" {
		return PurchaseResult{}, errors.New("checkout: purchase api not configured")
	}
	body, err := json.Marshal(in)
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("checkout: encode purchase: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(p.BaseURL, "/")+"/purchases", bytes.NewReader(body))
	if err != nil {
		return PurchaseResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if p.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.Token)
	}

	resp, err := p.Client.Do(ctx, req)
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("checkout: submit purchase: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("checkout: read purchase response: %w", err)
	}

	if resp.StatusCode >= 400 {
		msg := extractMessage(raw)
		if msg == "" {
			msg = resp.Status
		}
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return PurchaseResult{}, fmt.Errorf("checkout: purchase api unavailable: %s", msg)
		}
		return PurchaseResult{}, fmt.Errorf("%w: %s", ErrPurchaseRejected, msg)
	}

	var envelope struct {
		Data *PurchaseResult `json:"data"`
		PurchaseResult
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return PurchaseResult{}, fmt.Errorf("checkout: decode purchase response: %w", err)
	}
	out := envelope.PurchaseResult
	if envelope.Data != nil {
		out = *envelope.Data
	}
	if out.ID == "" {
		return PurchaseResult{}, errors.New("checkout: purchase response missing id")
	}
	return out, nil
}

func extractMessage(raw []byte) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if body.Error.Message != "" {
		return body.Error.Message
	}
	return body.Message
}
