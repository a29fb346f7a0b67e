package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kreatif/internal/cart"
	"github.com/noah-isme/backend-kreatif/internal/common"
	"github.com/noah-isme/backend-kreatif/internal/obs"
	"github.com/noah-isme/backend-kreatif/internal/pricing"
)

// TaskType is the asynq task type for purchase receipts.
const TaskType = "purchase:receipt"

// Queue is the asynq queue receipts are delivered on.
const Queue = "receipts"

// Payload describes a completed purchase.
type Payload struct {
	PurchaseID  string        `json:"purchaseId"`
	UserID      string        `json:"userId"`
	Email       string        `json:"email,omitempty"`
	Items       []cart.Item   `json:"items"`
	CouponCode  string        `json:"couponCode,omitempty"`
	Subtotal    pricing.Money `json:"subtotal"`
	Discount    pricing.Money `json:"discount"`
	Total       pricing.Money `json:"total"`
	Currency    string        `json:"currency"`
	PurchasedAt time.Time     `json:"purchasedAt"`
}

// NewTask encodes p as an asynq task. The purchase id doubles as task id so a
// retried checkout cannot enqueue two receipts.
func NewTask(p Payload) (*asynq.Task, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("receipt: encode payload: %w", err)
	}
	opts := []asynq.Option{asynq.Queue(Queue), asynq.MaxRetry(10), asynq.Timeout(30 * time.Second)}
	if p.PurchaseID != "" {
		opts = append(opts, asynq.TaskID("receipt:"+p.PurchaseID))
	}
	return asynq.NewTask(TaskType, body, opts...), nil
}

// Enqueuer publishes receipt tasks through an asynq client.
type Enqueuer struct {
	Client *asynq.Client
}

// EnqueueReceipt implements the checkout receipt publisher.
func (e Enqueuer) EnqueueReceipt(ctx context.Context, p Payload) error {
	if e.Client == nil {
		return errors.New("receipt: asynq client not configured")
	}
	task, err := NewTask(p)
	if err != nil {
		return err
	}
	if _, err := e.Client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("receipt: enqueue: %w", err)
	}
	return nil
}

// Handler sends receipts for purchase tasks.
type Handler struct {
	Mail   common.Mailer
	Logger zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (h Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		obs.ObserveReceipt("invalid")
		return fmt.Errorf("receipt: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	logger := h.Logger.With().Str("purchase_id", p.PurchaseID).Str("user_id", p.UserID).Logger()
	to := strings.TrimSpace(p.Email)
	if to == "" {
		logger.Info().Msg("receipt_skipped_no_recipient")
		obs.ObserveReceipt("skipped")
		return nil
	}
	if h.Mail == nil {
		return errors.New("receipt: mail sender not configured")
	}
	if err := h.Mail.Send(ctx, common.Message{To: to, Subject: "Pembelian berhasil", Body: Render(p)}); err != nil {
		obs.ObserveReceipt("error")
		logger.Error().Err(err).Msg("receipt_send_failed")
		return err
	}
	obs.ObserveReceipt("sent")
	logger.Info().Msg("receipt_sent")
	return nil
}

// Render formats the receipt body.
func Render(p Payload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ID Pembelian: %s\n", p.PurchaseID)
	fmt.Fprintf(&b, "Tanggal: %s\n\n", p.PurchasedAt.Format(time.RFC3339))
	for _, it := range p.Items {
		title := it.Title
		if title == "" {
			title = it.ID
		}
		fmt.Fprintf(&b, "- %s (%s): %d %s\n", title, it.Kind, it.Price, p.Currency)
	}
	fmt.Fprintf(&b, "\nSubtotal: %d %s\n", p.Subtotal, p.Currency)
	if p.Discount > 0 {
		fmt.Fprintf(&b, "Diskon (%s): -%d %s\n", p.CouponCode, p.Discount, p.Currency)
	}
	fmt.Fprintf(&b, "Total: %d %s\n", p.Total, p.Currency)
	return b.String()
}
