// internal/adapters/notify/webhook.go
package notify

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"hotelcore/internal/adapters/observability"
	"hotelcore/internal/domain"
)

// Webhook is the post-commit notifier: it tells downstream collaborators
// (invoicing, guest email, dashboard refresh) that a reservation changed.
// Delivery is best-effort with client-side rate limiting and bounded retry;
// failures are logged and dropped, never surfaced to the booking write path.
type Webhook struct {
	url string
	hc  *http.Client
	rl  *rate.Limiter
}

func New(url string, rps int) *Webhook {
	if rps <= 0 {
		rps = 5
	}
	return &Webhook{
		url: url,
		hc:  &http.Client{Timeout: 20 * time.Second},
		rl:  rate.NewLimiter(rate.Limit(rps), rps),
	}
}

func (w *Webhook) ReservationCreated(ctx context.Context, r domain.Reservation) {
	w.deliver(ctx, "reservation.created", r)
}

func (w *Webhook) ReservationCancelled(ctx context.Context, r domain.Reservation) {
	w.deliver(ctx, "reservation.cancelled", r)
}

func (w *Webhook) ReservationStatusChanged(ctx context.Context, r domain.Reservation) {
	w.deliver(ctx, "reservation.status_changed", r)
}

type envelope struct {
	Event         string    `json:"event"`
	At            time.Time `json:"at"`
	ReservationID string    `json:"reservationId"`
	HotelID       int64     `json:"hotelId"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"paymentStatus"`
	CheckIn       string    `json:"checkIn"`
	CheckOut      string    `json:"checkOut"`
	TotalAmount   float64   `json:"totalAmount"`
	Currency      string    `json:"currency"`
}

func (w *Webhook) deliver(ctx context.Context, event string, r domain.Reservation) {
	if w.url == "" {
		return // disabled
	}
	body, err := json.Marshal(envelope{
		Event:         event,
		At:            time.Now().UTC(),
		ReservationID: r.ID,
		HotelID:       r.HotelID,
		Status:        string(r.Status),
		PaymentStatus: string(r.PaymentStatus),
		CheckIn:       r.CheckIn.Format("2006-01-02"),
		CheckOut:      r.CheckOut.Format("2006-01-02"),
		TotalAmount:   r.TotalAmount,
		Currency:      r.Currency,
	})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("webhook payload marshal failed")
		return
	}
	if err := w.post(ctx, event, body); err != nil {
		log.Warn().Err(err).Str("event", event).Str("reservation", r.ID).Msg("webhook delivery failed")
	}
}

// post performs a rate-limited POST with bounded retry on 429 and transient
// 5xx, honoring Retry-After when provided.
func (w *Webhook) post(ctx context.Context, event string, body []byte) error {
	if err := w.rl.Wait(ctx); err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "hotelcore/1.0")
		req.Header.Set("X-Hotel-Event", event)

		resp, err := w.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			return lastErr
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		observability.ObserveWebhook(event, resp.StatusCode)

		switch {
		case resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			wait := retryAfter(resp)
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("webhook status %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			return lastErr
		default:
			// 4xx other than 429: the receiver rejected the payload, no
			// point retrying.
			return fmt.Errorf("webhook rejected: status %d", resp.StatusCode)
		}
	}
	return lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date). Returns 0 if absent.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns an exponential delay (200ms, 400ms, 800ms...) with up to
// +50% jitter to avoid thundering herds.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}
