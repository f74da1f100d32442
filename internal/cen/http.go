package cen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"robo-ingest/internal/apperr"
	"robo-ingest/internal/model"

	json "github.com/goccy/go-json"
)

// HTTPDeliverer POSTs each delivery to a Receiver running in another process.
//
//	200 → ReceiveResult (admitted / duplicate)
//	422 → ErrPermanent
//	그 외 / 네트워크 오류 → ErrTransient
type HTTPDeliverer struct {
	url    string
	token  string
	client *http.Client
}

func NewHTTPDeliverer(url, token string, client *http.Client) *HTTPDeliverer {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPDeliverer{url: url, token: token, client: client}
}

func (h *HTTPDeliverer) Deliver(ctx context.Context, d model.InboundDelivery) (model.ReceiveResult, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return model.ReceiveResult{}, fmt.Errorf("%w: encode delivery: %w", apperr.ErrPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return model.ReceiveResult{}, fmt.Errorf("%w: %w", apperr.ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", d.DeliveryID)
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return model.ReceiveResult{}, fmt.Errorf("%w: %w", apperr.ErrTransient, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	switch resp.StatusCode {
	case http.StatusOK:
		var res model.ReceiveResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return model.ReceiveResult{}, fmt.Errorf("%w: decode receiver response: %w", apperr.ErrTransient, err)
		}
		return res, nil
	case http.StatusUnprocessableEntity:
		return model.ReceiveResult{}, fmt.Errorf("%w: receiver status 422", apperr.ErrPermanent)
	default:
		return model.ReceiveResult{}, fmt.Errorf("%w: receiver status %d", apperr.ErrTransient, resp.StatusCode)
	}
}
