package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/huangang/campusgig/internal/config"
	"github.com/huangang/campusgig/pkg/logger"
)

const SignatureHeader = "X-Campusgig-Signature"

// RevealPayload is the JSON body POSTed to the reveal webhook.
type RevealPayload struct {
	Event  string      `json:"event"`
	Review *RevealTask `json:"review"`
	SentAt time.Time   `json:"sent_at"`
}

// NotificationService processes reveal tasks: each task becomes one SSE
// event, and a webhook call when one is configured. Queue redeliveries only
// retry the webhook.
type NotificationService struct {
	hub        *SSEHub
	client     *http.Client
	webhookURL string
	secret     string
}

func NewNotificationService(cfg *config.NotificationConfig, hub *SSEHub) *NotificationService {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NotificationService{
		hub:        hub,
		client:     &http.Client{Timeout: timeout},
		webhookURL: cfg.WebhookURL,
		secret:     cfg.Secret,
	}
}

// Process is the task processor for both queue kinds. The SSE event goes out
// on the first attempt only; see WithAttempt.
func (s *NotificationService) Process(ctx context.Context, task *RevealTask) error {
	if s.hub != nil && DeliveryAttempt(ctx) == 0 {
		s.hub.Publish(RevealEvent{
			ReviewID:     task.ReviewID,
			JobID:        task.JobID,
			ReviewerID:   task.ReviewerID,
			ReviewerName: task.ReviewerName,
			RevieweeID:   task.RevieweeID,
			ReviewerRole: task.ReviewerRole,
			Rating:       task.Rating,
			VisibleAt:    task.VisibleAt,
		}, task.PartyIDs...)
	}

	if s.webhookURL == "" {
		return nil
	}

	payload := RevealPayload{
		Event:  TaskTypeReviewRevealed,
		Review: task,
		SentAt: time.Now().UTC(),
	}
	if err := s.postJSON(ctx, s.webhookURL, payload); err != nil {
		logger.Warnf("[Notification] Webhook for review %d failed: %v", task.ReviewID, err)
		return err
	}
	logger.Infof("[Notification] Reveal of review %d delivered", task.ReviewID)
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *NotificationService) postJSON(ctx context.Context, webhookURL string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(s.secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
