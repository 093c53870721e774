// Package service contains infrastructure adapters for outbound
// collaborators of the progress engine.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/articulearn/progress-engine/internal/domain/shared"
	"github.com/articulearn/progress-engine/pkg/logger"
	"github.com/articulearn/progress-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// WebhookNotifier delivers user notifications to the notification
// collaborator over an HTTP webhook. Delivery is best effort; the engine
// never blocks an attempt on it.
type WebhookNotifier struct {
	endpoint string
	client   *http.Client
	retrier  *retry.Retrier
	log      *logger.Logger
}

// NewWebhookNotifier creates a notifier posting to the given endpoint.
func NewWebhookNotifier(endpoint string, log *logger.Logger) *WebhookNotifier {
	if log == nil {
		log = logger.Default()
	}
	return &WebhookNotifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
		retrier: retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(100*time.Millisecond),
			retry.WithMaxDelay(time.Second),
		),
		log: log,
	}
}

// notificationPayload is the wire format of one outbound notification.
type notificationPayload struct {
	Kind    string `json:"kind"`
	UserID  string `json:"user_id"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Payload any    `json:"payload,omitempty"`
}

// NotifyLevelUp informs the user about a level increase.
func (n *WebhookNotifier) NotifyLevelUp(ctx context.Context, userID string, newLevel int) error {
	return n.send(ctx, notificationPayload{
		Kind:   "level_up",
		UserID: userID,
		Title:  "Level up!",
		Body:   fmt.Sprintf("You reached level %d. Keep practicing!", newLevel),
		Payload: map[string]int{
			"new_level": newLevel,
		},
	})
}

// NotifyBadgeUnlocked informs the user about an unlocked badge.
func (n *WebhookNotifier) NotifyBadgeUnlocked(ctx context.Context, userID, badgeID string) error {
	return n.send(ctx, notificationPayload{
		Kind:   "badge_unlocked",
		UserID: userID,
		Title:  "New badge",
		Body:   "You unlocked a new badge.",
		Payload: map[string]string{
			"badge_id": badgeID,
		},
	})
}

// NotifyCourseCompleted congratulates the user on finishing a course.
func (n *WebhookNotifier) NotifyCourseCompleted(ctx context.Context, userID, courseID string) error {
	return n.send(ctx, notificationPayload{
		Kind:   "course_completed",
		UserID: userID,
		Title:  "Course completed",
		Body:   "Congratulations, you finished the course!",
		Payload: map[string]string{
			"course_id": courseID,
		},
	})
}

// send posts one notification with bounded retries.
func (n *WebhookNotifier) send(ctx context.Context, p notificationPayload) error {
	if n.endpoint == "" {
		// No collaborator configured; log-only mode.
		n.log.Info("notification (no endpoint configured)",
			logger.String("kind", p.Kind),
			logger.String("user_id", p.UserID),
		)
		return nil
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	err = n.retrier.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return retry.Retryable(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.Retryable(fmt.Errorf("notification endpoint returned %d", resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			return retry.Permanent(fmt.Errorf("notification endpoint rejected request: %d", resp.StatusCode))
		}
		return nil
	})
	if err != nil {
		return shared.WrapError("notification", "Send", shared.ErrStorageUnavailable, "delivery failed", err)
	}

	return nil
}

// LogNotifier is the no-delivery notifier used in development and tests.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.Default()
	}
	return &LogNotifier{log: log}
}

// NotifyLevelUp logs the level up.
func (n *LogNotifier) NotifyLevelUp(_ context.Context, userID string, newLevel int) error {
	n.log.Info("notify level up", logger.String("user_id", userID), logger.Int("new_level", newLevel))
	return nil
}

// NotifyBadgeUnlocked logs the badge unlock.
func (n *LogNotifier) NotifyBadgeUnlocked(_ context.Context, userID, badgeID string) error {
	n.log.Info("notify badge unlocked", logger.String("user_id", userID), logger.String("badge_id", badgeID))
	return nil
}

// NotifyCourseCompleted logs the course completion.
func (n *LogNotifier) NotifyCourseCompleted(_ context.Context, userID, courseID string) error {
	n.log.Info("notify course completed", logger.String("user_id", userID), logger.String("course_id", courseID))
	return nil
}
