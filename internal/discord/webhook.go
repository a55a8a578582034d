// Package discord calls the event's Discord bot webhook, which assigns
// server roles to members after they link their account.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RoleAssigner grants the hackathon role to a Discord member. The OAuth
// service depends on this interface; tests substitute a fake.
type RoleAssigner interface {
	AssignRole(ctx context.Context, discordID string) error
}

// Webhook is the production RoleAssigner, POSTing to the bot's
// /upgrade endpoint.
type Webhook struct {
	baseURL string
	roleID  string
	client  *http.Client
}

// NewWebhook creates a Webhook client.
func NewWebhook(baseURL, roleID string) *Webhook {
	return &Webhook{
		baseURL: baseURL,
		roleID:  roleID,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type upgradeRequest struct {
	RoleID string `json:"roleId"`
	ID     string `json:"id"`
}

// AssignRole asks the bot to grant the configured role to the member.
func (w *Webhook) AssignRole(ctx context.Context, discordID string) error {
	if discordID == "" {
		return fmt.Errorf("discord: member id must not be empty")
	}

	payload, err := json.Marshal(upgradeRequest{RoleID: w.roleID, ID: discordID})
	if err != nil {
		return fmt.Errorf("discord: encoding upgrade request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		w.baseURL+"/upgrade", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("discord: building upgrade request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: calling role webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("discord: role webhook returned status %d", resp.StatusCode)
	}
	return nil
}
