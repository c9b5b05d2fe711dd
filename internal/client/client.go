// Package client is the Go consumer of the consultation service API. It
// implements the sync package's HistoryFetcher, RecordFetcher and
// ChannelOpener over HTTP and websocket, so a Session can be driven against
// a live service.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"consultation-service/internal/models"
	syncpkg "consultation-service/internal/sync"
)

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Client talks to one consultation service on behalf of one caller.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New builds a Client. baseURL is the service root, e.g. "http://host:8083".
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchPage retrieves one backward history page.
func (c *Client) FetchPage(ctx context.Context, consultationID int64, pageSize int, cursor *string) (syncpkg.Page, error) {
	endpoint := fmt.Sprintf("%s/consultations/%d/messages", c.baseURL, consultationID)
	query := url.Values{"page_size": {strconv.Itoa(pageSize)}}
	if cursor != nil {
		query.Set("cursor", *cursor)
	}

	var page syncpkg.Page
	if err := c.getJSON(ctx, endpoint+"?"+query.Encode(), &page); err != nil {
		return syncpkg.Page{}, err
	}
	return page, nil
}

// consultationView mirrors the API's viewer-shaped consultation body.
type consultationView struct {
	ID          int64           `json:"id"`
	Counterpart models.Party    `json:"counterpart"`
	TimeSlot    models.TimeSlot `json:"time_slot"`
	Status      models.Status   `json:"status"`
	CompletedAt *time.Time      `json:"completed_at"`
	MeetingLink *string         `json:"meeting_link"`
}

// GetConsultation reloads the authoritative record. The API serves the
// viewer's shape, so the returned record carries what gating needs (id,
// status, time slot, completed_at), not both parties.
func (c *Client) GetConsultation(ctx context.Context, id int64) (models.Consultation, error) {
	var body struct {
		Consultation consultationView `json:"consultation"`
	}
	endpoint := fmt.Sprintf("%s/consultations/%d", c.baseURL, id)
	if err := c.getJSON(ctx, endpoint, &body); err != nil {
		return models.Consultation{}, err
	}

	view := body.Consultation
	return models.Consultation{
		ID:          view.ID,
		TimeSlot:    view.TimeSlot,
		Status:      view.Status,
		CompletedAt: view.CompletedAt,
		MeetingLink: view.MeetingLink,
	}, nil
}

// Start requests the scheduled -> in_progress transition.
func (c *Client) Start(ctx context.Context, consultationID int64, force bool) error {
	endpoint := fmt.Sprintf("%s/consultations/%d/start", c.baseURL, consultationID)
	payload := fmt.Sprintf(`{"force":%t}`, force)
	return c.postJSON(ctx, endpoint, payload)
}

// Complete requests the in_progress -> completed transition.
func (c *Client) Complete(ctx context.Context, consultationID int64) error {
	endpoint := fmt.Sprintf("%s/consultations/%d/complete", c.baseURL, consultationID)
	return c.postJSON(ctx, endpoint, "")
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(ctx context.Context, endpoint, payload string) error {
	var body io.Reader
	if payload != "" {
		body = strings.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	_ = json.NewDecoder(resp.Body).Decode(apiErr)
	if apiErr.Message == "" {
		apiErr.Message = resp.Status
	}
	return apiErr
}
