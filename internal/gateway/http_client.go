package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/TalentGate/candidate-session-service/internal/models"
	"github.com/TalentGate/candidate-session-service/internal/utils"
)

const (
	codeTokenInvalid     = "TOKEN_INVALID"
	codeAlreadySubmitted = "ALREADY_SUBMITTED"
)

type errorBody struct {
	Code        string     `json:"code"`
	Message     string     `json:"message"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type submitRequest struct {
	Answers []models.WireAnswer `json:"answers"`
}

// Client is the HTTP implementation of Gateway.
type Client struct {
	baseURL string
	http    *http.Client
	logger  utils.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger utils.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *Client) FetchSession(ctx context.Context, token string) (*models.SessionData, error) {
	endpoint := fmt.Sprintf("%s/sessions/%s", c.baseURL, url.PathEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build session request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "fetch session", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.decodeError(resp, "fetch session")
	}

	var data models.SessionData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}

	c.logger.Info("Session resolved",
		"tests", len(data.Tests),
		"candidate", data.Candidate.Name)
	return &data, nil
}

func (c *Client) SubmitAnswers(ctx context.Context, token string, answers []models.WireAnswer) (*SubmitAck, error) {
	payload, err := json.Marshal(submitRequest{Answers: answers})
	if err != nil {
		return nil, fmt.Errorf("failed to encode answer batch: %w", err)
	}

	endpoint := fmt.Sprintf("%s/sessions/%s/answers", c.baseURL, url.PathEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "submit answers", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.decodeError(resp, "submit answers")
	}

	var ack SubmitAck
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, fmt.Errorf("failed to decode submit acknowledgement: %w", err)
	}

	c.logger.Info("Answer batch submitted",
		"answers", len(answers),
		"received", ack.ReceivedCount)
	return &ack, nil
}

func (c *Client) decodeError(resp *http.Response, op string) error {
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	switch body.Code {
	case codeTokenInvalid:
		return ErrTokenInvalid
	case codeAlreadySubmitted:
		already := &AlreadySubmittedError{}
		if body.CompletedAt != nil {
			already.CompletedAt = *body.CompletedAt
		}
		return already
	default:
		return &NetworkError{Op: op, Err: fmt.Errorf("status %d: %s", resp.StatusCode, body.Message)}
	}
}
