// Package api is a typed client for the waffle-talkie REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type RegisterResponse struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

type LoginResponse struct {
	Token          string    `json:"token"`
	UserID         string    `json:"user_id"`
	Name           string    `json:"name"`
	TokenExpiresAt time.Time `json:"token_expires_at"`
}

type RemoteMessage struct {
	ID           string     `json:"id"`
	SenderUserID string     `json:"sender_user_id"`
	Duration     float64    `json:"duration"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

type messagesResponse struct {
	Messages []RemoteMessage `json:"messages"`
}

type UploadResponse struct {
	MessageID string `json:"message_id"`
	Message   string `json:"message"`
}

type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type usersResponse struct {
	Users []User `json:"users"`
}

func (c *Client) Register(ctx context.Context, name, deviceID string) (*RegisterResponse, error) {
	payload := map[string]string{"name": name, "device_id": deviceID}
	var resp RegisterResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/register", "", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Login(ctx context.Context, deviceID string) (*LoginResponse, error) {
	payload := map[string]string{"device_id": deviceID}
	var resp LoginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", "", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListMessages(ctx context.Context, token string) ([]RemoteMessage, error) {
	var resp messagesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/audio-messages", token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Upload sends one recorded memo as multipart form data: an "audio" file
// part plus a "duration" field holding seconds.
func (c *Client) Upload(ctx context.Context, token string, audio io.Reader, filename string, duration float64) (*UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("audio", filename)
	if err != nil {
		return nil, fmt.Errorf("multipart: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, fmt.Errorf("copy audio: %w", err)
	}
	if err := mw.WriteField("duration", strconv.FormatFloat(duration, 'f', -1, 64)); err != nil {
		return nil, fmt.Errorf("multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/audio-messages/upload", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, errorFromResponse(resp)
	}

	var out UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// Download streams the raw audio bytes of one message into dst.
func (c *Client) Download(ctx context.Context, token, messageID string, dst io.Writer) error {
	query := url.Values{}
	query.Set("id", messageID)
	path := "/api/audio-messages/download?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errorFromResponse(resp)
	}

	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("download body: %w", err)
	}
	return nil
}

func (c *Client) MarkReceived(ctx context.Context, token, messageID string) error {
	payload := map[string]string{"message_id": messageID}
	return c.doJSON(ctx, http.MethodPost, "/api/audio-messages/received", token, payload, nil)
}

func (c *Client) ListUsers(ctx context.Context, token string) ([]User, error) {
	var resp usersResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/users", token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, payload any, out any) error {
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errorFromResponse(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
