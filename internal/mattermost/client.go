package mattermost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

type Client struct {
	baseURL    string
	botToken   string
	httpClient *http.Client
}

func NewClient(baseURL, botToken string) *Client {
	return &Client{
		baseURL:    baseURL,
		botToken:   botToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Post represents a Mattermost post.
type Post struct {
	ID        string   `json:"id,omitempty"`
	ChannelID string   `json:"channel_id"`
	Message   string   `json:"message"`
	FileIDs   []string `json:"file_ids,omitempty"`
	Props     Props    `json:"props,omitempty"`
}

// Props holds post properties including attachments.
type Props struct {
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a Mattermost message attachment.
type Attachment struct {
	Text      string   `json:"text,omitempty"`
	Color     string   `json:"color,omitempty"`
	TitleLink string   `json:"title_link,omitempty"`
	Title     string   `json:"title,omitempty"`
	Actions   []Action `json:"actions,omitempty"`
	Fields    []Field  `json:"fields,omitempty"`
}

// Action represents an interactive button.
type Action struct {
	ID          string      `json:"id,omitempty"`
	Name        string      `json:"name"`
	Type        string      `json:"type,omitempty"` // "button" or "select"
	Integration Integration `json:"integration"`
}

// Integration defines what happens when the action is triggered.
type Integration struct {
	URL     string         `json:"url"`
	Context map[string]any `json:"context,omitempty"`
}

// Field represents a key-value field in an attachment.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// User holds the user fields the bot needs.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Locale   string `json:"locale"`
}

// FileInfo describes an uploaded file.
type FileInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Extension string `json:"extension"`
	MimeType  string `json:"mime_type"`
	Size      int64  `json:"size"`
}

// CreatePost creates a new post in a channel.
func (c *Client) CreatePost(ctx context.Context, post *Post) (*Post, error) {
	var result Post
	if err := c.doJSON(ctx, http.MethodPost, "/api/v4/posts", post, &result); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return &result, nil
}

// DirectChannel gets or creates the DM channel between the bot and a user.
func (c *Client) DirectChannel(ctx context.Context, userID string) (string, error) {
	var me struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v4/users/me", nil, &me); err != nil {
		return "", fmt.Errorf("get bot user: %w", err)
	}
	var channel struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v4/channels/direct", []string{me.ID, userID}, &channel); err != nil {
		return "", fmt.Errorf("create dm channel: %w", err)
	}
	return channel.ID, nil
}

// GetUser retrieves a user by ID.
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	var user User
	if err := c.doJSON(ctx, http.MethodGet, "/api/v4/users/"+userID, nil, &user); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// GetFileInfo returns metadata of an uploaded file.
func (c *Client) GetFileInfo(ctx context.Context, fileID string) (*FileInfo, error) {
	var info FileInfo
	if err := c.doJSON(ctx, http.MethodGet, "/api/v4/files/"+fileID+"/info", nil, &info); err != nil {
		return nil, fmt.Errorf("get file info: %w", err)
	}
	return &info, nil
}

// DownloadFile fetches the content of an uploaded file.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v4/files/"+fileID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("download file: api error %d: %s", resp.StatusCode, string(body))
	}
	return io.ReadAll(resp.Body)
}

// UploadFile uploads data into a channel and returns the new file ID.
func (c *Client) UploadFile(ctx context.Context, channelID, filename string, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("channel_id", channelID); err != nil {
		return "", fmt.Errorf("write channel field: %w", err)
	}
	part, err := mw.CreateFormFile("files", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v4/files", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload file: api error %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		FileInfos []FileInfo `json:"file_infos"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if len(result.FileInfos) == 0 {
		return "", fmt.Errorf("upload file: empty response")
	}
	return result.FileInfos[0].ID, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.botToken)
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("api error %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
