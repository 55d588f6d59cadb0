package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// MandrillClient sends templated mail through a Mandrill-compatible
// transactional email API.
type MandrillClient struct {
	baseURL    string
	key        string
	httpClient *http.Client
}

// APIError represents a provider error response.
type APIError struct {
	Status  int
	Name    string
	Message string
}

func (e *APIError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s - %s", e.Name, e.Message)
	}
	return e.Message
}

// NewMandrillClient constructs a provider client.
func NewMandrillClient(baseURL, key string) *MandrillClient {
	if baseURL == "" {
		baseURL = "https://mandrillapp.com/api/1.0"
	}
	return &MandrillClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		key:        key,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type templateRequest struct {
	Key          string          `json:"key"`
	TemplateName string          `json:"template_name"`
	Message      templateMessage `json:"message"`
}

type templateMessage struct {
	To              []Address    `json:"to"`
	Merge           bool         `json:"merge"`
	GlobalMergeVars []mergeVar   `json:"global_merge_vars,omitempty"`
	Attachments     []Attachment `json:"attachments,omitempty"`
	Tags            []string     `json:"tags,omitempty"`
}

type mergeVar struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// SendTemplate posts a send-template request and fails on any provider error.
func (c *MandrillClient) SendTemplate(ctx context.Context, msg Message) error {
	vars := make([]mergeVar, 0, len(msg.Vars))
	for name, content := range msg.Vars {
		vars = append(vars, mergeVar{Name: name, Content: content})
	}
	req := templateRequest{
		Key:          c.key,
		TemplateName: msg.Template,
		Message: templateMessage{
			To:              msg.To,
			Merge:           true,
			GlobalMergeVars: vars,
			Attachments:     msg.Attachments,
			Tags:            msg.Tags,
		},
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode mail request: %w", err)
	}
	url := c.baseURL + "/messages/send-template.json"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		message := errResp.Message
		if message == "" {
			message = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Name: errResp.Name, Message: message}
	}
	return nil
}
