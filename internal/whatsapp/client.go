package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"waba-gateway/internal/apperrors"
	"waba-gateway/internal/config"
)

// Client talks to the WhatsApp Business (Graph) API. It is tenant-agnostic:
// access token and phone number id are supplied per call, so one client
// serves every onboarded business.
type Client struct {
	BaseURL     string
	Version     string
	AppID       string
	AppSecret   string
	RedirectURI string
	HTTP        *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		BaseURL:     cfg.GraphBaseURL,
		Version:     cfg.GraphVersion,
		AppID:       cfg.FacebookAppID,
		AppSecret:   cfg.FacebookAppSecret,
		RedirectURI: cfg.RedirectURI,
		HTTP:        &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// --- Message Structures ---

type GenericMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type,omitempty"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Context          *ContextObj  `json:"context,omitempty"`
	Text             *TextObj     `json:"text,omitempty"`
	Image            *MediaObj    `json:"image,omitempty"`
	Video            *MediaObj    `json:"video,omitempty"`
	Audio            *MediaObj    `json:"audio,omitempty"`
	Document         *MediaObj    `json:"document,omitempty"`
	Template         *TemplateObj `json:"template,omitempty"`
}

type ContextObj struct {
	MessageID string `json:"message_id"`
}

type TextObj struct {
	Body       string `json:"body"`
	PreviewUrl bool   `json:"preview_url,omitempty"`
}

type MediaObj struct {
	ID       string `json:"id,omitempty"`
	Link     string `json:"link,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"` // For documents
}

type TemplateObj struct {
	Name       string         `json:"name"`
	Language   LanguageObj    `json:"language"`
	Components []ComponentObj `json:"components,omitempty"`
}

type LanguageObj struct {
	Code string `json:"code"`
}

type ComponentObj struct {
	Type       string         `json:"type"`
	SubType    string         `json:"sub_type,omitempty"`
	Parameters []ParameterObj `json:"parameters"`
	Index      string         `json:"index,omitempty"` // For buttons
}

type ParameterObj struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	Image    *MediaObj `json:"image,omitempty"`
	Video    *MediaObj `json:"video,omitempty"`
	Document *MediaObj `json:"document,omitempty"`
}

// --- Responses ---

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// PhoneNumberInfo is the subset of phone number metadata used by the
// connection test.
type PhoneNumberInfo struct {
	ID                 string `json:"id"`
	DisplayPhoneNumber string `json:"display_phone_number"`
	VerifiedName       string `json:"verified_name"`
	QualityRating      string `json:"quality_rating"`
}

type graphErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// --- Helper Functions ---

func (c *Client) sendRequest(ctx context.Context, method, url, token string, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		// Timeouts and transport failures count as provider failures so the
		// caller can route them through the normal failure path.
		return nil, &apperrors.ProviderError{Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperrors.ProviderError{StatusCode: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode >= 400 {
		return respBody, newAPIError(resp.StatusCode, respBody)
	}

	return respBody, nil
}

func newAPIError(status int, body []byte) *apperrors.ProviderError {
	var parsed graphErrorBody
	message := string(body)
	code := 0
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
		code = parsed.Error.Code
	}

	return &apperrors.ProviderError{
		StatusCode:  status,
		Code:        code,
		Message:     message,
		RateLimited: status == http.StatusTooManyRequests || isRateLimitCode(code),
	}
}

// Graph API error codes that signal throttling rather than a hard failure.
func isRateLimitCode(code int) bool {
	switch code {
	case 4, 80007, 130429:
		return true
	}
	return false
}

// --- Messaging ---

// SendMessage posts one message on behalf of a business and returns the
// provider-assigned message id.
func (c *Client) SendMessage(ctx context.Context, token, phoneNumberID string, msg GenericMessage) (string, error) {
	if msg.MessagingProduct == "" {
		msg.MessagingProduct = "whatsapp"
	}

	url := fmt.Sprintf("%s/%s/%s/messages", c.BaseURL, c.Version, phoneNumberID)
	respBody, err := c.sendRequest(ctx, http.MethodPost, url, token, msg)
	if err != nil {
		return "", err
	}

	var resp sendResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", &apperrors.ProviderError{Message: "unparseable send response: " + err.Error()}
	}
	if len(resp.Messages) == 0 {
		return "", &apperrors.ProviderError{Message: "send response contained no message id"}
	}

	return resp.Messages[0].ID, nil
}

// --- Onboarding ---

// ExchangeCode swaps a one-time authorization code for a long-lived access
// token. Codes are single-use and expire within minutes; the caller must
// obtain a fresh one if the exchange fails.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	q := url.Values{}
	q.Set("client_id", c.AppID)
	q.Set("client_secret", c.AppSecret)
	q.Set("redirect_uri", c.RedirectURI)
	q.Set("code", code)

	u := fmt.Sprintf("%s/%s/oauth/access_token?%s", c.BaseURL, c.Version, q.Encode())
	respBody, err := c.sendRequest(ctx, http.MethodGet, u, "", nil)
	if err != nil {
		return "", err
	}

	var resp tokenResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", &apperrors.ProviderError{Message: "unparseable token response: " + err.Error()}
	}
	if resp.AccessToken == "" {
		return "", &apperrors.ProviderError{Message: "token response contained no access_token"}
	}

	return resp.AccessToken, nil
}

// AuthorizationURL builds the OAuth dialog URL a business visits to grant
// WhatsApp Business permissions. state carries the business id through the
// redirect.
func (c *Client) AuthorizationURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.AppID)
	q.Set("redirect_uri", c.RedirectURI)
	q.Set("scope", "whatsapp_business_management,whatsapp_business_messaging")
	q.Set("response_type", "code")
	if state != "" {
		q.Set("state", state)
	}

	return fmt.Sprintf("https://www.facebook.com/%s/dialog/oauth?%s", c.Version, q.Encode())
}

// --- Diagnostics ---

// CheckPhoneNumber fetches phone number metadata with the business's own
// token, proving the stored credentials still work.
func (c *Client) CheckPhoneNumber(ctx context.Context, token, phoneNumberID string) (*PhoneNumberInfo, error) {
	u := fmt.Sprintf("%s/%s/%s?fields=id,display_phone_number,verified_name,quality_rating", c.BaseURL, c.Version, phoneNumberID)
	respBody, err := c.sendRequest(ctx, http.MethodGet, u, token, nil)
	if err != nil {
		return nil, err
	}

	var info PhoneNumberInfo
	if err := json.Unmarshal(respBody, &info); err != nil {
		return nil, &apperrors.ProviderError{Message: "unparseable phone number response: " + err.Error()}
	}

	return &info, nil
}
