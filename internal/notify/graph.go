package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-voicetrigger/internal/types"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/util"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	graphBaseURL     = "https://graph.microsoft.com/v1.0"
	graphScope       = "https://graph.microsoft.com/.default"
	tokenURLTemplate = "https://login.microsoftonline.com/%s/oauth2/v2.0/token" //nolint:gosec // URL template, not a credential

	mailAttempts     = 4
	initialRetryWait = 1 * time.Second
	maxRetryWait     = 30 * time.Second
	httpTimeout      = 30 * time.Second
)

var errNoRecipients = errors.New("no valid recipients")

var guidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// credentialField is one required app registration value.
type credentialField struct {
	name  string
	value string
	guid  bool
}

func credentialFields(cfg *types.GraphConfig) []credentialField {
	return []credentialField{
		{"tenant ID", cfg.TenantID, true},
		{"client ID", cfg.ClientID, true},
		{"client secret", cfg.ClientSecret, false},
		{"from address (shared mailbox)", cfg.FromAddress, false},
	}
}

// checkCredentials reports the first missing field. With strictGUID the
// tenant and client IDs must also be GUIDs.
func checkCredentials(cfg *types.GraphConfig, strictGUID bool) error {
	for _, f := range credentialFields(cfg) {
		if f.value == "" {
			return fmt.Errorf("%s is required", f.name)
		}
		if strictGUID && f.guid && !guidPattern.MatchString(f.value) {
			return fmt.Errorf("%s must be a valid GUID (e.g., 12345678-1234-1234-1234-123456789abc)", f.name)
		}
	}
	return nil
}

// graphEndpoints are the token and API base URLs a GraphClient talks to.
type graphEndpoints struct {
	tokenURL string
	apiURL   string
}

func defaultEndpoints(tenantID string) graphEndpoints {
	return graphEndpoints{
		tokenURL: fmt.Sprintf(tokenURLTemplate, tenantID),
		apiURL:   graphBaseURL,
	}
}

// GraphClient sends alert mail from a shared mailbox with app-only
// credentials.
type GraphClient struct {
	mailbox    string
	apiURL     string
	httpClient *http.Client
}

// NewGraphClient creates a client for the Microsoft Graph endpoints of the
// configured tenant.
func NewGraphClient(cfg *types.GraphConfig) (*GraphClient, error) {
	return newGraphClient(cfg, defaultEndpoints(cfg.TenantID))
}

func newGraphClient(cfg *types.GraphConfig, ep graphEndpoints) (*GraphClient, error) {
	if err := checkCredentials(cfg, false); err != nil {
		return nil, err
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     ep.tokenURL,
		Scopes:       []string{graphScope},
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: httpTimeout})

	return &GraphClient{
		mailbox:    cfg.FromAddress,
		apiURL:     ep.apiURL,
		httpClient: cc.Client(tokenCtx),
	}, nil
}

func (c *GraphClient) userURL(suffix string) string {
	return c.apiURL + "/users/" + url.PathEscape(c.mailbox) + suffix
}

type graphAddress struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type graphMailRequest struct {
	Message struct {
		Subject string `json:"subject"`
		Body    struct {
			ContentType string `json:"contentType"`
			Content     string `json:"content"`
		} `json:"body"`
		ToRecipients []graphAddress `json:"toRecipients"`
	} `json:"message"`
}

// SendMail sends a plain text message to recipients. Blank addresses are
// skipped.
func (c *GraphClient) SendMail(ctx context.Context, recipients []string, subject, body string) error {
	var req graphMailRequest
	for _, addr := range recipients {
		if addr = strings.TrimSpace(addr); addr == "" {
			continue
		}
		var to graphAddress
		to.EmailAddress.Address = addr
		req.Message.ToRecipients = append(req.Message.ToRecipients, to)
	}
	if len(req.Message.ToRecipients) == 0 {
		return errNoRecipients
	}
	req.Message.Subject = subject
	req.Message.Body.ContentType = "Text"
	req.Message.Body.Content = body

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.postWithRetry(ctx, c.userURL("/sendMail"), payload)
}

// graphStatusError is a non-success response from the Graph API.
type graphStatusError struct {
	code       int
	body       string
	retryAfter time.Duration
}

func (e *graphStatusError) Error() string {
	return fmt.Sprintf("graph API returned %d: %s", e.code, e.body)
}

// temporary reports whether the request may succeed when repeated.
func (e *graphStatusError) temporary() bool {
	switch e.code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// postWithRetry posts payload, retrying transport failures, throttling and
// transient server errors. A Retry-After header overrides a shorter backoff.
func (c *GraphClient) postWithRetry(ctx context.Context, endpoint string, payload []byte) error {
	backoff := util.NewBackoff(initialRetryWait, maxRetryWait)

	var lastErr error
	for attempt := range mailAttempts {
		if attempt > 0 {
			wait := backoff.Next()
			var se *graphStatusError
			if errors.As(lastErr, &se) {
				wait = max(wait, se.retryAfter)
			}
			if err := sleepCtx(ctx, wait); err != nil {
				return fmt.Errorf("%w (last error: %w)", err, lastErr)
			}
		}

		lastErr = c.post(ctx, endpoint, payload)
		if lastErr == nil {
			return nil
		}
		var se *graphStatusError
		if errors.As(lastErr, &se) && !se.temporary() {
			return lastErr
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *GraphClient) post(ctx context.Context, endpoint string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer util.SafeCloseFunc(resp.Body, "graph response")()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10)) //nolint:errcheck // error context only
	se := &graphStatusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		se.retryAfter = time.Duration(secs) * time.Second
	}
	return se
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ValidateAuth acquires a token and looks up the mailbox. A 403 still
// proves the token works, since Mail.Send does not grant User.Read.
func (c *GraphClient) ValidateAuth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userURL(""), http.NoBody)
	if err != nil {
		return fmt.Errorf("create validation request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return fmt.Errorf("authentication failed: %w", err)
		}
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer util.SafeCloseFunc(resp.Body, "graph validation response")()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusForbidden:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("mailbox %s not found", c.mailbox)
	case http.StatusUnauthorized:
		return errors.New("authentication failed: invalid credentials")
	default:
		return fmt.Errorf("validation failed with status %d", resp.StatusCode)
	}
}

// ValidateConfig checks cfg completely, including GUID formats and
// recipients.
func ValidateConfig(cfg *types.GraphConfig) error {
	if err := checkCredentials(cfg, true); err != nil {
		return err
	}
	if len(ParseRecipients(cfg.Recipients)) == 0 {
		return errors.New("recipients are required")
	}
	return nil
}

// IsConfigured reports whether every Graph field is set.
func IsConfigured(cfg *types.GraphConfig) bool {
	return util.AllSet(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, cfg.FromAddress, cfg.Recipients)
}

// ParseRecipients splits a comma-separated address list, dropping blanks.
func ParseRecipients(recipients string) []string {
	var result []string
	for r := range strings.SplitSeq(recipients, ",") {
		if r = strings.TrimSpace(r); r != "" {
			result = append(result, r)
		}
	}
	return result
}
