// Package submit delivers pending actions to the remote API.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/errors"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/models"
)

// ErrPermanent marks a rejection that no retry can fix. The sync engine
// abandons such actions immediately instead of spending attempts on them.
var ErrPermanent = stderrors.New("permanent rejection")

// IsPermanent reports whether err carries ErrPermanent.
func IsPermanent(err error) bool {
	return stderrors.Is(err, ErrPermanent)
}

// Submitter sends one action payload to its target. A nil error means the
// server accepted it.
type Submitter interface {
	Submit(ctx context.Context, target models.Target, payload json.RawMessage) error
}

// Func adapts a function to Submitter.
type Func func(ctx context.Context, target models.Target, payload json.RawMessage) error

// Submit calls f.
func (f Func) Submit(ctx context.Context, target models.Target, payload json.RawMessage) error {
	return f(ctx, target, payload)
}

// permanentStatus lists the responses that mean the request itself is wrong.
// 401 is excluded: a refreshed token may fix it on the next attempt.
var permanentStatus = map[int]bool{
	http.StatusBadRequest:          true,
	http.StatusForbidden:           true,
	http.StatusNotFound:            true,
	http.StatusConflict:            true,
	http.StatusGone:                true,
	http.StatusUnprocessableEntity: true,
}

// maxErrorBody caps how much of a failed response body ends up in errors.
const maxErrorBody = 512

// HTTPSubmitter posts JSON payloads to BaseURL+endpoint with a bearer token.
type HTTPSubmitter struct {
	BaseURL string
	Tokens  TokenSource
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPSubmitter creates an HTTPSubmitter. timeout bounds each attempt.
func NewHTTPSubmitter(baseURL string, tokens TokenSource, timeout time.Duration) *HTTPSubmitter {
	return &HTTPSubmitter{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Tokens:  tokens,
		Client:  &http.Client{},
		Timeout: timeout,
	}
}

// Submit implements Submitter.
func (s *HTTPSubmitter) Submit(ctx context.Context, target models.Target, payload json.RawMessage) error {
	target = target.Normalize()

	if s.Tokens == nil {
		return apperrors.New(apperrors.ErrSubmitNoToken, "no token source configured")
	}
	token, err := s.Tokens.Token(ctx)
	if err != nil {
		return err
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, target.Method, s.url(target.Endpoint), body)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrSubmitRejected, fmt.Sprintf("invalid request for %s", target), stderrors.Join(ErrPermanent, err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrSubmitFailed, fmt.Sprintf("%s failed", target), err)
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg := fmt.Sprintf("%s returned %d", target, resp.StatusCode)
	if detail := strings.TrimSpace(string(snippet)); detail != "" {
		msg += ": " + detail
	}
	if permanentStatus[resp.StatusCode] {
		return apperrors.Wrap(apperrors.ErrSubmitRejected, msg, ErrPermanent)
	}
	return apperrors.New(apperrors.ErrSubmitFailed, msg)
}

func (s *HTTPSubmitter) url(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return s.BaseURL + endpoint
}
