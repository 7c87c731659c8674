package gameserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cc-wager-escrow-go/internal/models"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// TokenSource supplies the bearer token used to act on behalf of an account.
type TokenSource interface {
	Token(ctx context.Context, accountId string) (string, error)
}

// StaticToken uses one token for every account.
type StaticToken string

func (t StaticToken) Token(context.Context, string) (string, error) {
	if t == "" {
		return "", fmt.Errorf("no game server token configured")
	}
	return string(t), nil
}

// Service talks to the external game server: it issues challenges and fetches finished games.
type Service struct {
	baseURL string
	client  http.Client
	tokens  TokenSource
}

func NewService(cfg models.GameServerConfig, tokens TokenSource) (*Service, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	u, err := url.ParseRequestURI(base)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid game server url %q", cfg.BaseURL)
	}

	httpClient, err := createCustomHttpClient(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	return &Service{baseURL: base, client: httpClient, tokens: tokens}, nil
}

func createCustomHttpClient(timeout time.Duration) (http.Client, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	tr := &http.Transport{
		ResponseHeaderTimeout: timeout,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// IssueChallenge invites toDisplayName to a game on behalf of fromAccountId.
func (s *Service) IssueChallenge(ctx context.Context, fromAccountId, toDisplayName string, terms models.Terms) error {
	token, err := s.tokens.Token(ctx, fromAccountId)
	if err != nil {
		return fmt.Errorf("unable to get token for %s: %w", fromAccountId, err)
	}

	form := url.Values{}
	form.Set("clock.limit", strconv.Itoa(terms.TimeSeconds))
	form.Set("clock.increment", strconv.Itoa(terms.IncrementSeconds))
	form.Set("rated", strconv.FormatBool(terms.Rated))

	endpoint := fmt.Sprintf("%s/api/challenge/%s", s.baseURL, url.PathEscape(toDisplayName))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("unable to build challenge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("unable to issue challenge: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("challenge to %s rejected: %w", toDisplayName, err)
	}

	zap.L().Info("Challenge sent",
		zap.String("from_account_id", fromAccountId),
		zap.String("to", toDisplayName),
		zap.Int("time", terms.TimeSeconds),
		zap.Int("increment", terms.IncrementSeconds))
	return nil
}

// gameResponse is the subset of the game export the engine reads.
type gameResponse struct {
	Id      string `json:"id"`
	Status  string `json:"status"`
	Winner  string `json:"winner"`
	Players struct {
		White player `json:"white"`
		Black player `json:"black"`
	} `json:"players"`
}

type player struct {
	User struct {
		Name string `json:"name"`
	} `json:"user"`
}

// FetchOutcome loads the summary of a game.
func (s *Service) FetchOutcome(ctx context.Context, externalGameId string) (*models.OutcomeSummary, error) {
	endpoint := fmt.Sprintf("%s/api/game/%s", s.baseURL, url.PathEscape(externalGameId))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to build game request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch game %s: %w", externalGameId, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("game %s unavailable: %w", externalGameId, err)
	}

	var game gameResponse
	if err := json.NewDecoder(resp.Body).Decode(&game); err != nil {
		return nil, fmt.Errorf("unable to decode game %s: %w", externalGameId, err)
	}

	summary := &models.OutcomeSummary{
		GameId:    game.Id,
		WhiteName: game.Players.White.User.Name,
		BlackName: game.Players.Black.User.Name,
		Winner:    models.Color(strings.ToLower(game.Winner)),
		Status:    game.Status,
	}
	if summary.GameId == "" {
		summary.GameId = externalGameId
	}

	zap.L().Debug("Fetched game outcome",
		zap.String("game_id", summary.GameId),
		zap.String("status", summary.Status),
		zap.String("winner", string(summary.Winner)))
	return summary, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
