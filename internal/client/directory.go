package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ideasync/internal/collab"
	"ideasync/internal/models"
)

// Directory reads session snapshots published to the relay.
type Directory struct {
	baseURL string
	http    *http.Client
}

func NewDirectory(baseURL string, hc *http.Client) *Directory {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Directory{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

type sessionResponse struct {
	Session *models.Session `json:"session"`
	Error   string          `json:"error"`
}

type sessionListResponse struct {
	SessionList []*models.Session `json:"session_list"`
	Error       string            `json:"error"`
}

// Session returns the latest announced snapshot of sessionID.
func (d *Directory) Session(ctx context.Context, sessionID string) (*models.Session, error) {
	var resp sessionResponse
	status, err := d.get(ctx, "/api/sessions/"+url.PathEscape(sessionID), &resp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, collab.ErrSessionNotFound
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("directory: status %d: %s", status, resp.Error)
	}
	if resp.Session == nil {
		return nil, collab.ErrSessionNotFound
	}
	return resp.Session, nil
}

// UserSessions lists the snapshots userID takes part in.
func (d *Directory) UserSessions(ctx context.Context, userID string) ([]*models.Session, error) {
	var resp sessionListResponse
	status, err := d.get(ctx, "/api/users/"+url.PathEscape(userID)+"/sessions", &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("directory: status %d: %s", status, resp.Error)
	}
	return resp.SessionList, nil
}

func (d *Directory) get(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("directory request: %w", err)
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("directory request: %w", err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode directory response: %w", err)
	}
	return resp.StatusCode, nil
}
