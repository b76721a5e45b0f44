// Package gateway is the HTTP client of the persistence collaborator.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dkeye/watchparty/internal/core"
	"github.com/dkeye/watchparty/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const maxErrorBody = 512

// StreamerRequest is the body of the set-streamer endpoint; a null streamer clears it.
type StreamerRequest struct {
	Streamer *domain.UserID `json:"streamer"`
}

// Client implements core.Gateway over the collaborator's JSON endpoints.
// Any non-2xx status is an error; 404 maps to core.ErrNotFound.
type Client struct {
	base string
	http *http.Client
	sf   singleflight.Group
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

var _ core.Gateway = (*Client)(nil)

func RoomsPath() string {
	return "/api/db/rooms"
}

func RoomPath(id domain.RoomID) string {
	return "/api/db/rooms/" + url.PathEscape(string(id))
}

func MemberPath(roomID domain.RoomID, userID domain.UserID) string {
	return RoomPath(roomID) + "/members/" + url.PathEscape(string(userID))
}

func StreamerPath(roomID domain.RoomID) string {
	return RoomPath(roomID) + "/streamer"
}

func UserPath(id domain.UserID) string {
	return "/api/db/users/" + url.PathEscape(string(id))
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.Error().Err(err).Str("module", "gateway.http").Str("method", method).Str("path", path).Msg("request failed")
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return core.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Error().Str("module", "gateway.http").Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("non-2xx status")
		return fmt.Errorf("%w: %s %s: %d %s", core.ErrGatewayStatus, method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) GetOrCreateRoom(ctx context.Context, seed domain.Room) (*domain.Room, error) {
	var room domain.Room
	if err := c.do(ctx, http.MethodPost, RoomsPath(), seed, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// GetRoom coalesces concurrent reads of the same room. The shared request
// runs detached from any one caller; each caller still stops at its own ctx.
func (c *Client) GetRoom(ctx context.Context, id domain.RoomID) (*core.RoomRecord, error) {
	flight := context.WithoutCancel(ctx)
	ch := c.sf.DoChan(string(id), func() (any, error) {
		var rec core.RoomRecord
		if err := c.do(flight, http.MethodGet, RoomPath(id), nil, &rec); err != nil {
			return nil, err
		}
		return &rec, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		rec := *res.Val.(*core.RoomRecord)
		return &rec, nil
	}
}

func (c *Client) AddMember(ctx context.Context, roomID domain.RoomID, user domain.User) (*domain.Membership, error) {
	var m domain.Membership
	if err := c.do(ctx, http.MethodPut, MemberPath(roomID, user.ID), user, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) RemoveMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	return c.do(ctx, http.MethodDelete, MemberPath(roomID, userID), nil, nil)
}

func (c *Client) SetStreamer(ctx context.Context, roomID domain.RoomID, userID *domain.UserID) (*domain.Room, error) {
	var room domain.Room
	if err := c.do(ctx, http.MethodPut, StreamerPath(roomID), StreamerRequest{Streamer: userID}, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) DeleteRoom(ctx context.Context, roomID domain.RoomID) error {
	return c.do(ctx, http.MethodDelete, RoomPath(roomID), nil, nil)
}

func (c *Client) GetUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var u domain.User
	if err := c.do(ctx, http.MethodGet, UserPath(id), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
