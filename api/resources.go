package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fieldhouse/fieldhouse-go/apimodel"
)

// Venues lists all venues.
func (c *Client) Venues(ctx context.Context) ([]apimodel.Venue, error) {
	var out apimodel.VenueListResponse
	if err := c.do(ctx, http.MethodGet, "/venues", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Venues, nil
}

// Venue fetches a single venue.
func (c *Client) Venue(ctx context.Context, id string) (*apimodel.Venue, error) {
	var out apimodel.Venue
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/venues/%s", id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VenueSessions lists the scheduled sessions at a venue.
func (c *Client) VenueSessions(ctx context.Context, venueID string) ([]apimodel.PlaySession, error) {
	var out apimodel.SessionListResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/venues/%s/sessions", venueID), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// Clubs lists clubs, with the caller's membership flag set when logged in.
func (c *Client) Clubs(ctx context.Context) ([]apimodel.Club, error) {
	var out apimodel.ClubListResponse
	if err := c.do(ctx, http.MethodGet, "/clubs", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Clubs, nil
}

// JoinClub adds the current user to a club.
func (c *Client) JoinClub(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/clubs/%s/join", id), nil, nil, nil)
}

// LeaveClub removes the current user from a club.
func (c *Client) LeaveClub(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/clubs/%s/leave", id), nil, nil, nil)
}
