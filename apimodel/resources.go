package apimodel

import "time"

// Venue is a listed sports venue.
type Venue struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Address  string   `json:"address,omitempty"`
	Sports   []string `json:"sports,omitempty"`
	PhotoURL string   `json:"photoURL,omitempty"`
}

// VenueListResponse is the GET /venues body.
type VenueListResponse struct {
	Venues []Venue `json:"venues"`
}

// Club is a membership club attached to the platform.
type Club struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MemberCount int    `json:"memberCount,omitempty"`
	Joined      bool   `json:"joined,omitempty"`
}

// ClubListResponse is the GET /clubs body.
type ClubListResponse struct {
	Clubs []Club `json:"clubs"`
}

// PlaySession is a scheduled session at a venue.
type PlaySession struct {
	ID       string    `json:"id"`
	VenueID  string    `json:"venueId"`
	Sport    string    `json:"sport"`
	StartsAt time.Time `json:"startsAt"`
	EndsAt   time.Time `json:"endsAt"`
	Capacity int       `json:"capacity,omitempty"`
	Attendee []string  `json:"attendees,omitempty"`
}

// SessionListResponse is the GET /venues/{id}/sessions body.
type SessionListResponse struct {
	Sessions []PlaySession `json:"sessions"`
}
