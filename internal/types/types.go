package types

import (
	"fmt"
	"time"
)

// LatLng is a geographic coordinate in decimal degrees
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p LatLng) String() string {
	return fmt.Sprintf("(%.4f, %.4f)", p.Lat, p.Lng)
}

// TelemetrySample represents one decoded reading of the station
type TelemetrySample struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Velocity   float64   `json:"velocity"` // km/h
	Altitude   float64   `json:"altitude"` // km
	Visibility string    `json:"visibility,omitempty"`
	Footprint  float64   `json:"footprint,omitempty"` // km
	Timestamp  int64     `json:"timestamp,omitempty"` // unix seconds reported by the endpoint
	FetchedAt  time.Time `json:"fetched_at"`
}

// Position returns the sample's coordinate
func (s *TelemetrySample) Position() LatLng {
	return LatLng{Lat: s.Latitude, Lng: s.Longitude}
}

// PublishedSample is a sample stamped with the tracker run that produced it
type PublishedSample struct {
	RunID  string          `json:"run_id"`
	Sample TelemetrySample `json:"sample"`
}

// ViewState represents the map viewport and marker
type ViewState struct {
	Centered bool   `json:"centered"`
	Marker   LatLng `json:"marker"`
	Center   LatLng `json:"center"`
	Zoom     int    `json:"zoom"`
}

// DisplaySnapshot holds the text currently shown in each display slot
type DisplaySnapshot struct {
	Latitude  string `json:"lat"`
	Longitude string `json:"lon"`
	Velocity  string `json:"vel"`
	Altitude  string `json:"alt"`
}

// Update is the result of one tick as seen by the page
type Update struct {
	OK         bool            `json:"ok"`
	View       ViewState       `json:"view"`
	Display    DisplaySnapshot `json:"display"`
	Recentered bool            `json:"recentered"`
	Error      string          `json:"error,omitempty"`
	Time       time.Time       `json:"time"`
}
