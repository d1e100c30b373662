package mapview

import (
	"sync"

	"github.com/saviobatista/iss-tracker/internal/types"
)

const (
	DefaultTileURL     = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"
	DefaultAttribution = `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`
	DefaultPopup       = "<b>International Space Station (ISS)</b>"
	DefaultZoom        = 3
)

// TileLayer is the base map layer drawn under the marker
type TileLayer struct {
	URLTemplate string   `json:"url_template"`
	Attribution string   `json:"attribution"`
	Subdomains  []string `json:"subdomains"`
}

// DefaultTileLayer returns the OpenStreetMap base layer
func DefaultTileLayer() TileLayer {
	return TileLayer{
		URLTemplate: DefaultTileURL,
		Attribution: DefaultAttribution,
		Subdomains:  []string{"a", "b", "c"},
	}
}

// Marker is the single station marker
type Marker struct {
	Position  types.LatLng `json:"position"`
	Icon      Icon         `json:"icon"`
	Popup     string       `json:"popup"`
	PopupOpen bool         `json:"popup_open"`
}

// Options configures a new View
type Options struct {
	Center    types.LatLng
	Zoom      int
	TileLayer TileLayer
}

// View holds the map surface state rendered by the page
type View struct {
	mu        sync.RWMutex
	center    types.LatLng
	zoom      int
	tiles     TileLayer
	marker    *Marker
	centered  bool
	recenters int
}

// New initializes a map surface at opts.Center and opts.Zoom
func New(opts Options) *View {
	if opts.Zoom <= 0 {
		opts.Zoom = DefaultZoom
	}
	if opts.TileLayer.URLTemplate == "" {
		opts.TileLayer = DefaultTileLayer()
	}
	return &View{
		center: opts.Center,
		zoom:   opts.Zoom,
		tiles:  opts.TileLayer,
	}
}

// CreateMarker places the marker and binds its popup, which starts open
func (v *View) CreateMarker(pos types.LatLng, icon Icon, popup string) {
	v.mu.Lock()
	v.marker = &Marker{
		Position:  pos,
		Icon:      icon,
		Popup:     popup,
		PopupOpen: popup != "",
	}
	v.mu.Unlock()
}

// SetMarkerPosition moves the marker. Coordinates are not range checked.
// A marker with the default icon is placed if none exists yet.
func (v *View) SetMarkerPosition(lat, lon float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.marker == nil {
		v.marker = &Marker{Icon: DefaultIcon()}
	}
	v.marker.Position = types.LatLng{Lat: lat, Lng: lon}
}

// Recenter moves the viewport to the given coordinate and zoom
func (v *View) Recenter(lat, lon float64, zoom int) {
	v.mu.Lock()
	v.center = types.LatLng{Lat: lat, Lng: lon}
	v.zoom = zoom
	v.centered = true
	v.recenters++
	v.mu.Unlock()
}

// Recenters returns how many times the viewport was recentered
func (v *View) Recenters() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.recenters
}

// Snapshot returns the current viewport and marker position
func (v *View) Snapshot() types.ViewState {
	v.mu.RLock()
	defer v.mu.RUnlock()

	state := types.ViewState{
		Centered: v.centered,
		Center:   v.center,
		Zoom:     v.zoom,
	}
	if v.marker != nil {
		state.Marker = v.marker.Position
	}
	return state
}

// Marker returns a copy of the marker, if one was placed
func (v *View) Marker() (Marker, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.marker == nil {
		return Marker{}, false
	}
	return *v.marker, true
}

// TileLayer returns the base layer
func (v *View) TileLayer() TileLayer {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.tiles
}
