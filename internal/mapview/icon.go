package mapview

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	// CustomIconURL is where the web front serves a resolved custom icon
	CustomIconURL = "/iss_icon.png"

	defaultIconURL   = "https://unpkg.com/leaflet@1.9.4/dist/images/marker-icon.png"
	defaultShadowURL = "https://unpkg.com/leaflet@1.9.4/dist/images/marker-shadow.png"
)

// Icon describes the image drawn for the marker
type Icon struct {
	URL         string `json:"url"`
	ShadowURL   string `json:"shadow_url,omitempty"`
	Size        [2]int `json:"size"`
	Anchor      [2]int `json:"anchor"`
	Default     bool   `json:"default"`
	ContentType string `json:"-"`
	Data        []byte `json:"-"`
}

// DefaultIcon returns Leaflet's built-in marker icon
func DefaultIcon() Icon {
	return Icon{
		URL:       defaultIconURL,
		ShadowURL: defaultShadowURL,
		Size:      [2]int{25, 41},
		Anchor:    [2]int{12, 41},
		Default:   true,
	}
}

// IconLoadError reports why a custom icon could not be used
type IconLoadError struct {
	Name string
	Err  error
}

func (e *IconLoadError) Error() string {
	return fmt.Sprintf("icon %q unavailable: %v", e.Name, e.Err)
}

func (e *IconLoadError) Unwrap() error {
	return e.Err
}

// IconChoice is the outcome of icon resolution. Warning is set when the
// default icon was substituted.
type IconChoice struct {
	Icon    Icon
	Warning error
}

// Fallback reports whether the default icon was chosen
func (c IconChoice) Fallback() bool {
	return c.Warning != nil
}

// ResolveIcon loads name from fsys as the custom marker icon, falling back
// to the default icon when it is missing or does not decode as an image.
func ResolveIcon(fsys fs.FS, name string) IconChoice {
	if fsys == nil || name == "" {
		return fallback(name, fs.ErrNotExist)
	}

	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fallback(name, err)
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fallback(name, fmt.Errorf("failed to decode image: %w", err))
	}

	return IconChoice{
		Icon: Icon{
			URL:         CustomIconURL,
			Size:        [2]int{50, 32},
			Anchor:      [2]int{25, 16},
			ContentType: "image/" + format,
			Data:        data,
		},
	}
}

// ResolveIconFile resolves an icon from a path on disk
func ResolveIconFile(path string) IconChoice {
	if path == "" {
		return fallback(path, fs.ErrNotExist)
	}
	return ResolveIcon(os.DirFS(filepath.Dir(path)), filepath.Base(path))
}

func fallback(name string, err error) IconChoice {
	return IconChoice{
		Icon:    DefaultIcon(),
		Warning: &IconLoadError{Name: name, Err: err},
	}
}
