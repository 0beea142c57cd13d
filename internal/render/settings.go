// Package render converts web pages and HTML markup to PDF documents.
package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/benedoc-inc/pdfmerge/types"
)

// Viewport is the emulated browser window
type Viewport struct {
	Width             int     `json:"width" mapstructure:"width" toml:"width"`
	Height            int     `json:"height" mapstructure:"height" toml:"height"`
	DeviceScaleFactor float64 `json:"deviceScaleFactor,omitempty" mapstructure:"device_scale_factor" toml:"device_scale_factor"`
}

// Margin holds page margins as CSS lengths ("1cm", "0.5in", "10px")
type Margin struct {
	Top    string `json:"top,omitempty" mapstructure:"top" toml:"top"`
	Right  string `json:"right,omitempty" mapstructure:"right" toml:"right"`
	Bottom string `json:"bottom,omitempty" mapstructure:"bottom" toml:"bottom"`
	Left   string `json:"left,omitempty" mapstructure:"left" toml:"left"`
}

// Settings controls how a page is printed
type Settings struct {
	Viewport        *Viewport `json:"viewport,omitempty" mapstructure:"viewport" toml:"viewport,omitempty"`
	Scale           float64   `json:"scale,omitempty" mapstructure:"scale" toml:"scale"`
	Format          string    `json:"format,omitempty" mapstructure:"format" toml:"format"`
	Width           string    `json:"width,omitempty" mapstructure:"width" toml:"width"`
	Height          string    `json:"height,omitempty" mapstructure:"height" toml:"height"`
	Margin          *Margin   `json:"margin,omitempty" mapstructure:"margin" toml:"margin,omitempty"`
	Landscape       bool      `json:"landscape,omitempty" mapstructure:"landscape" toml:"landscape"`
	PrintBackground bool      `json:"printBackground,omitempty" mapstructure:"print_background" toml:"print_background"`
	Timezone        string    `json:"timezone,omitempty" mapstructure:"timezone" toml:"timezone"`
}

// Merge returns s with every unset field taken from defaults
func (s Settings) Merge(defaults Settings) Settings {
	if s.Viewport == nil {
		s.Viewport = defaults.Viewport
	}
	if s.Scale == 0 {
		s.Scale = defaults.Scale
	}
	if s.Format == "" && s.Width == "" && s.Height == "" {
		s.Format, s.Width, s.Height = defaults.Format, defaults.Width, defaults.Height
	}
	if s.Margin == nil {
		s.Margin = defaults.Margin
	}
	if !s.Landscape {
		s.Landscape = defaults.Landscape
	}
	if !s.PrintBackground {
		s.PrintBackground = defaults.PrintBackground
	}
	if s.Timezone == "" {
		s.Timezone = defaults.Timezone
	}
	return s
}

// PaperSize is a sheet size in inches
type PaperSize struct {
	Width  float64
	Height float64
}

// PaperFormats are the named sheet sizes accepted in Settings.Format
var PaperFormats = map[string]PaperSize{
	"letter":  {8.5, 11},
	"legal":   {8.5, 14},
	"tabloid": {11, 17},
	"ledger":  {17, 11},
	"a0":      {33.1, 46.8},
	"a1":      {23.4, 33.1},
	"a2":      {16.54, 23.4},
	"a3":      {11.7, 16.54},
	"a4":      {8.27, 11.7},
	"a5":      {5.83, 8.27},
	"a6":      {4.13, 5.83},
}

// Paper returns the sheet size in inches. Explicit Width and Height win
// over Format; with neither, Letter is used.
func (s Settings) Paper() (PaperSize, error) {
	paper := PaperFormats["letter"]
	if s.Format != "" {
		named, ok := PaperFormats[strings.ToLower(s.Format)]
		if !ok {
			return PaperSize{}, types.NewPDFErrorf(types.ErrCodeRenderFailure, "unknown paper format %q", s.Format)
		}
		paper = named
	}
	if s.Width != "" {
		w, err := ParseCSSLength(s.Width)
		if err != nil {
			return PaperSize{}, err
		}
		paper.Width = w
	}
	if s.Height != "" {
		h, err := ParseCSSLength(s.Height)
		if err != nil {
			return PaperSize{}, err
		}
		paper.Height = h
	}
	return paper, nil
}

// Margins returns top, right, bottom and left margins in inches
func (s Settings) Margins() ([4]float64, error) {
	var out [4]float64
	if s.Margin == nil {
		return out, nil
	}
	for i, v := range []string{s.Margin.Top, s.Margin.Right, s.Margin.Bottom, s.Margin.Left} {
		if v == "" {
			continue
		}
		n, err := ParseCSSLength(v)
		if err != nil {
			return out, err
		}
		out[i] = n
	}
	return out, nil
}

var unitsPerInch = map[string]float64{
	"px": 96,
	"in": 1,
	"cm": 2.54,
	"mm": 25.4,
	"pt": 72,
}

// ParseCSSLength converts a CSS length to inches. A bare number is pixels.
func ParseCSSLength(s string) (float64, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	unit := "px"
	if len(v) > 2 {
		if _, ok := unitsPerInch[v[len(v)-2:]]; ok {
			unit = v[len(v)-2:]
			v = strings.TrimSpace(v[:len(v)-2])
		}
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n < 0 {
		return 0, types.NewPDFErrorf(types.ErrCodeRenderFailure, "invalid CSS length %q", s)
	}
	return n / unitsPerInch[unit], nil
}

// Validate checks that s can be printed
func (s Settings) Validate() error {
	if _, err := s.Paper(); err != nil {
		return err
	}
	if _, err := s.Margins(); err != nil {
		return err
	}
	if s.Scale != 0 && (s.Scale < 0.1 || s.Scale > 2) {
		return types.NewPDFErrorf(types.ErrCodeRenderFailure, "scale %v outside 0.1-2", s.Scale)
	}
	if s.Viewport != nil && (s.Viewport.Width <= 0 || s.Viewport.Height <= 0) {
		return types.NewPDFError(types.ErrCodeRenderFailure, fmt.Sprintf("invalid viewport %dx%d", s.Viewport.Width, s.Viewport.Height))
	}
	return nil
}
