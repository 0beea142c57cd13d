package render

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benedoc-inc/pdfmerge/types"
)

func TestParseCSSLength(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"96", 1},
		{"96px", 1},
		{"2in", 2},
		{"2.54cm", 1},
		{"25.4mm", 1},
		{"72pt", 1},
		{" 1 IN ", 1},
		{"0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCSSLength(tt.in)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	for _, bad := range []string{"", "cm", "abc", "-1in", "1em"} {
		t.Run("invalid "+bad, func(t *testing.T) {
			_, err := ParseCSSLength(bad)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrRenderFailure))
		})
	}
}

func TestSettings_Paper(t *testing.T) {
	t.Run("default letter", func(t *testing.T) {
		p, err := Settings{}.Paper()
		require.NoError(t, err)
		assert.Equal(t, PaperSize{8.5, 11}, p)
	})

	t.Run("named format ignores case", func(t *testing.T) {
		p, err := Settings{Format: "A4"}.Paper()
		require.NoError(t, err)
		assert.Equal(t, PaperSize{8.27, 11.7}, p)
	})

	t.Run("explicit size wins", func(t *testing.T) {
		p, err := Settings{Format: "a4", Width: "10in", Height: "254mm"}.Paper()
		require.NoError(t, err)
		assert.InDelta(t, 10, p.Width, 1e-9)
		assert.InDelta(t, 10, p.Height, 1e-9)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := Settings{Format: "b5"}.Paper()
		assert.Error(t, err)
	})
}

func TestSettings_Merge(t *testing.T) {
	defaults := Settings{
		Format:          "letter",
		Scale:           1,
		PrintBackground: true,
		Timezone:        "UTC",
		Viewport:        &Viewport{Width: 1280, Height: 800},
	}

	got := Settings{Width: "5in", Height: "5in", Timezone: "Europe/Berlin"}.Merge(defaults)
	assert.Equal(t, "", got.Format)
	assert.Equal(t, "5in", got.Width)
	assert.Equal(t, "Europe/Berlin", got.Timezone)
	assert.Equal(t, 1.0, got.Scale)
	assert.True(t, got.PrintBackground)
	assert.Equal(t, 1280, got.Viewport.Width)
}

func TestPrintRequest(t *testing.T) {
	req, err := PrintRequest(Settings{
		Format:    "a5",
		Landscape: true,
		Scale:     0.5,
		Margin:    &Margin{Top: "1in", Left: "96px"},
	})
	require.NoError(t, err)

	assert.True(t, req.Landscape)
	require.NotNil(t, req.Scale)
	assert.Equal(t, 0.5, *req.Scale)
	assert.Equal(t, 5.83, *req.PaperWidth)
	assert.Equal(t, 8.27, *req.PaperHeight)
	assert.Equal(t, 1.0, *req.MarginTop)
	assert.Equal(t, 0.0, *req.MarginRight)
	assert.Equal(t, 1.0, *req.MarginLeft)

	t.Run("scale out of range", func(t *testing.T) {
		_, err := PrintRequest(Settings{Scale: 3})
		assert.Error(t, err)
	})

	t.Run("bad margin", func(t *testing.T) {
		_, err := PrintRequest(Settings{Margin: &Margin{Bottom: "wide"}})
		assert.Error(t, err)
	})

	t.Run("bad viewport", func(t *testing.T) {
		_, err := PrintRequest(Settings{Viewport: &Viewport{Width: 0, Height: 10}})
		assert.Error(t, err)
	})
}

func TestTitle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "<html><head><title>Invoice 42</title></head><body></body></html>", "Invoice 42"},
		{"whitespace", "<title>\n  Quarterly\n  Report </title><p>x</p>", "Quarterly Report"},
		{"entities", "<title>Q&amp;A</title>", "Q&A"},
		{"none", "<p>hello</p>", ""},
		{"first wins", "<title>One</title><svg><title>Two</title></svg>", "One"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Title(tt.in))
		})
	}
}

func TestBindPage_LeavesTabUsableAfterCancel(t *testing.T) {
	tab := (&rod.Page{}).Context(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	page := bindPage(ctx, tab, time.Minute)
	cancel()

	assert.Error(t, page.GetContext().Err())
	assert.NoError(t, tab.GetContext().Err())
}

func TestBindPage_Timeout(t *testing.T) {
	tab := (&rod.Page{}).Context(context.Background())

	page := bindPage(context.Background(), tab, time.Millisecond)
	<-page.GetContext().Done()
	assert.ErrorIs(t, page.GetContext().Err(), context.DeadlineExceeded)
	assert.NoError(t, tab.GetContext().Err())

	unbounded := bindPage(context.Background(), tab, 0)
	_, hasDeadline := unbounded.GetContext().Deadline()
	assert.False(t, hasDeadline)
}
