package render

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"

	"github.com/benedoc-inc/pdfmerge/types"
)

// Renderer turns a web page or HTML markup into a PDF
type Renderer interface {
	RenderURL(ctx context.Context, url string, settings Settings) ([]byte, error)
	RenderHTML(ctx context.Context, html string, settings Settings) ([]byte, error)
}

// ChromeConfig configures the headless Chrome renderer
type ChromeConfig struct {
	Bin        string `mapstructure:"bin" toml:"bin"`                 // Chrome binary; empty downloads or finds one
	ControlURL string `mapstructure:"control_url" toml:"control_url"` // attach to a running browser instead of launching
	Headless   bool   `mapstructure:"headless" toml:"headless"`
	NoSandbox  bool   `mapstructure:"no_sandbox" toml:"no_sandbox"`
	Timeout    int    `mapstructure:"timeout" toml:"timeout"` // seconds per render
}

// DefaultChromeConfig returns the renderer defaults
func DefaultChromeConfig() ChromeConfig {
	return ChromeConfig{
		Headless:  true,
		NoSandbox: true,
		Timeout:   60,
	}
}

// Chrome renders pages with a shared headless Chrome. The browser is
// started on first use and each render gets its own tab.
type Chrome struct {
	config   ChromeConfig
	logger   zerolog.Logger
	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewChrome creates a Chrome renderer
func NewChrome(cfg ChromeConfig, logger zerolog.Logger) *Chrome {
	return &Chrome{
		config: cfg,
		logger: logger.With().Str("component", "render").Logger(),
	}
}

// RenderURL navigates to url and prints it
func (c *Chrome) RenderURL(ctx context.Context, url string, settings Settings) ([]byte, error) {
	return c.render(ctx, settings, func(page *rod.Page) error {
		if err := page.Navigate(url); err != nil {
			return fmt.Errorf("navigate to %s: %w", url, err)
		}
		return page.WaitLoad()
	}, url)
}

// RenderHTML loads html as the document content and prints it
func (c *Chrome) RenderHTML(ctx context.Context, html string, settings Settings) ([]byte, error) {
	return c.render(ctx, settings, func(page *rod.Page) error {
		if err := page.SetDocumentContent(html); err != nil {
			return fmt.Errorf("set document content: %w", err)
		}
		return page.WaitLoad()
	}, "html")
}

func (c *Chrome) render(ctx context.Context, settings Settings, load func(*rod.Page) error, label string) ([]byte, error) {
	start := time.Now()

	req, err := PrintRequest(settings)
	if err != nil {
		return nil, err
	}

	browser, err := c.connect()
	if err != nil {
		return nil, err
	}

	tab, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, types.WrapError(types.ErrCodeRenderFailure, "failed to open tab", err)
	}
	// tab keeps the browser context so it can be closed after ctx ends
	defer func() {
		if err := tab.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("close tab")
		}
	}()

	page := bindPage(ctx, tab, time.Duration(c.config.Timeout)*time.Second)

	if vp := settings.Viewport; vp != nil {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             vp.Width,
			Height:            vp.Height,
			DeviceScaleFactor: vp.DeviceScaleFactor,
		}); err != nil {
			return nil, types.WrapError(types.ErrCodeRenderFailure, "failed to set viewport", err)
		}
	}

	if settings.Timezone != "" {
		if err := (proto.EmulationSetTimezoneOverride{TimezoneID: settings.Timezone}).Call(page); err != nil {
			return nil, types.WrapErrorf(types.ErrCodeRenderFailure, err, "failed to set timezone %q", settings.Timezone)
		}
	}

	if err := load(page); err != nil {
		return nil, types.WrapErrorf(types.ErrCodeRenderFailure, err, "failed to load %s", label).
			WithContext("source", label)
	}

	stream, err := page.PDF(req)
	if err != nil {
		return nil, types.WrapErrorf(types.ErrCodeRenderFailure, err, "failed to print %s", label).
			WithContext("source", label)
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, types.WrapErrorf(types.ErrCodeRenderFailure, err, "failed to read PDF for %s", label)
	}

	c.logger.Debug().
		Str("source", label).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("rendered")

	return data, nil
}

// bindPage returns a clone of tab bound to ctx and, when timeout is
// positive, to a deadline. tab itself is left unbound.
func bindPage(ctx context.Context, tab *rod.Page, timeout time.Duration) *rod.Page {
	page := tab.Context(ctx)
	if timeout > 0 {
		page = page.Timeout(timeout)
	}
	return page
}

func (c *Chrome) connect() (*rod.Browser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser != nil {
		return c.browser, nil
	}

	controlURL := c.config.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(c.config.Headless)
		if c.config.NoSandbox {
			l = l.NoSandbox(true)
		}
		if c.config.Bin != "" {
			l = l.Bin(c.config.Bin)
		}

		u, err := l.Launch()
		if err != nil {
			return nil, types.WrapError(types.ErrCodeRenderFailure, "failed to launch Chrome", err)
		}
		c.launcher = l
		controlURL = u
		c.logger.Info().Str("control_url", u).Msg("chrome launched")
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		c.stopLauncher()
		return nil, types.WrapError(types.ErrCodeRenderFailure, "failed to connect to Chrome", err)
	}

	c.browser = browser
	return browser, nil
}

// Close shuts the browser down. A later render starts a new one.
func (c *Chrome) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.browser != nil {
		err = c.browser.Close()
		c.browser = nil
	}
	c.stopLauncher()
	return err
}

func (c *Chrome) stopLauncher() {
	if c.launcher != nil {
		c.launcher.Kill()
		c.launcher = nil
	}
}

// PrintRequest converts settings into a Chrome print request
func PrintRequest(s Settings) (*proto.PagePrintToPDF, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	paper, _ := s.Paper()
	margins, _ := s.Margins()

	req := &proto.PagePrintToPDF{
		Landscape:       s.Landscape,
		PrintBackground: s.PrintBackground,
		PaperWidth:      &paper.Width,
		PaperHeight:     &paper.Height,
		MarginTop:       &margins[0],
		MarginRight:     &margins[1],
		MarginBottom:    &margins[2],
		MarginLeft:      &margins[3],
	}
	if s.Scale != 0 {
		scale := s.Scale
		req.Scale = &scale
	}
	return req, nil
}
