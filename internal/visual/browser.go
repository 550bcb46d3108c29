package visual

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Shooter captures a full-page PNG screenshot of a URL
type Shooter interface {
	Screenshot(ctx context.Context, pageURL string) ([]byte, error)
	Close() error
}

// Browser takes screenshots with a headless Chrome driven through rod
type Browser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	width    int
	height   int
	timeout  time.Duration
}

// NewBrowser connects to the Chrome at remoteURL, or launches a local
// headless Chrome when remoteURL is empty
func NewBrowser(remoteURL string, width, height int, timeout time.Duration) (*Browser, error) {
	b := &Browser{width: width, height: height, timeout: timeout}

	wsURL := remoteURL
	if wsURL == "" {
		l := launcher.New().Headless(true)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		wsURL = u
		b.launcher = l
		slog.Info("Launched local browser", "url", wsURL)
	} else {
		slog.Info("Connecting to remote browser", "url", wsURL)
	}

	browser := rod.New().ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		if b.launcher != nil {
			b.launcher.Cleanup()
		}
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	if err := browser.IgnoreCertErrors(true); err != nil {
		slog.Warn("Failed to ignore certificate errors", "error", err)
	}
	b.browser = browser
	return b, nil
}

// Screenshot opens pageURL in a new tab, waits for the load event and
// captures the full page
func (b *Browser) Screenshot(ctx context.Context, pageURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	page, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	defer func() { _ = page.Close() }()

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             b.width,
		Height:            b.height,
		DeviceScaleFactor: 1,
	}); err != nil {
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	if err := page.Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("failed to navigate to %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", pageURL, err)
	}

	data, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to capture %s: %w", pageURL, err)
	}
	return data, nil
}

// Close shuts the browser down
func (b *Browser) Close() error {
	err := b.browser.Close()
	if b.launcher != nil {
		b.launcher.Cleanup()
	}
	return err
}
