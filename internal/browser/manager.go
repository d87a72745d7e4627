// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/config"
)

// stateReadTimeout bounds the cheap location/title read used before
// planning.
const stateReadTimeout = 5 * time.Second

// Tab is one page target: an isolated chromedp context inside the shared
// browser process.
type Tab struct {
	ID     string
	ctx    context.Context
	cancel context.CancelFunc
}

// Context returns the tab's chromedp context.
func (t *Tab) Context() context.Context {
	return t.ctx
}

// Manager owns the browser process lifecycle and the set of open tabs.
type Manager struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	rootTab     *Tab
	logger      *zap.Logger
	cfg         config.BrowserConfig

	mu   sync.RWMutex
	tabs map[string]*Tab
}

// NewManager launches the browser and opens the root tab.
func NewManager(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Manager, error) {
	log := logger.Named("browser_manager")

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	// Container stability flags.
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	rootCtx, rootCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...interface{}) {
		log.Debug(fmt.Sprintf(format, args...))
	}))

	// Force the browser process to start now, so startup failures surface
	// here rather than on the first command.
	if err := chromedp.Run(rootCtx); err != nil {
		rootCancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	root := &Tab{ID: "root", ctx: rootCtx, cancel: rootCancel}
	m := &Manager{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		rootTab:     root,
		logger:      log,
		cfg:         cfg,
		tabs:        map[string]*Tab{root.ID: root},
	}
	log.Info("Browser launched", zap.Bool("headless", cfg.Headless))
	return m, nil
}

// NewTab opens an additional tab sharing the browser process.
func (m *Manager) NewTab() (*Tab, error) {
	ctx, cancel := chromedp.NewContext(m.rootTab.ctx)
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	tab := &Tab{ID: uuid.NewString(), ctx: ctx, cancel: cancel}

	m.mu.Lock()
	m.tabs[tab.ID] = tab
	m.mu.Unlock()

	m.logger.Debug("Opened tab", zap.String("tab_id", tab.ID))
	return tab, nil
}

// Tab resolves a tab by id; the empty id means the root tab.
func (m *Manager) Tab(id string) (*Tab, bool) {
	if id == "" {
		return m.rootTab, true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	tab, ok := m.tabs[id]
	return tab, ok
}

// PageState reads the live location and title of a tab. A tab that has
// not navigated yet reports about:blank.
func (m *Manager) PageState(ctx context.Context, tabID string) (*schemas.PageState, error) {
	tab, ok := m.Tab(tabID)
	if !ok || tab == nil {
		return nil, fmt.Errorf("unknown tab %q", tabID)
	}

	var url, title string
	runCtx, cancel := context.WithTimeout(mergeContexts(ctx, tab.Context()), stateReadTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Location(&url), chromedp.Title(&title)); err != nil {
		return nil, fmt.Errorf("read page state: %w", err)
	}
	return &schemas.PageState{URL: url, Title: title, HasContent: url != "" && url != "about:blank"}, nil
}

// CloseTab closes one tab. The root tab only closes on Shutdown.
func (m *Manager) CloseTab(id string) {
	if id == "" || id == m.rootTab.ID {
		return
	}
	m.mu.Lock()
	tab, ok := m.tabs[id]
	delete(m.tabs, id)
	m.mu.Unlock()
	if ok {
		tab.cancel()
		m.logger.Debug("Closed tab", zap.String("tab_id", id))
	}
}

// Shutdown closes every tab and the browser process.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	tabs := make([]*Tab, 0, len(m.tabs))
	for _, tab := range m.tabs {
		tabs = append(tabs, tab)
	}
	m.tabs = map[string]*Tab{}
	m.mu.Unlock()

	for _, tab := range tabs {
		if tab.ID != m.rootTab.ID {
			tab.cancel()
		}
	}
	m.rootTab.cancel()
	m.allocCancel()
	m.logger.Info("Browser shut down")
}
