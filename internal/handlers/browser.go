package handlers

import (
	"context"
	"sync"

	"portfolio_bridge/internal/models"
)

// ScriptOutbox holds extraction scripts until the UI's login view collects
// them. Only the newest script per provider is kept.
type ScriptOutbox struct {
	mu      sync.Mutex
	scripts map[models.Provider]string
}

// NewScriptOutbox creates an empty outbox.
func NewScriptOutbox() *ScriptOutbox {
	return &ScriptOutbox{scripts: make(map[models.Provider]string)}
}

// Take removes and returns the pending script for p.
func (o *ScriptOutbox) Take(p models.Provider) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.scripts[p]
	delete(o.scripts, p)
	return s, ok
}

func (o *ScriptOutbox) put(p models.Provider, script string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.scripts[p] = script
}

// outboxBrowser is the extractor's view of the UI's login webview: scripts
// go to the outbox and cookies are the ones reported with the navigation.
type outboxBrowser struct {
	outbox   *ScriptOutbox
	provider models.Provider
	cookies  string
}

func (b *outboxBrowser) InjectScript(_ context.Context, script string) error {
	b.outbox.put(b.provider, script)
	return nil
}

func (b *outboxBrowser) Cookies(context.Context, string) (string, error) {
	return b.cookies, nil
}
