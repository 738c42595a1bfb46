package webhook

import (
	"context"
	"sync"

	"github.com/lumena-io/glasscloud/internal/domain/apps"
	"github.com/lumena-io/glasscloud/internal/infrastructure/logging"
)

// Notifier resolves webhook endpoints through the app registry and
// fires deliveries in the background, so lifecycle paths never wait on
// a slow TPA backend. It implements the session manager's Notifier.
type Notifier struct {
	client *Client
	apps   *apps.Registry
	log    *logging.Logger
	wg     sync.WaitGroup
}

// NewNotifier creates a notifier over the client and app registry.
func NewNotifier(client *Client, appReg *apps.Registry, log *logging.Logger) *Notifier {
	if log == nil {
		log = logging.NewNop()
	}
	return &Notifier{
		client: client,
		apps:   appReg,
		log:    log,
	}
}

// AppStarted posts a session_request event to the package's endpoint,
// when its manifest names one.
func (n *Notifier) AppStarted(sessionID, userID, pkg string) {
	endpoint := n.apps.WebhookURL(pkg)
	if endpoint == "" {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.client.NotifySessionRequest(context.Background(), endpoint, sessionID, userID, pkg)
	}()
}

// SessionEnded posts a session_ended event to every package whose
// manifest names an endpoint.
func (n *Notifier) SessionEnded(sessionID, userID string, packages []string) {
	for _, pkg := range packages {
		endpoint := n.apps.WebhookURL(pkg)
		if endpoint == "" {
			continue
		}
		n.wg.Add(1)
		go func(endpoint, pkg string) {
			defer n.wg.Done()
			n.client.NotifySessionEnded(context.Background(), endpoint, sessionID, userID, pkg)
		}(endpoint, pkg)
	}
}

// Close waits for in-flight deliveries, for orderly shutdown.
func (n *Notifier) Close() {
	n.wg.Wait()
}
