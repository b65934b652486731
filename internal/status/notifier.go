package status

import (
	"github.com/gen2brain/beeep"

	"pttype/internal/domain"
	"pttype/internal/logging"
)

// Notifier shows alerts as desktop notifications.
type Notifier struct {
	title  string
	notify func(title, message, icon string) error
}

func NewNotifier(title string) *Notifier {
	if title == "" {
		title = "pttype"
	}
	return &Notifier{title: title, notify: beeep.Notify}
}

// Attach subscribes the notifier to hub alerts. Notifications are shown off
// the publishing goroutine.
func (n *Notifier) Attach(hub *Hub) error {
	return hub.subscribeAsync(TopicAlert, n.show)
}

func (n *Notifier) show(err error) {
	if err := n.notify(n.title, domain.UserMessage(err), ""); err != nil {
		logging.Debugw("desktop notification failed", "error", err)
	}
}
