package notify

import (
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
)

const defaultCooldown = 3 * time.Second

// Desktop shows notices as OS notifications. Identical messages within the
// cooldown are suppressed so a flapping connection does not spam the user.
type Desktop struct {
	icon     string
	cooldown time.Duration
	send     func(title, message, icon string) error
	now      func() time.Time

	mu       sync.Mutex
	last     string
	lastSent time.Time
}

func NewDesktop(icon string) *Desktop {
	return &Desktop{
		icon:     icon,
		cooldown: defaultCooldown,
		send:     beeepNotify,
		now:      time.Now,
	}
}

func (d *Desktop) Notify(title string, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil
	}

	key := title + "\x00" + message
	now := d.now()
	d.mu.Lock()
	if key == d.last && now.Sub(d.lastSent) < d.cooldown {
		d.mu.Unlock()
		return nil
	}
	d.last, d.lastSent = key, now
	d.mu.Unlock()

	return d.send(title, message, d.icon)
}

func beeepNotify(title string, message string, icon string) error {
	return beeep.Notify(title, message, icon)
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Notify(string, string) error { return nil }
