package hotkey

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.design/x/hotkey"

	"stupidisco/internal/logging"
)

// Registrar is the global hotkey capability.
type Registrar interface {
	Register(combo Combo, callback func()) error
	Unregister() error
}

const repeatWindow = 300 * time.Millisecond

// Listener registers one system-wide hotkey at a time.
type Listener struct {
	mu      sync.Mutex
	current *hotkey.Hotkey
	stop    chan struct{}
	done    chan struct{}
	log     zerolog.Logger
}

func NewListener() *Listener {
	return &Listener{log: logging.For("hotkey")}
}

// Register replaces any previous registration. The callback runs on the
// listener goroutine; key repeats within a short window are ignored.
func (l *Listener) Register(combo Combo, callback func()) error {
	if callback == nil {
		return errors.New("hotkey callback is nil")
	}
	mods, key, err := resolve(combo)
	if err != nil {
		return err
	}
	if err := l.Unregister(); err != nil {
		l.log.Warn().Err(err).Msg("failed to release previous hotkey")
	}

	hk := hotkey.New(mods, key)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("failed to register hotkey %s: %w", combo, err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	l.mu.Lock()
	l.current, l.stop, l.done = hk, stop, done
	l.mu.Unlock()

	go l.listen(hk, callback, stop, done)
	l.log.Info().Str("hotkey", combo.String()).Msg("hotkey registered")
	return nil
}

func (l *Listener) listen(hk *hotkey.Hotkey, callback func(), stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	var last time.Time
	for {
		select {
		case <-stop:
			return
		case _, ok := <-hk.Keydown():
			if !ok {
				return
			}
			now := time.Now()
			if now.Sub(last) < repeatWindow {
				continue
			}
			last = now
			callback()
		}
	}
}

// Unregister releases the current hotkey. It is safe to call when nothing
// is registered.
func (l *Listener) Unregister() error {
	l.mu.Lock()
	hk, stop, done := l.current, l.stop, l.done
	l.current, l.stop, l.done = nil, nil, nil
	l.mu.Unlock()

	if hk == nil {
		return nil
	}
	close(stop)
	<-done
	return hk.Unregister()
}

func resolve(combo Combo) ([]hotkey.Modifier, hotkey.Key, error) {
	key, ok := keyCodes[combo.Key]
	if !ok {
		return nil, 0, fmt.Errorf("unsupported key %q", combo.Key)
	}
	mods := make([]hotkey.Modifier, 0, len(combo.Modifiers))
	for _, name := range combo.Modifiers {
		mod, ok := modifierCodes[name]
		if !ok {
			return nil, 0, fmt.Errorf("unsupported modifier %q", name)
		}
		mods = append(mods, mod)
	}
	return mods, key, nil
}
