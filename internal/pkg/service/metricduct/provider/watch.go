package provider

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

// refreshDelay is the debounce delay of the file watcher.
const refreshDelay = 200 * time.Millisecond

// dirLoader is implemented by the file based loader.
type dirLoader interface {
	Dir() string
}

// watch requests an early refresh on each change in the configuration directory.
// Multiple changes within the refreshDelay are merged into one refresh.
func (p *Provider) watch(ctx context.Context) error {
	loader, ok := p.loader.(dirLoader)
	if !ok || loader.Dir() == "" {
		p.logger.Warn(ctx, "file watching is enabled, but the configuration directory is not set")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.PrefixError(err, "cannot create file watcher")
	}
	if err := watcher.Add(loader.Dir()); err != nil {
		_ = watcher.Close()
		return errors.PrefixErrorf(err, `cannot watch directory "%s"`, loader.Dir())
	}

	p.logger.Infof(ctx, `watching directory "%s"`, loader.Dir())

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { _ = watcher.Close() }()

		var pending <-chan struct{}
		var timer interface{ Stop() bool }
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op == fsnotify.Chmod {
					continue
				}
				if pending == nil {
					fired := make(chan struct{})
					t := p.clock.AfterFunc(refreshDelay, func() { close(fired) })
					timer, pending = t, fired
				}
			case <-pending:
				pending, timer = nil, nil
				select {
				case p.refreshCh <- struct{}{}:
				default:
					// A refresh is already requested
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.logger.Warnf(ctx, "file watcher error: %s", err)
			}
		}
	}()

	return nil
}
