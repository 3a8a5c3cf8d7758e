package notifier

import (
	"errors"
	"io"
)

// OpenSinks builds the enabled sinks from cfg. Close the returned closer to
// release network clients.
func OpenSinks(cfg Config) ([]Sink, io.Closer, error) {
	var (
		sinks   []Sink
		closers multiCloser
	)
	if cfg.Telegram.Enabled {
		tg, err := NewTelegramSink(cfg.Telegram)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, tg)
	}
	if cfg.Redis.Enabled {
		rs, err := NewRedisSink(cfg.Redis)
		if err != nil {
			_ = closers.Close()
			return nil, nil, err
		}
		sinks = append(sinks, rs)
		closers = append(closers, rs)
	}
	if cfg.Enabled && len(sinks) == 0 {
		return nil, nil, ErrNoSinks
	}
	return sinks, closers, nil
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []error
	for _, c := range m {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
