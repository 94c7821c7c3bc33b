package redis

import (
	"fmt"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

// Embedded runs an in-process Redis server behind a regular Client, for
// single node setups without an external Redis
type Embedded struct {
	*Client
	mr   *miniredis.Miniredis
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewEmbedded starts the server. TTLs are advanced every tick since the
// embedded server does not expire keys on its own
func NewEmbedded(tick time.Duration) (*Embedded, error) {
	mr, err := miniredis.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start embedded redis: %w", err)
	}
	if tick <= 0 {
		tick = time.Second
	}

	e := &Embedded{
		Client: NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()})),
		mr:     mr,
		stop:   make(chan struct{}),
	}

	e.wg.Add(1)
	go e.expire(tick)

	return e, nil
}

func (e *Embedded) expire(tick time.Duration) {
	defer e.wg.Done()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-e.stop:
			return
		case now := <-ticker.C:
			e.mr.FastForward(now.Sub(last))
			last = now
		}
	}
}

// Addr returns the address the embedded server listens on
func (e *Embedded) Addr() string {
	return e.mr.Addr()
}

// Close stops the expiry loop, the client and the server
func (e *Embedded) Close() error {
	var err error
	e.once.Do(func() {
		close(e.stop)
		e.wg.Wait()
		err = e.Client.Close()
		e.mr.Close()
	})
	return err
}
