package sweep

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/commission"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/subscription"

	"github.com/gofiber/fiber/v2/log"
)

const (
	lockKey = "billing:sweep:lock"
	lockTTL = 5 * time.Minute

	DefaultInterval = time.Hour

	// mandateRetryBatch caps how many failed mandate cancellations one
	// pass re-attempts against the gateway.
	mandateRetryBatch = 100
)

// Result reports what one sweep pass changed.
type Result struct {
	Expired           []uint `json:"expired"`
	Matured           []uint `json:"matured"`
	MandatesCancelled []uint `json:"mandates_cancelled"`
}

// Sweeper periodically expires overdue trials/subscriptions, matures
// commissions past their holding period and retries failed gateway
// mandate cancellations. Passes are idempotent; a Redis lock keeps
// concurrent instances from double-processing.
type Sweeper struct {
	subs     *subscription.Service
	engine   *commission.Engine
	client   *redis.Client
	interval time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

func New(subs *subscription.Service, engine *commission.Engine, client *redis.Client, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		subs:     subs,
		engine:   engine,
		client:   client,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// RunOnce executes a single sweep pass at the given reference time.
// When another instance holds the lock it returns an empty result; every
// row transition underneath is individually guarded, so even a lost lock
// cannot double-process.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) (*Result, error) {
	if s.client != nil {
		ok, err := s.client.SetNX(ctx, lockKey, "1", lockTTL).Result()
		if err != nil {
			log.Warnf("[Sweep] lock acquire failed, proceeding unguarded: %v", err)
		} else if !ok {
			return &Result{}, nil
		} else {
			defer s.client.Del(ctx, lockKey)
		}
	}

	expired, err := s.subs.ExpireDue(now)
	if err != nil {
		return nil, err
	}
	matured, err := s.engine.MatureDue(now)
	if err != nil {
		return &Result{Expired: expired}, err
	}
	cancelled, err := s.subs.RetryMandateCancellations(ctx, mandateRetryBatch)
	if err != nil {
		return &Result{Expired: expired, Matured: matured}, err
	}
	if len(expired) > 0 || len(matured) > 0 || len(cancelled) > 0 {
		log.Infof("[Sweep] expired=%d matured=%d mandates_cancelled=%d", len(expired), len(matured), len(cancelled))
	}
	return &Result{Expired: expired, Matured: matured, MandatesCancelled: cancelled}, nil
}

// Start launches the background ticker.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
				if _, err := s.RunOnce(ctx, time.Now()); err != nil {
					log.Errorf("[Sweep] pass failed: %v", err)
				}
				cancel()
			}
		}
	}()
	log.Info("[Sweep] started")
}

// Stop halts the ticker and waits for an in-flight pass.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
	s.wg.Wait()
	log.Info("[Sweep] stopped")
}
