package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"market-relay/src/logger"
	"market-relay/src/metrics"
	"market-relay/src/models"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"
)

const (
	replayBatchSize   = 100
	readLimit         = 4 << 20
	dialTimeout       = 10 * time.Second
	authTimeout       = 10 * time.Second
	writeTimeout      = 5 * time.Second
	defaultPingPeriod = 30 * time.Second
)

var ErrAuthFailed = errors.New("upstream authentication failed")

// FrameHandler receives every data frame read from a market connection.
type FrameHandler func(market models.Market, frame []byte)

// Options configures a market connection.
type Options struct {
	BaseURL        string
	APIKey         string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Throttle       time.Duration // minimum spacing between control frames, 0 disables pacing
	PingInterval   time.Duration
}

type controlFrame struct {
	Action string `json:"action"`
	Params string `json:"params"`
}

type statusEvent struct {
	Ev      string `json:"ev"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// -----------------------------------------------------------------------------

// Connection keeps one socket per market alive and owns the market's desired
// channel set. The set outlives every socket and is replayed after each
// successful authentication.
type Connection struct {
	market  models.Market
	opts    Options
	handler FrameHandler
	logger  *logger.Logger
	metrics *metrics.Metrics
	limiter *rate.Limiter

	mu      sync.Mutex
	state   models.ConnState
	lastErr string
	desired map[string]struct{}

	// Channel deltas not yet written to the live socket, in arrival order.
	// A subscribe and an unsubscribe of the same unsent channel cancel out.
	pending map[string]string // channel -> action
	order   []string
	wake    chan struct{}
}

// -----------------------------------------------------------------------------

func newConnection(market models.Market, opts Options, handler FrameHandler, log *logger.Logger, m *metrics.Metrics) *Connection {
	limit := rate.Inf
	if opts.Throttle > 0 {
		limit = rate.Every(opts.Throttle)
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingPeriod
	}
	return &Connection{
		market:  market,
		opts:    opts,
		handler: handler,
		logger:  log.With("market", market),
		metrics: m,
		limiter: rate.NewLimiter(limit, 1),
		state:   models.StateClosed,
		desired: make(map[string]struct{}),
		pending: make(map[string]string),
		wake:    make(chan struct{}, 1),
	}
}

// -----------------------------------------------------------------------------

func (c *Connection) Market() models.Market { return c.market }

// Status reports the connection state for health checks.
func (c *Connection) Status() models.MUpstreamStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.MUpstreamStatus{
		Market:    c.market,
		Connected: c.state.Live(),
		State:     c.state,
		LastError: c.lastErr,
	}
}

// Desired returns a copy of the desired channel set.
func (c *Connection) Desired() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.desired))
	for ch := range c.desired {
		out = append(out, ch)
	}
	return out
}

// -----------------------------------------------------------------------------

// SubscribeChannels adds channels to the desired set. Channels not already
// desired are sent right away when a socket is live; otherwise they go out
// with the replay after the next connect.
func (c *Connection) SubscribeChannels(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := make([]string, 0, len(channels))
	for _, ch := range channels {
		if _, ok := c.desired[ch]; ok {
			continue
		}
		c.desired[ch] = struct{}{}
		added = append(added, ch)
	}
	c.pendLocked("subscribe", added)
}

// -----------------------------------------------------------------------------

// UnsubscribeChannels removes channels from the desired set and, when a
// socket is live, tells the provider to stop streaming them.
func (c *Connection) UnsubscribeChannels(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := make([]string, 0, len(channels))
	for _, ch := range channels {
		if _, ok := c.desired[ch]; !ok {
			continue
		}
		delete(c.desired, ch)
		removed = append(removed, ch)
	}
	c.pendLocked("unsubscribe", removed)
}

// pendLocked records channel deltas for the writer; mu must be held. While
// no socket is live nothing is recorded: the desired set is replayed on open.
func (c *Connection) pendLocked(action string, channels []string) {
	if !c.state.Live() || len(channels) == 0 {
		return
	}
	for _, ch := range channels {
		if prev, ok := c.pending[ch]; ok && prev != action {
			delete(c.pending, ch)
			continue
		}
		c.pending[ch] = action
		c.order = append(c.order, ch)
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// nextPending pops the oldest unsent delta.
func (c *Connection) nextPending() (channel, action string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.order) > 0 {
		ch := c.order[0]
		c.order = c.order[1:]
		if act, found := c.pending[ch]; found {
			delete(c.pending, ch)
			return ch, act, true
		}
	}
	c.order = nil
	return "", "", false
}

// PendingCount reports deltas still waiting for the writer.
func (c *Connection) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Connection) clearPendingLocked() {
	clear(c.pending)
	c.order = nil
}

// -----------------------------------------------------------------------------

func (c *Connection) setState(state models.ConnState, err error) {
	c.mu.Lock()
	c.state = state
	if err != nil {
		c.lastErr = err.Error()
	}
	if !state.Live() {
		c.clearPendingLocked()
	}
	c.mu.Unlock()
	c.metrics.SetUpstreamState(c.market, state)
}

// open marks the socket live, drops deltas left from the previous socket and
// snapshots the desired set, atomically. Later changes arrive as deltas.
func (c *Connection) open() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = models.StateOpen
	c.clearPendingLocked()
	snapshot := make([]string, 0, len(c.desired))
	for ch := range c.desired {
		snapshot = append(snapshot, ch)
	}
	c.metrics.SetUpstreamState(c.market, models.StateOpen)
	return snapshot
}

// -----------------------------------------------------------------------------

func (c *Connection) url() string {
	return strings.TrimRight(c.opts.BaseURL, "/") + "/" + string(c.market)
}

// -----------------------------------------------------------------------------

// run redials with capped exponential backoff until ctx is cancelled.
func (c *Connection) run(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialBackoff
	b.MaxInterval = c.opts.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.Reset()

	for {
		if ctx.Err() != nil {
			c.setState(models.StateClosed, nil)
			return
		}

		authenticated, err := c.session(ctx)
		if ctx.Err() != nil {
			c.setState(models.StateClosed, nil)
			c.logger.Info("Upstream connection stopped")
			return
		}
		c.setState(models.StateClosed, err)
		if err != nil {
			c.logger.With("error", err.Error()).Error("Upstream connection lost")
		}

		if authenticated {
			b.Reset()
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			wait = c.opts.MaxBackoff
		}
		c.metrics.RecordReconnect(c.market)
		c.logger.Info("Reconnecting in %v", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.setState(models.StateClosed, nil)
			return
		case <-timer.C:
		}
	}
}

// -----------------------------------------------------------------------------

// session dials once and serves the socket until it fails. It reports
// whether the provider accepted the credentials during this session.
func (c *Connection) session(ctx context.Context) (bool, error) {
	c.setState(models.StateConnecting, nil)

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, c.url(), nil)
	cancel()
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", c.url(), err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	replay := c.open()
	c.logger.Info("Connected to %s", c.url())

	sessCtx, stop := context.WithCancel(ctx)
	defer stop()

	var authed atomic.Bool
	authOK := make(chan struct{})
	errCh := make(chan error, 3)

	var wg conc.WaitGroup
	wg.Go(func() { errCh <- c.writeLoop(sessCtx, conn, replay, authOK) })
	wg.Go(func() { errCh <- c.readLoop(sessCtx, conn, &authed, authOK) })
	wg.Go(func() { errCh <- c.pingLoop(sessCtx, conn) })

	err = <-errCh
	stop()
	_ = conn.Close(websocket.StatusNormalClosure, "")
	wg.Wait()

	return authed.Load(), err
}

// -----------------------------------------------------------------------------

// writeLoop authenticates, waits for the provider to accept, replays the
// desired set in batches, then writes pending deltas one frame per channel.
func (c *Connection) writeLoop(ctx context.Context, conn *websocket.Conn, replay []string, authOK <-chan struct{}) error {
	auth, _ := json.Marshal(controlFrame{Action: "auth", Params: c.opts.APIKey})
	if err := c.write(ctx, conn, auth); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	timer := time.NewTimer(authTimeout)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("no auth response within %v", authTimeout)
	case <-authOK:
		timer.Stop()
	}

	for start := 0; start < len(replay); start += replayBatchSize {
		end := min(start+replayBatchSize, len(replay))
		frame, _ := json.Marshal(controlFrame{Action: "subscribe", Params: strings.Join(replay[start:end], ",")})
		if err := c.paced(ctx, conn, frame, "subscribe"); err != nil {
			return fmt.Errorf("replay subscriptions: %w", err)
		}
	}
	if len(replay) > 0 {
		c.logger.Info("Replayed %d channels", len(replay))
	}

	for {
		for {
			ch, action, ok := c.nextPending()
			if !ok {
				break
			}
			frame, _ := json.Marshal(controlFrame{Action: action, Params: ch})
			if err := c.paced(ctx, conn, frame, action); err != nil {
				return fmt.Errorf("send control frame: %w", err)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wake:
		}
	}
}

func (c *Connection) paced(ctx context.Context, conn *websocket.Conn, frame []byte, action string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := c.write(ctx, conn, frame); err != nil {
		return err
	}
	c.metrics.RecordControlFrame(c.market, action)
	c.logger.Debug("Sent %s", frame)
	return nil
}

func (c *Connection) write(ctx context.Context, conn *websocket.Conn, frame []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, frame)
}

// -----------------------------------------------------------------------------

func (c *Connection) readLoop(ctx context.Context, conn *websocket.Conn, authed *atomic.Bool, authOK chan<- struct{}) error {
	for {
		_, frame, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		c.metrics.RecordUpstreamFrame(c.market)

		if bytes.Contains(frame, []byte(`"status"`)) {
			done, err := c.handleStatus(frame, authed, authOK)
			if err != nil {
				return err
			}
			if done {
				continue
			}
		}
		if c.handler != nil {
			c.handler(c.market, frame)
		}
	}
}

// handleStatus reacts to provider status events. It reports true when the
// frame carried nothing but status events.
func (c *Connection) handleStatus(frame []byte, authed *atomic.Bool, authOK chan<- struct{}) (bool, error) {
	var events []statusEvent
	if err := json.Unmarshal(frame, &events); err != nil {
		return false, nil
	}
	onlyStatus := len(events) > 0
	for _, ev := range events {
		if ev.Ev != "status" {
			onlyStatus = false
			continue
		}
		switch ev.Status {
		case "auth_success":
			if authed.CompareAndSwap(false, true) {
				c.setState(models.StateAuthenticated, nil)
				close(authOK)
				c.logger.Info("Authenticated")
			}
		case "auth_failed":
			return true, fmt.Errorf("%w: %s", ErrAuthFailed, ev.Message)
		default:
			c.logger.Debug("Status %s: %s", ev.Status, ev.Message)
		}
	}
	return onlyStatus, nil
}

// -----------------------------------------------------------------------------

func (c *Connection) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}
