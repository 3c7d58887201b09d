package live

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gamma-omg/algo-engine/internal/config"
	"github.com/gamma-omg/algo-engine/internal/indicator"
	"github.com/gamma-omg/algo-engine/internal/market"
	"github.com/gamma-omg/algo-engine/internal/strategy"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

type State int

const (
	Uninitialized State = iota
	Warmed
	Streaming
)

func (s State) String() string {
	switch s {
	case Warmed:
		return "warmed"
	case Streaming:
		return "streaming"
	default:
		return "uninitialized"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Sink receives signal intents. It is the only place the live path may
// block besides the warm load.
type Sink interface {
	Publish(ctx context.Context, s strategy.Signal) error
}

type symbolState struct {
	state   State
	buf     *market.Buffer
	ind     *indicator.Set
	strat   strategy.Strategy
	snap    indicator.Snapshot
	pending []market.Candle
	last    time.Time
	mu      sync.Mutex
}

// Engine keeps a rolling buffer, indicator state and a strategy instance per
// symbol. Each symbol must be fed by a single stream; different symbols may
// be fed concurrently.
type Engine struct {
	log         *slog.Logger
	capacity    int
	newStrategy strategy.Factory
	sink        Sink
	metrics     *Metrics
	symbols     map[string]*symbolState
	mu          sync.RWMutex
}

func NewEngine(log *slog.Logger, cfg config.Live, newStrategy strategy.Factory, sink Sink, m *Metrics) (*Engine, error) {
	if cfg.BufferSize <= 0 {
		return nil, fmt.Errorf("%w: buffer_size must be positive, got %d", market.ErrInvalidParameters, cfg.BufferSize)
	}

	if newStrategy == nil || sink == nil {
		return nil, fmt.Errorf("%w: live engine needs a strategy and a sink", market.ErrInvalidParameters)
	}

	if m == nil {
		m = NewMetrics(prometheus.NewRegistry())
	}

	return &Engine{
		log:         log,
		capacity:    cfg.BufferSize,
		newStrategy: newStrategy,
		sink:        sink,
		metrics:     m,
		symbols:     make(map[string]*symbolState),
	}, nil
}

func (e *Engine) entry(symbol string) *symbolState {
	e.mu.RLock()
	st, ok := e.symbols[symbol]
	e.mu.RUnlock()
	if ok {
		return st
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if st, ok = e.symbols[symbol]; !ok {
		st = &symbolState{}
		e.symbols[symbol] = st
	}
	return st
}

func (e *Engine) lookup(symbol string) (*symbolState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st, ok := e.symbols[symbol]
	return st, ok
}

// LoadInitialBuffer warms symbol with the tail of history plus any candles
// that arrived before it. Indicators and the strategy see every buffered
// candle, but signals produced while warming are dropped.
func (e *Engine) LoadInitialBuffer(ctx context.Context, symbol string, history []market.Candle) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for i, c := range history {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid history candle %d for %s: %w", i, symbol, err)
		}
	}

	st := e.entry(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.state != Uninitialized {
		return fmt.Errorf("symbol %s is already %s", symbol, st.state)
	}

	s, err := e.newStrategy()
	if err != nil {
		return fmt.Errorf("failed to create strategy for %s: %w", symbol, err)
	}

	ind, err := indicator.NewSet(s.Indicators())
	if err != nil {
		return fmt.Errorf("failed to create indicators for %s: %w", symbol, err)
	}

	buf, err := market.NewBuffer(symbol, e.capacity)
	if err != nil {
		return err
	}

	candles := mergeHistory(symbol, history, st.pending)
	if len(candles) > e.capacity {
		candles = candles[len(candles)-e.capacity:]
	}

	if err := s.OnStart(symbol); err != nil {
		return fmt.Errorf("failed to start strategy for %s: %w", symbol, err)
	}

	for _, c := range candles {
		buf.Push(c)
		s.OnCandle(c, ind.Step(c))
	}

	if w := ind.Window(); len(candles) < w {
		e.log.Warn("history shorter than indicator window",
			slog.String("symbol", symbol),
			slog.Int("candles", len(candles)),
			slog.Int("window", w))
	}

	st.buf, st.ind, st.strat, st.snap = buf, ind, s, ind.Snapshot()
	st.pending = nil
	st.state = Warmed
	if latest, ok := buf.Latest(); ok {
		st.last = latest.Time
	}

	e.metrics.BufferLen.WithLabelValues(symbol).Set(float64(buf.Len()))
	e.log.Info("buffer warmed",
		slog.String("symbol", symbol),
		slog.Int("candles", buf.Len()),
		slog.String("strategy", s.Name()))

	return nil
}

// mergeHistory orders history and appends queued live candles newer than
// its tail.
func mergeHistory(symbol string, history, pending []market.Candle) []market.Candle {
	res := make([]market.Candle, len(history), len(history)+len(pending))
	copy(res, history)
	for i := range res {
		res[i].Symbol = symbol
	}

	sort.SliceStable(res, func(i, j int) bool { return res[i].Time.Before(res[j].Time) })

	for _, c := range pending {
		if n := len(res); n > 0 && !c.Time.After(res[n-1].Time) {
			continue
		}
		res = append(res, c)
	}

	return res
}

// OnNewCandle advances symbol by one candle and evaluates the strategy on
// the new indicator snapshot. A candle for a symbol that is not warmed yet
// is queued and reported with ErrBufferNotWarmed.
func (e *Engine) OnNewCandle(ctx context.Context, c market.Candle) (*strategy.Signal, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	st := e.entry(c.Symbol)
	st.mu.Lock()

	if st.state == Uninitialized {
		st.pending = append(st.pending, c)
		if len(st.pending) > e.capacity {
			st.pending = st.pending[len(st.pending)-e.capacity:]
		}
		st.mu.Unlock()

		e.metrics.NotWarmedTotal.WithLabelValues(c.Symbol).Inc()
		return nil, fmt.Errorf("%w: %s", market.ErrBufferNotWarmed, c.Symbol)
	}

	if c.Time.Before(st.last) {
		last := st.last
		st.mu.Unlock()

		e.metrics.StaleTotal.WithLabelValues(c.Symbol).Inc()
		return nil, fmt.Errorf("%w: %s candle at %s is older than %s", market.ErrStaleCandle, c.Symbol, c.Time, last)
	}

	st.buf.Push(c)

	start := time.Now()
	st.snap = st.ind.Step(c)
	e.metrics.IndicatorDur.Observe(time.Since(start).Seconds())

	sig := st.strat.OnCandle(c, st.snap)
	st.last = c.Time
	st.state = Streaming
	bufLen := st.buf.Len()
	st.mu.Unlock()

	e.metrics.CandlesTotal.WithLabelValues(c.Symbol).Inc()
	e.metrics.BufferLen.WithLabelValues(c.Symbol).Set(float64(bufLen))

	return e.emit(ctx, c.Symbol, sig)
}

// OnTick forwards an intra-candle trade to the symbol's strategy.
func (e *Engine) OnTick(ctx context.Context, t market.Tick) (*strategy.Signal, error) {
	st, ok := e.lookup(t.Symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %s", market.ErrBufferNotWarmed, t.Symbol)
	}

	st.mu.Lock()
	if st.state == Uninitialized {
		st.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", market.ErrBufferNotWarmed, t.Symbol)
	}
	sig := st.strat.OnTick(t)
	st.mu.Unlock()

	return e.emit(ctx, t.Symbol, sig)
}

func (e *Engine) emit(ctx context.Context, symbol string, sig *strategy.Signal) (*strategy.Signal, error) {
	if sig == nil {
		return nil, nil
	}

	if sig.ID == "" {
		sig.ID = uuid.New().String()
	}
	sig.Symbol = symbol

	e.metrics.SignalsTotal.WithLabelValues(symbol, string(sig.Side)).Inc()
	e.log.Info("signal",
		slog.String("symbol", symbol),
		slog.String("side", string(sig.Side)),
		slog.String("price", sig.ReferencePrice.String()),
		slog.String("reason", sig.Reason))

	if err := e.sink.Publish(ctx, *sig); err != nil {
		e.metrics.SinkErrorsTotal.Inc()
		return sig, fmt.Errorf("failed to publish signal for %s: %w", symbol, err)
	}

	return sig, nil
}

// Stop tears down symbol. A later warm load starts it from scratch.
func (e *Engine) Stop(symbol string) {
	e.mu.Lock()
	st, ok := e.symbols[symbol]
	delete(e.symbols, symbol)
	e.mu.Unlock()

	if !ok {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.strat != nil {
		st.strat.OnStop()
	}
	e.metrics.BufferLen.DeleteLabelValues(symbol)
	e.log.Info("symbol stopped", slog.String("symbol", symbol))
}

// Close stops every symbol.
func (e *Engine) Close() {
	for _, s := range e.Symbols() {
		e.Stop(s)
	}
}

func (e *Engine) State(symbol string) State {
	st, ok := e.lookup(symbol)
	if !ok {
		return Uninitialized
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}

// Buffer returns the buffered candles of symbol, oldest first.
func (e *Engine) Buffer(symbol string) []market.Candle {
	st, ok := e.lookup(symbol)
	if !ok {
		return nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.buf == nil {
		return nil
	}
	return st.buf.Candles()
}

// Snapshot returns a copy of the newest indicator outputs of symbol.
func (e *Engine) Snapshot(symbol string) indicator.Snapshot {
	st, ok := e.lookup(symbol)
	if !ok {
		return nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	res := make(indicator.Snapshot, len(st.snap))
	for k, v := range st.snap {
		res[k] = v
	}
	return res
}

func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	res := make([]string, 0, len(e.symbols))
	for s := range e.symbols {
		res = append(res, s)
	}
	sort.Strings(res)
	return res
}

type Status struct {
	Symbol     string    `json:"symbol"`
	State      State     `json:"state"`
	Buffered   int       `json:"buffered"`
	Capacity   int       `json:"capacity"`
	Pending    int       `json:"pending"`
	LastCandle time.Time `json:"last_candle,omitzero"`
}

// Status reports every known symbol, sorted by name.
func (e *Engine) Status() []Status {
	var res []Status
	for _, sym := range e.Symbols() {
		st, ok := e.lookup(sym)
		if !ok {
			continue
		}

		st.mu.Lock()
		s := Status{
			Symbol:     sym,
			State:      st.state,
			Capacity:   e.capacity,
			Pending:    len(st.pending),
			LastCandle: st.last,
		}
		if st.buf != nil {
			s.Buffered = st.buf.Len()
		}
		st.mu.Unlock()

		res = append(res, s)
	}

	return res
}
