// Package relay accepts signal submissions over HTTP and publishes them
// under the relay's own agent identity, one at a time. It also serves a
// read API over the registry.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rewired-gh/solsignal/internal/ledger"
	"github.com/rewired-gh/solsignal/internal/models"
	"github.com/rewired-gh/solsignal/internal/registry"
)

// AnonymousAgent is the rate-limit bucket for submissions without a name.
const AnonymousAgent = "anonymous"

var ErrQueueFull = errors.New("publish queue is full")

// Publisher publishes under the relay identity.
type Publisher interface {
	Publish(ctx context.Context, p registry.PublishParams) (registry.PublishResult, error)
}

// Reader is the registry read side served by the API.
type Reader interface {
	ProgramID() models.Pubkey
	Registry(ctx context.Context) (models.Registry, error)
	Signal(ctx context.Context, addr models.Pubkey) (models.Signal, error)
	Signals(ctx context.Context) (registry.SignalPage, error)
	Agents(ctx context.Context) (registry.AgentPage, error)
}

// Journal serves the analyst and resolver batch history.
type Journal interface {
	RecentRuns(k int) ([]models.RunReport, error)
	RecentResolutions(k int) ([]models.ResolutionReport, error)
}

// TxLog looks up transactions by the id returned from a write.
type TxLog interface {
	Transaction(ctx context.Context, id string) (ledger.TxRecord, error)
}

type Config struct {
	MaxPerAgent  int
	PublishDelay time.Duration
	QueueSize    int
	Network      string
}

type Server struct {
	cfg       Config
	publisher Publisher
	reader    Reader
	journal   Journal
	txlog     TxLog
	logger    *zap.Logger

	queue chan job

	mu     sync.Mutex
	counts map[string]int

	sleep func(ctx context.Context, d time.Duration) error
}

type job struct {
	ctx    context.Context
	params registry.PublishParams
	agent  string
	done   chan jobResult
}

type jobResult struct {
	res registry.PublishResult
	err error
}

func New(cfg Config, publisher Publisher, reader Reader, logger *zap.Logger) *Server {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:       cfg,
		publisher: publisher,
		reader:    reader,
		logger:    logger,
		queue:     make(chan job, cfg.QueueSize),
		counts:    make(map[string]int),
		sleep:     sleepCtx,
	}
}

// WithJournal enables /api/runs and /api/resolutions.
func (s *Server) WithJournal(j Journal) *Server {
	s.journal = j
	return s
}

// WithTxLog enables /api/tx/:id.
func (s *Server) WithTxLog(l TxLog) *Server {
	s.txlog = l
	return s
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(requestLogger(s.logger))
	s.Register(engine)
	return engine
}

func (s *Server) Register(r *gin.Engine) {
	r.GET("/health", s.health)
	r.POST("/publish", s.publish)

	api := r.Group("/api")
	api.GET("/registry", s.getRegistry)
	api.GET("/signals", s.listSignals)
	api.GET("/signals/:address", s.getSignal)
	api.GET("/agents", s.listAgents)
	api.GET("/agents/:address", s.getAgent)
	api.GET("/tx/:id", s.getTransaction)
	api.GET("/runs", s.listRuns)
	api.GET("/resolutions", s.listResolutions)
}

// Run drains the publish queue until ctx is done. Publishes are strictly
// sequential with PublishDelay between them.
func (s *Server) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			var r jobResult
			if err := j.ctx.Err(); err != nil {
				r.err = err
			} else {
				r.res, r.err = s.publisher.Publish(ctx, j.params)
			}
			j.done <- r
			if r.err == nil {
				s.logger.Info("published signal",
					zap.String("agent", j.agent),
					zap.String("asset", j.params.Asset),
					zap.String("direction", j.params.Direction),
					zap.Uint64("index", r.res.Index),
					zap.String("tx", r.res.TxID),
				)
			}
			if s.cfg.PublishDelay > 0 {
				if err := s.sleep(ctx, s.cfg.PublishDelay); err != nil {
					return
				}
			}
		}
	}
}

type publishRequest struct {
	Asset            *string  `json:"asset" binding:"required"`
	Direction        *string  `json:"direction" binding:"required"`
	Confidence       *int     `json:"confidence" binding:"required"`
	EntryPrice       *float64 `json:"entryPrice" binding:"required"`
	TargetPrice      *float64 `json:"targetPrice" binding:"required"`
	StopLoss         *float64 `json:"stopLoss" binding:"required"`
	TimeHorizonHours *int     `json:"timeHorizonHours" binding:"required"`
	Reasoning        *string  `json:"reasoning" binding:"required"`
	AgentName        string   `json:"agentName"`
}

func (r publishRequest) params() registry.PublishParams {
	reasoning := *r.Reasoning
	if r.AgentName != "" {
		reasoning = fmt.Sprintf("[%s] %s", r.AgentName, reasoning)
	}
	return registry.PublishParams{
		Asset:            *r.Asset,
		Direction:        *r.Direction,
		Confidence:       *r.Confidence,
		EntryPrice:       decimal.NewFromFloat(*r.EntryPrice),
		TargetPrice:      decimal.NewFromFloat(*r.TargetPrice),
		StopLoss:         decimal.NewFromFloat(*r.StopLoss),
		TimeHorizonHours: *r.TimeHorizonHours,
		Reasoning:        registry.TruncateReasoning(reasoning),
	}
}

type publishResponse struct {
	Success       bool          `json:"success"`
	Message       string        `json:"message"`
	TxID          string        `json:"tx"`
	SignalAddress models.Pubkey `json:"signalAddress"`
	Index         uint64        `json:"index"`
}

func (s *Server) publish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindError(err)})
		return
	}
	params := req.params()
	if _, err := params.Draft(time.Now()); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	agent := strings.TrimSpace(req.AgentName)
	if agent == "" {
		agent = AnonymousAgent
	}
	if !s.admit(agent) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": fmt.Sprintf("Rate limit: max %d signals per agent", s.cfg.MaxPerAgent)})
		return
	}

	res, err := s.enqueue(c.Request.Context(), agent, params)
	if err != nil {
		status := http.StatusInternalServerError
		var verr *registry.ValidationError
		switch {
		case errors.Is(err, ErrQueueFull):
			status = http.StatusServiceUnavailable
		case errors.As(err, &verr):
			status = http.StatusBadRequest
		}
		s.logger.Error("publish failed", zap.String("agent", agent), zap.Error(err))
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, publishResponse{
		Success:       true,
		Message:       "Signal published",
		TxID:          res.TxID,
		SignalAddress: res.SignalAddress,
		Index:         res.Index,
	})
}

// admit counts a submission against agent's cap. Every admitted request
// counts, whether or not its publish later succeeds.
func (s *Server) admit(agent string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts[agent] >= s.cfg.MaxPerAgent {
		return false
	}
	s.counts[agent]++
	return true
}

func (s *Server) enqueue(ctx context.Context, agent string, params registry.PublishParams) (registry.PublishResult, error) {
	j := job{ctx: ctx, params: params, agent: agent, done: make(chan jobResult, 1)}
	select {
	case s.queue <- j:
	default:
		return registry.PublishResult{}, ErrQueueFull
	}
	select {
	case r := <-j.done:
		return r.res, r.err
	case <-ctx.Done():
		return registry.PublishResult{}, ctx.Err()
	}
}

func (s *Server) agentsServed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counts)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"program":      s.reader.ProgramID().String(),
		"network":      s.cfg.Network,
		"queueLength":  len(s.queue),
		"agentsServed": s.agentsServed(),
	})
}

// bindError reports the first missing field the way clients expect
// ("Missing: entryPrice"), falling back to the decoder's message.
func bindError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return "Missing: " + lowerFirst(verrs[0].Field())
	}
	return "invalid request body: " + err.Error()
}

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[n:]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
