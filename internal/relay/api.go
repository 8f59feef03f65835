package relay

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rewired-gh/solsignal/internal/codec"
	"github.com/rewired-gh/solsignal/internal/ledger"
	"github.com/rewired-gh/solsignal/internal/models"
	"github.com/rewired-gh/solsignal/internal/registry"
)

type signalView struct {
	Address models.Pubkey `json:"address"`
	models.Signal
}

type agentView struct {
	Address        models.Pubkey `json:"address"`
	PendingSignals uint64        `json:"pendingSignals"`
	models.AgentProfile
}

func newAgentView(addr models.Pubkey, p models.AgentProfile) agentView {
	return agentView{Address: addr, PendingSignals: p.PendingSignals(), AgentProfile: p}
}

func (s *Server) getRegistry(c *gin.Context) {
	reg, err := s.reader.Registry(c.Request.Context())
	if errors.Is(err, registry.ErrNotInitialized) {
		Error(c, http.StatusNotFound, err.Error(), nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, reg, nil)
}

// listSignals supports ?agent=<owner> and ?status=pending|resolved|correct|incorrect|expired.
func (s *Server) listSignals(c *gin.Context) {
	var agent *models.Pubkey
	if raw := strings.TrimSpace(c.Query("agent")); raw != "" {
		k, err := models.ParsePubkey(raw)
		if err != nil {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		agent = &k
	}
	match, err := statusFilter(c.Query("status"))
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	page, err := s.reader.Signals(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	items := make([]signalView, 0, len(page.Records))
	for _, rec := range page.Records {
		if agent != nil && rec.Record.Agent != *agent {
			continue
		}
		if !match(rec.Record) {
			continue
		}
		items = append(items, signalView{Address: rec.Address, Signal: rec.Record})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Index > items[j].Index })
	Ok(c, items, map[string]any{"total": len(items), "failed": page.Failed})
}

func statusFilter(status string) (func(models.Signal) bool, error) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "":
		return func(models.Signal) bool { return true }, nil
	case "resolved":
		return func(s models.Signal) bool { return s.Resolved }, nil
	}
	o, err := models.ParseOutcome(status)
	if err != nil {
		return nil, err
	}
	return func(s models.Signal) bool { return s.Outcome == o }, nil
}

func (s *Server) getSignal(c *gin.Context) {
	addr, err := models.ParsePubkey(c.Param("address"))
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	sig, err := s.reader.Signal(c.Request.Context(), addr)
	switch {
	case errors.Is(err, registry.ErrSignalNotFound):
		Error(c, http.StatusNotFound, err.Error(), nil)
		return
	case errors.Is(err, codec.ErrMalformedRecord):
		Error(c, http.StatusUnprocessableEntity, err.Error(), nil)
		return
	case err != nil:
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, signalView{Address: addr, Signal: sig}, nil)
}

// listAgents returns profiles ordered by reputation.
func (s *Server) listAgents(c *gin.Context) {
	page, err := s.reader.Agents(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	items := make([]agentView, 0, len(page.Records))
	for _, rec := range page.Records {
		items = append(items, newAgentView(rec.Address, rec.Record))
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].ReputationScore > items[j].ReputationScore })
	Ok(c, items, map[string]any{"total": len(items), "failed": page.Failed})
}

// getAgent accepts either the profile address or the owner's key.
func (s *Server) getAgent(c *gin.Context) {
	key, err := models.ParsePubkey(c.Param("address"))
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	page, err := s.reader.Agents(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	for _, rec := range page.Records {
		if rec.Address == key || rec.Record.Authority == key {
			Ok(c, newAgentView(rec.Address, rec.Record), nil)
			return
		}
	}
	Error(c, http.StatusNotFound, registry.ErrAgentNotRegistered.Error(), nil)
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// getTransaction returns the journal entry for a transaction id, so a failed
// publish or resolve can be traced after the fact.
func (s *Server) getTransaction(c *gin.Context) {
	if s.txlog == nil {
		Error(c, http.StatusNotImplemented, "transaction journal not available", nil)
		return
	}
	rec, err := s.txlog.Transaction(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ledger.ErrTxNotFound) {
		Error(c, http.StatusNotFound, err.Error(), nil)
		return
	}
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, rec, nil)
}

func (s *Server) listRuns(c *gin.Context) {
	if s.journal == nil {
		Error(c, http.StatusNotImplemented, "run journal not available", nil)
		return
	}
	limit, ok := historyLimit(c)
	if !ok {
		return
	}
	runs, err := s.journal.RecentRuns(limit)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, runs, map[string]any{"total": len(runs)})
}

func (s *Server) listResolutions(c *gin.Context) {
	if s.journal == nil {
		Error(c, http.StatusNotImplemented, "run journal not available", nil)
		return
	}
	limit, ok := historyLimit(c)
	if !ok {
		return
	}
	batches, err := s.journal.RecentResolutions(limit)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, batches, map[string]any{"total": len(batches)})
}

// historyLimit parses ?limit=, clamped to maxHistoryLimit.
func historyLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultHistoryLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		Error(c, http.StatusBadRequest, "limit must be a positive integer", nil)
		return 0, false
	}
	return min(n, maxHistoryLimit), true
}
