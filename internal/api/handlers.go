package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/danielpatrickdp/trigger-guard/internal/decision"
	"github.com/danielpatrickdp/trigger-guard/internal/detection"
	"github.com/danielpatrickdp/trigger-guard/internal/intake"
	"github.com/danielpatrickdp/trigger-guard/internal/orchestrator"
	"github.com/danielpatrickdp/trigger-guard/internal/threshold"
)

// #region bodies

type openSessionBody struct {
	UserID string `json:"user_id"`
}

type seekBody struct {
	SeekTo *float64 `json:"seek_to" binding:"required"`
}

type mediaBody struct {
	MediaID string `json:"media_id" binding:"required"`
}

type ingestResponse struct {
	Epoch      uint64            `json:"epoch"`
	Action     decision.Action   `json:"action"`
	Reason     decision.Reason   `json:"reason,omitempty"`
	Confidence float64           `json:"confidence"`
	Threshold  float64           `json:"threshold"`
	Warning    *decision.Warning `json:"warning,omitempty"`
}

type adjustmentView struct {
	ID        string             `json:"id"`
	Category  detection.Category `json:"category"`
	Old       float64            `json:"old"`
	New       float64            `json:"new"`
	Feedback  string             `json:"feedback"`
	Reasoning string             `json:"reasoning"`
	Converged bool               `json:"converged"`
	At        string             `json:"at"`
}

// #endregion bodies

// #region sessions

func (h *handlers) openSession(c *gin.Context) {
	var body openSessionBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, err)
			return
		}
	}
	s := h.manager.Open(c.Request.Context(), body.UserID, nil)
	c.JSON(http.StatusCreated, gin.H{"session_id": s.ID(), "user_id": s.UserID(), "epoch": s.Epoch()})
}

func (h *handlers) closeSession(c *gin.Context) {
	if err := h.manager.CloseSession(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// session resolves :id or writes the error response.
func (h *handlers) session(c *gin.Context) (*orchestrator.Session, bool) {
	s, err := h.manager.Session(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return s, true
}

// #endregion sessions

// #region pipeline

func (h *handlers) ingest(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var d detection.Detection
	if err := c.ShouldBindJSON(&d); err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.Process(c.Request.Context(), d)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ingestResponse{
		Epoch:      res.Epoch,
		Action:     res.Outcome.Action,
		Reason:     res.Outcome.Reason,
		Confidence: res.Confidence,
		Threshold:  res.Outcome.EffectiveThreshold,
		Warning:    res.Warning(),
	})
}

func (h *handlers) feedback(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var fb threshold.Feedback
	if err := c.ShouldBindJSON(&fb); err != nil {
		badRequest(c, err)
		return
	}
	adj, err := s.Feedback(c.Request.Context(), fb)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAdjustmentView(adj))
}

func (h *handlers) seek(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var body seekBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"epoch": s.Seek(c.Request.Context(), *body.SeekTo)})
}

func (h *handlers) mediaChanged(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var body mediaBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"epoch": s.MediaChanged(c.Request.Context(), body.MediaID)})
}

func (h *handlers) warnings(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	ws := s.Warnings()
	if ws == nil {
		ws = []decision.Warning{}
	}
	c.JSON(http.StatusOK, gin.H{"epoch": s.Epoch(), "warnings": ws})
}

// #endregion pipeline

// #region thresholds

func (h *handlers) exportThresholds(c *gin.Context) {
	user := c.Param("user")
	c.JSON(http.StatusOK, gin.H{
		"user_id":    user,
		"thresholds": h.manager.ExportThresholds(c.Request.Context(), user),
	})
}

// importThresholds applies the known categories even when the body names
// unknown ones; those are listed in the 400 response.
func (h *handlers) importThresholds(c *gin.Context) {
	user := c.Param("user")
	var snapshot map[detection.Category]float64
	if err := c.ShouldBindJSON(&snapshot); err != nil {
		badRequest(c, err)
		return
	}
	err := h.manager.ImportThresholds(c.Request.Context(), user, snapshot)
	body := gin.H{
		"user_id":    user,
		"thresholds": h.manager.ExportThresholds(c.Request.Context(), user),
	}
	if err != nil {
		body["error"] = err.Error()
		c.JSON(http.StatusBadRequest, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (h *handlers) adjustments(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no threshold store configured"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	adjs, err := h.history.ListAdjustments(c.Request.Context(), c.Param("user"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]adjustmentView, len(adjs))
	for i, a := range adjs {
		out[i] = toAdjustmentView(a)
	}
	c.JSON(http.StatusOK, gin.H{"user_id": c.Param("user"), "adjustments": out})
}

func toAdjustmentView(a threshold.Adjustment) adjustmentView {
	return adjustmentView{
		ID:        a.ID,
		Category:  a.Category,
		Old:       a.Old,
		New:       a.New,
		Feedback:  string(a.Feedback),
		Reasoning: a.Reasoning,
		Converged: a.Converged,
		At:        a.At.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// #endregion thresholds

// #region errors

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, orchestrator.ErrStaleEpoch), errors.Is(err, intake.ErrStale):
		return http.StatusConflict
	case errors.Is(err, detection.ErrMalformed),
		errors.Is(err, threshold.ErrUnknownCategory),
		errors.Is(err, threshold.ErrUnknownFeedback):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// #endregion errors
