package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"deltadebate/internal/errs"
	"deltadebate/services"
)

// AdminController serves phase configuration and debate moderation.
// Every route sits behind the RBAC middleware.
type AdminController struct {
	svc    *services.DebateService
	logger zerolog.Logger
}

func NewAdminController(svc *services.DebateService, logger zerolog.Logger) *AdminController {
	return &AdminController{svc: svc, logger: logger.With().Str("controller", "admin").Logger()}
}

type settingRequest struct {
	Value json.Number `json:"value" binding:"required"`
}

type deadlineRequest struct {
	DebateID string    `json:"debateID" binding:"required"`
	Deadline time.Time `json:"deadline" binding:"required"`
}

// PhaseConfigView is the wire form of the scheduler configuration.
type PhaseConfigView struct {
	MaxPhase               int     `json:"maxPhase"`
	DeadlineExtensionHours float64 `json:"deadlineExtensionHours"`
	NumPromptsPerDay       int     `json:"numPromptsPerDay"`
}

func (ac *AdminController) configView() PhaseConfigView {
	cfg := ac.svc.Phases().Config()
	return PhaseConfigView{
		MaxPhase:               cfg.MaxPhase,
		DeadlineExtensionHours: cfg.DeadlineExtension.Hours(),
		NumPromptsPerDay:       cfg.NumPromptsPerDay,
	}
}

func (ac *AdminController) PhaseConfig(c *gin.Context) {
	c.JSON(http.StatusOK, ac.configView())
}

// intValue parses a setting that must be a whole number.
func intValue(c *gin.Context) (int, bool) {
	var req settingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return 0, false
	}
	n, err := strconv.Atoi(req.Value.String())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errs.InvalidInput("%s must be an integer greater than 0", req.Value).Error()})
		return 0, false
	}
	return n, true
}

func (ac *AdminController) SetNumPrompts(c *gin.Context) {
	n, ok := intValue(c)
	if !ok {
		return
	}
	if err := ac.svc.Phases().SetNumPromptsPerDay(n); err != nil {
		respondError(c, ac.logger, err)
		return
	}
	ac.logger.Info().Int("numPromptsPerDay", n).Msg("intake cap changed")
	c.JSON(http.StatusOK, ac.configView())
}

func (ac *AdminController) SetMaxPhase(c *gin.Context) {
	n, ok := intValue(c)
	if !ok {
		return
	}
	if err := ac.svc.Phases().SetMaxPhase(n); err != nil {
		respondError(c, ac.logger, err)
		return
	}
	ac.logger.Info().Int("maxPhase", n).Msg("max phase changed")
	c.JSON(http.StatusOK, ac.configView())
}

// SetExtension accepts fractional hours.
func (ac *AdminController) SetExtension(c *gin.Context) {
	var req settingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	hours, err := req.Value.Float64()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errs.InvalidInput("%s must be a number greater than 0", req.Value).Error()})
		return
	}
	if err := ac.svc.Phases().SetDeadlineExtensionHours(hours); err != nil {
		respondError(c, ac.logger, err)
		return
	}
	ac.logger.Info().Float64("deadlineExtensionHours", hours).Msg("deadline extension changed")
	c.JSON(http.StatusOK, ac.configView())
}

func (ac *AdminController) ChangeDeadline(c *gin.Context) {
	var req deadlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := ac.svc.EditDeadline(c.Request.Context(), req.DebateID, req.Deadline); err != nil {
		respondError(c, ac.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "Deadline changed!", "deadline": req.Deadline})
}

func (ac *AdminController) DeleteDebate(c *gin.Context) {
	if err := ac.svc.DeleteDebate(c.Request.Context(), c.Param("debateID")); err != nil {
		respondError(c, ac.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "Debate deleted!"})
}

// FinalizeScores freezes the deltas of a debate past its review phase.
func (ac *AdminController) FinalizeScores(c *gin.Context) {
	deltas, err := ac.svc.FinalizeDebateScores(c.Request.Context(), c.Param("debateID"))
	if err != nil {
		respondError(c, ac.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deltas": deltas})
}

// Assignment computes a balanced review assignment with k reviews per
// participant. An impossible k is reported with found=false.
func (ac *AdminController) Assignment(c *gin.Context) {
	k, err := strconv.Atoi(c.DefaultQuery("k", "1"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "k must be an integer"})
		return
	}
	assignment, found, err := ac.svc.BalancedAssignment(c.Request.Context(), c.Param("debateID"), k)
	if err != nil {
		respondError(c, ac.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"found": found, "assignment": assignment})
}
