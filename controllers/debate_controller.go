package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"deltadebate/middlewares"
	"deltadebate/services"
)

// DebateController serves the participant facing debate routes.
type DebateController struct {
	svc    *services.DebateService
	logger zerolog.Logger
}

func NewDebateController(svc *services.DebateService, logger zerolog.Logger) *DebateController {
	return &DebateController{svc: svc, logger: logger.With().Str("controller", "debate").Logger()}
}

type newPromptRequest struct {
	Prompt   string `json:"prompt" binding:"required"`
	Category string `json:"category"`
}

type opinionRequest struct {
	DebateID    string   `json:"debateID" binding:"required"`
	Content     string   `json:"content" binding:"required"`
	LikertScale *float64 `json:"likertScale" binding:"required"`
}

type removeMatchRequest struct {
	DebateID  string `json:"debateID" binding:"required"`
	OpinionID string `json:"opinionID" binding:"required"`
}

// ActiveDebates lists every debate in phases 1 to 3.
func (dc *DebateController) ActiveDebates(c *gin.Context) {
	debates, err := dc.svc.ActiveDebates(c.Request.Context())
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}
	c.JSON(http.StatusOK, debates)
}

func (dc *DebateController) ActiveDebate(c *gin.Context) {
	d, err := dc.svc.ActiveDebate(c.Request.Context(), c.Param("debateID"))
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// HistoryDebates lists archived debates, most recently archived first.
func (dc *DebateController) HistoryDebates(c *gin.Context) {
	debates, err := dc.svc.History(c.Request.Context())
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}
	c.JSON(http.StatusOK, debates)
}

func (dc *DebateController) HistoryDebate(c *gin.Context) {
	d, err := dc.svc.ArchivedDebate(c.Request.Context(), c.Param("debateID"))
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// NewPrompt creates a debate and queues it for scheduling.
func (dc *DebateController) NewPrompt(c *gin.Context) {
	var req newPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	d, rec, err := dc.svc.SuggestPrompt(c.Request.Context(), req.Prompt, req.Category)
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"msg": "Prompt suggested!", "debate": d, "phase": rec})
}

func (dc *DebateController) SubmitOpinion(c *gin.Context) {
	var req opinionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	op, created, err := dc.svc.SubmitOpinion(c.Request.Context(), middlewares.UserID(c), req.DebateID, req.Content, *req.LikertScale)
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}
	msg := "Opinion updated!"
	if created {
		msg = "Opinion created!"
	}
	c.JSON(http.StatusOK, gin.H{"msg": msg, "opinion": op})
}

func (dc *DebateController) SubmitRevisedOpinion(c *gin.Context) {
	var req opinionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	op, created, err := dc.svc.SubmitRevisedOpinion(c.Request.Context(), middlewares.UserID(c), req.DebateID, req.Content, *req.LikertScale)
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}
	msg := "Revised opinion updated!"
	if created {
		msg = "Revised opinion created!"
	}
	c.JSON(http.StatusOK, gin.H{"msg": msg, "opinion": op})
}

// MatchOpinions returns the caller's sample of dissenting opinions.
func (dc *DebateController) MatchOpinions(c *gin.Context) {
	debateID := c.Query("debateID")
	if debateID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "debateID parameter required"})
		return
	}
	contents, err := dc.svc.MatchedOpinionContents(c.Request.Context(), debateID, middlewares.UserID(c))
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}
	c.JSON(http.StatusOK, contents)
}

func (dc *DebateController) RemoveMatchedOpinion(c *gin.Context) {
	var req removeMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := dc.svc.RemoveMatchedOpinion(c.Request.Context(), req.DebateID, middlewares.UserID(c), req.OpinionID); err != nil {
		respondError(c, dc.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "Matched opinion removed!"})
}

func (dc *DebateController) MyOpinion(c *gin.Context) {
	op, err := dc.svc.MyOpinion(c.Request.Context(), c.Param("debateID"), middlewares.UserID(c))
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"found": op != nil, "opinion": op})
}

func (dc *DebateController) MyRevisedOpinion(c *gin.Context) {
	op, err := dc.svc.MyRevisedOpinion(c.Request.Context(), c.Param("debateID"), middlewares.UserID(c))
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"found": op != nil, "opinion": op})
}

func (dc *DebateController) DeleteMyOpinion(c *gin.Context) {
	if err := dc.svc.DeleteMyOpinion(c.Request.Context(), c.Param("debateID"), middlewares.UserID(c)); err != nil {
		respondError(c, dc.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "Opinion deleted!"})
}

// LikertShift reports how far the caller moved after reviewing.
func (dc *DebateController) LikertShift(c *gin.Context) {
	shift, err := dc.svc.LikertShift(c.Request.Context(), c.Param("debateID"), middlewares.UserID(c))
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shift": shift})
}
