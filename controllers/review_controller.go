package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"deltadebate/middlewares"
	"deltadebate/services"
)

// ReviewController serves review submission and delta lookups.
type ReviewController struct {
	svc    *services.DebateService
	logger zerolog.Logger
}

func NewReviewController(svc *services.DebateService, logger zerolog.Logger) *ReviewController {
	return &ReviewController{svc: svc, logger: logger.With().Str("controller", "review").Logger()}
}

type reviewRequest struct {
	DebateID  string   `json:"debateID" binding:"required"`
	OpinionID string   `json:"opinionID" binding:"required"`
	Score     *float64 `json:"score" binding:"required"`
}

func (rc *ReviewController) SubmitReview(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	review, created, err := rc.svc.SubmitReview(c.Request.Context(), middlewares.UserID(c), req.DebateID, req.OpinionID, *req.Score)
	if err != nil {
		respondError(c, rc.logger, err)
		return
	}
	msg := "Review updated!"
	if created {
		msg = "Review submitted!"
	}
	c.JSON(http.StatusOK, gin.H{"msg": msg, "review": review})
}

// MyScore returns the caller's score for an opinion, or the default.
func (rc *ReviewController) MyScore(c *gin.Context) {
	score, err := rc.svc.ReviewerScore(c.Request.Context(), middlewares.UserID(c), c.Param("debateID"), c.Param("opinionID"))
	if err != nil {
		respondError(c, rc.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"score": score})
}

func (rc *ReviewController) OpinionDelta(c *gin.Context) {
	delta, err := rc.svc.OpinionDelta(c.Request.Context(), c.Param("debateID"), c.Param("opinionID"))
	if err != nil {
		respondError(c, rc.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"delta": delta})
}

// UserDelta sums the frozen deltas of every opinion the user wrote.
func (rc *ReviewController) UserDelta(c *gin.Context) {
	delta, err := rc.svc.UserDelta(c.Request.Context(), c.Param("userID"))
	if err != nil {
		respondError(c, rc.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": c.Param("userID"), "delta": delta})
}
