// Package routes mounts the HTTP surface of the debate service.
package routes

import (
	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"deltadebate/controllers"
	"deltadebate/middlewares"
	"deltadebate/services"
	"deltadebate/websocket"
)

// Deps is everything the router needs.
type Deps struct {
	Service  *services.DebateService
	Enforcer *casbin.Enforcer
	Hub      *websocket.PhaseHub
	Logger   zerolog.Logger
}

// Setup registers every route on router.
func Setup(router *gin.Engine, deps Deps) {
	debates := controllers.NewDebateController(deps.Service, deps.Logger)
	reviews := controllers.NewReviewController(deps.Service, deps.Logger)
	admin := controllers.NewAdminController(deps.Service, deps.Logger)

	// Public reads
	router.GET("/activeDebates", debates.ActiveDebates)
	router.GET("/activeDebates/:debateID", debates.ActiveDebate)
	router.GET("/historyDebates", debates.HistoryDebates)
	router.GET("/historyDebates/:debateID", debates.HistoryDebate)
	router.GET("/opinion/delta/:debateID/:opinionID", reviews.OpinionDelta)
	router.GET("/users/:userID/delta", reviews.UserDelta)
	if deps.Hub != nil {
		router.GET("/ws/phases", deps.Hub.Handler)
	}

	// Caller scoped routes
	user := router.Group("/")
	user.Use(middlewares.IdentityMiddleware())
	{
		user.POST("/debate/newPrompt", debates.NewPrompt)
		user.POST("/debate/submitOpinion", debates.SubmitOpinion)
		user.POST("/debate/submitRevisedOpinion", debates.SubmitRevisedOpinion)
		user.GET("/debate/matchOpinions", debates.MatchOpinions)
		user.POST("/debate/removeMatchedOpinion", debates.RemoveMatchedOpinion)
		user.GET("/debate/getMyOpinion/:debateID", debates.MyOpinion)
		user.GET("/debate/getMyRevisedOpinion/:debateID", debates.MyRevisedOpinion)
		user.DELETE("/debate/deleteMyOpinion/:debateID", debates.DeleteMyOpinion)
		user.GET("/debate/likertShift/:debateID", debates.LikertShift)

		user.POST("/opinion/submitReview", reviews.SubmitReview)
		user.GET("/opinion/myScore/:debateID/:opinionID", reviews.MyScore)
	}

	// Moderation
	mod := router.Group("/admin")
	mod.Use(middlewares.RBACMiddleware(deps.Enforcer, deps.Logger))
	{
		mod.GET("/phase/config", admin.PhaseConfig)
		mod.PATCH("/phase/numPrompts", admin.SetNumPrompts)
		mod.PATCH("/phase/extension", admin.SetExtension)
		mod.POST("/phase/maxPhase", admin.SetMaxPhase)
		mod.PATCH("/debate/changeDeadline", admin.ChangeDeadline)
		mod.DELETE("/debates/:debateID", admin.DeleteDebate)
		mod.POST("/debates/:debateID/finalize", admin.FinalizeScores)
		mod.GET("/debates/:debateID/assignment", admin.Assignment)
	}
}
