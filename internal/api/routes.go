package api

import (
	"github.com/gin-gonic/gin"

	"nova_arena/internal/auth"
)

func (s *Server) Register(r *gin.Engine) {
	r.POST("/auth/register", s.register)
	r.POST("/auth/login", s.login)

	authorized := r.Group("/", s.auth.Auth())
	{
		authorized.GET("/me", s.me)
		authorized.GET("/me/transactions", s.myTransactions)
		authorized.GET("/me/matches", s.myMatches)

		authorized.GET("/matches", s.listMatches)
		authorized.GET("/matches/:id", s.getMatch)
		authorized.POST("/matches/:id/join", s.joinMatch)

		authorized.POST("/wallet/deposit", s.deposit)
		authorized.POST("/wallet/withdraw", s.withdraw)

		adminGroup := authorized.Group("/admin", auth.RequireAdmin())
		{
			adminGroup.GET("/transactions", s.adminTransactions)
			adminGroup.POST("/transactions/:id/settle", s.settle)
			adminGroup.GET("/users", s.adminUsers)
			adminGroup.PUT("/users/:id/block", s.blockUser)
			adminGroup.POST("/matches", s.createMatch)
			adminGroup.PUT("/matches/:id/room", s.publishRoom)
			adminGroup.PUT("/matches/:id/status", s.updateMatchStatus)
			adminGroup.POST("/matches/:id/results", s.declareResults)
		}
	}
}
