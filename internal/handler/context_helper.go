package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/parade-registry-api/internal/middleware"
	"github.com/noah-isme/parade-registry-api/internal/service"
)

func actorFromContext(c *gin.Context) service.Actor {
	actor := service.Actor{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	if claims := middleware.Claims(c); claims != nil {
		actor.UserID = claims.UserID
		actor.Username = claims.Username
	}
	return actor
}
