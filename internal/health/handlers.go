package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/database"
)

var startTime = time.Now()

// HandleHealthCheck returns basic health status
func HandleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "whispey-api",
		"timestamp": time.Now(),
		"uptime":    time.Since(startTime).String(),
	})
}

// HandleSystemReady returns readiness status: the database must answer a
// ping and Redis must answer one if configured.
func HandleSystemReady(c *gin.Context) {
	dbReady := false
	if database.DB != nil {
		sqlDB, err := database.DB.DB()
		if err == nil {
			if err := sqlDB.Ping(); err == nil {
				dbReady = true
			}
		}
	}

	redisReady := true
	if database.RedisClient != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		redisReady = database.RedisClient.Ping(ctx).Err() == nil
	}

	status := http.StatusOK
	if !dbReady || !redisReady {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"ready":    dbReady && redisReady,
		"database": dbReady,
		"redis":    redisReady,
		"service":  "whispey-api",
	})
}
