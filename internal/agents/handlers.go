// Package agents serves the voice-agent inventory backing the call-log
// views.
package agents

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/database"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/models"
	"github.com/PYPE-AI-MAIN/whispey-sub003/pkg/utils"
)

// HandleListAgents lists the agents of a project
func HandleListAgents(c *gin.Context) {
	projectID := c.Param("projectId")

	var list []models.Agent
	if err := database.DB.WithContext(c.Request.Context()).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&list).Error; err != nil {
		utils.CaptureSentryError(c, err, "Failed to list agents", nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list agents"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"agents": list})
}

// HandleGetAgent returns one agent of a project
func HandleGetAgent(c *gin.Context) {
	projectID := c.Param("projectId")
	agentID := c.Param("agentId")

	var agent models.Agent
	err := database.DB.WithContext(c.Request.Context()).
		Where("id = ? AND project_id = ?", agentID, projectID).
		First(&agent).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Agent not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"agent": agent})
}
