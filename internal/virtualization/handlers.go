package virtualization

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// HandleComputeWindow computes a render window from scroll state passed as
// query parameters. The endpoint is pure; clients poll it instead of
// shipping the window math themselves.
func HandleComputeWindow(c *gin.Context) {
	cfg := Config{Overscan: DefaultOverscan}

	var err error
	if cfg.ItemHeight, err = intQuery(c, "item_height", 0); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item_height"})
		return
	}
	if cfg.ContainerHeight, err = intQuery(c, "container_height", 0); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid container_height"})
		return
	}
	if cfg.ScrollTop, err = intQuery(c, "scroll_top", 0); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid scroll_top"})
		return
	}
	if cfg.TotalItems, err = intQuery(c, "total_items", 0); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid total_items"})
		return
	}
	if cfg.Overscan, err = intQuery(c, "overscan", DefaultOverscan); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid overscan"})
		return
	}
	if cfg.HeaderHeight, err = intQuery(c, "header_height", 0); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid header_height"})
		return
	}

	if cfg.ItemHeight <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "item_height must be positive"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"window": Compute(cfg)})
}

func intQuery(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
