package api

import (
	"net/http"
	"strconv"
	"time"

	"bms-monitor/internal/analytics"

	"github.com/gin-gonic/gin"
)

func (s *Server) analyticsHandler(c *gin.Context) {
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'from' date format"})
		return
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'to' date format"})
		return
	}
	if to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'to' must not precede 'from'"})
		return
	}

	filter := analytics.AllSites()
	if site := c.DefaultQuery("site", "all"); site != "all" {
		id, err := strconv.ParseUint(site, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'site' parameter"})
			return
		}
		filter = analytics.OneSite(uint(id))
	}

	result := s.engine.Summarize(c.Request.Context(), analytics.Query{
		From:  from,
		To:    to,
		Sites: filter,
	})
	c.JSON(http.StatusOK, result)
}
