package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"bms-monitor/internal/ingest"

	"github.com/gin-gonic/gin"
)

func (s *Server) ingestHandler(c *gin.Context) {
	var batch ingest.Batch
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "validation failed",
			"details": ingest.IssuesFromValidator(err),
		})
		return
	}

	result, err := s.ingest.Ingest(c.Request.Context(), batch)
	if err != nil {
		var verr *ingest.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "validation failed",
				"details": verr.Issues,
			})
		case errors.Is(err, ingest.ErrSiteNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "site not found",
			})
		default:
			log.Printf("Ingest failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   "internal error",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    result,
	})
}

// ingestInfoHandler answers GET on the ingest path with a stateless
// liveness/info response. No side effects.
func (s *Server) ingestInfoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":        "ingest",
		"accepting":      true,
		"max_batch_size": ingest.MaxBatchSize,
		"timestamp":      time.Now().UTC(),
	})
}
