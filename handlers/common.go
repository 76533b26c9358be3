package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docport/gateway/internal/backend"
)

// writeBackendError translates a backend failure into the gateway's response:
// rejections keep their status and message, outages and backend faults become
// a 502 so the client can tell them apart from its own bad request.
func writeBackendError(c *gin.Context, err error) {
	var be *backend.Error
	if !errors.As(err, &be) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	switch be.Kind {
	case backend.KindRejected:
		status := be.Status
		if status == 0 {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": be.Message})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "backend unavailable"})
	}
}
