package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type metadata struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	Timestamp     string `json:"timestamp"`
	ExecutionTime string `json:"executionTime,omitempty"`
}

// envelope is the uniform response wrapper for every endpoint.
type envelope struct {
	Metadata   metadata    `json:"metadata"`
	Data       interface{} `json:"data"`
	Pagination interface{} `json:"pagination,omitempty"`
}

func respondOK(c *gin.Context, data interface{}, start time.Time) {
	c.JSON(http.StatusOK, envelope{
		Metadata: metadata{
			Success:       true,
			Message:       "OK",
			Timestamp:     responseTimestamp(),
			ExecutionTime: executionTime(start),
		},
		Data: data,
	})
}

func respondError(c *gin.Context, status int, message string, start time.Time) {
	c.JSON(status, envelope{
		Metadata: metadata{
			Success:       false,
			Message:       message,
			Timestamp:     responseTimestamp(),
			ExecutionTime: executionTime(start),
		},
	})
}

func responseTimestamp() string {
	return time.Now().UTC().Format("2006-01-02 15:04:05")
}

func executionTime(start time.Time) string {
	return fmt.Sprintf("%dms", time.Since(start).Milliseconds())
}
