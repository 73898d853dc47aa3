// Package handlers is the HTTP boundary of the storefront: typed requests in,
// JSON views out, service errors mapped to status codes.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/judyrop/storefront/internal/domain"
)

type ErrorResponse struct {
	Error     string            `json:"error"`
	Fields    map[string]string `json:"fields,omitempty"`
	ProductID uint              `json:"product_id,omitempty"`
	Available *int              `json:"available,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrEmptyCart):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidOrderInput),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// messageFor is what the shopper reads; server errors stay in the log.
func messageFor(err error) string {
	var stockErr *domain.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		return fmt.Sprintf("Only %d units of %s available", stockErr.Available, stockErr.ProductName)
	case errors.Is(err, domain.ErrEmptyCart):
		return "Your cart is empty"
	case errors.Is(err, domain.ErrNotFound):
		return "Not found"
	case statusFor(err) == http.StatusInternalServerError:
		return "Internal server error"
	default:
		return err.Error()
	}
}

func writeError(c *gin.Context, log *logrus.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("Handler error on %s %s: %v", c.Request.Method, c.FullPath(), err)
	} else {
		log.Warnf("Request to %s rejected: %v", c.FullPath(), err)
	}

	resp := ErrorResponse{Error: messageFor(err)}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		resp.ProductID = stockErr.ProductID
		resp.Available = &stockErr.Available
	}
	c.JSON(status, resp)
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message})
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, fmt.Sprintf("Invalid id %q", c.Param("id")))
		return 0, false
	}
	return uint(id), true
}

// RequestLogger logs every request on arrival and on completion, at a level
// that follows the response status.
func RequestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		log.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"remote_ip": c.ClientIP(),
		}).Debug("Request received")

		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(logrus.Fields{
			"status_code": status,
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"remote_ip":   c.ClientIP(),
			"latency_ms":  time.Since(start).Milliseconds(),
		})
		switch {
		case len(c.Errors) > 0:
			entry.Error(c.Errors.ByType(gin.ErrorTypePrivate).String())
		case status >= http.StatusInternalServerError:
			entry.Error("Request completed with server error")
		case status >= http.StatusBadRequest:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed")
		}
	}
}
