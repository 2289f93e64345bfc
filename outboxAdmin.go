package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"bitbucket.org/mmdatafocus/expenses_backend/config"
	"bitbucket.org/mmdatafocus/expenses_backend/middlewares"
	"bitbucket.org/mmdatafocus/expenses_backend/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultStuckLockAgeSeconds = 300

type outboxRetryRequest struct {
	ExpenseId        int `json:"expense_id"`
	OlderThanSeconds int `json:"older_than_seconds"`
}

// internalCaller names the authenticated caller for the ops audit logs,
// service JWT subject or admin session username.
func internalCaller(c *gin.Context) string {
	if claim := middlewares.CtxValue(c.Request.Context()); claim != nil {
		return fmt.Sprintf("service:%d", claim.ID)
	}
	if user := middlewares.CurrentUser(c); user != nil {
		return user.Username
	}
	return "unknown"
}

// retryOutboxProcessingHandler releases wedged outbox rows back to the
// dispatcher. With an expense_id it redrives that expense's FAILED/DEAD rows;
// without one it force-releases stale PROCESSING locks across the table.
func retryOutboxProcessingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		var req outboxRetryRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}

		if req.ExpenseId > 0 {
			status, err := models.RetryPaymentOutbox(c.Request.Context(), req.ExpenseId)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					c.JSON(http.StatusNotFound, gin.H{"error": "no retryable outbox rows for expense"})
					return
				}
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			logger.WithFields(logrus.Fields{
				"expense_id":     req.ExpenseId,
				"publish_status": status.PublishStatus,
				"caller":         internalCaller(c),
			}).Info("[outbox.retry]")
			c.JSON(http.StatusOK, status)
			return
		}

		olderThanSeconds := req.OlderThanSeconds
		if olderThanSeconds <= 0 {
			olderThanSeconds = defaultStuckLockAgeSeconds
		}
		released, err := models.ReleaseStuckPaymentOutbox(c.Request.Context(), time.Duration(olderThanSeconds)*time.Second)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		logger.WithFields(logrus.Fields{
			"released":           released,
			"older_than_seconds": olderThanSeconds,
			"caller":             internalCaller(c),
		}).Info("[outbox.retry]")

		c.JSON(http.StatusOK, gin.H{
			"released":           released,
			"older_than_seconds": olderThanSeconds,
		})
	}
}

func redriveDeadOutboxHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		redriven, err := models.RedriveDeadPaymentOutbox(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		logger.WithFields(logrus.Fields{
			"redriven": redriven,
			"caller":   internalCaller(c),
		}).Info("[outbox.redrive]")

		c.JSON(http.StatusOK, gin.H{"redriven": redriven})
	}
}
