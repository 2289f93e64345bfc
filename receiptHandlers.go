package main

import (
	"errors"
	"net/http"

	"bitbucket.org/mmdatafocus/expenses_backend/config"
	"bitbucket.org/mmdatafocus/expenses_backend/middlewares"
	"bitbucket.org/mmdatafocus/expenses_backend/models"
	"bitbucket.org/mmdatafocus/expenses_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const maxReceiptSizeBytes int64 = 10 * 1024 * 1024

func uploadReceiptHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		expenseId, ok := expenseIdParam(c)
		if !ok {
			return
		}

		header, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if header.Size > maxReceiptSizeBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 10MB limit"})
			return
		}

		file, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
			return
		}
		defer file.Close()

		receipt, err := models.AttachReceipt(c.Request.Context(), expenseId, header.Filename, file)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			config.LogError(logger, "receiptHandlers", "uploadReceiptHandler", "attach receipt", header.Filename, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		logger.WithFields(logrus.Fields{
			"expense_id": expenseId,
			"mime_type":  receipt.MimeType,
			"size":       receipt.FileSize,
			"object_key": receipt.StorageKey,
		}).Info("[receipt.upload]")

		c.JSON(http.StatusCreated, receipt)
	}
}

func listReceiptsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		expenseId, ok := expenseIdParam(c)
		if !ok {
			return
		}

		user := middlewares.CurrentUser(c)
		receipts, err := models.ListReceipts(c.Request.Context(), user, expenseId)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"receipts": receipts})
	}
}
