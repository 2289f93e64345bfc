package models

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/expenses_backend/config"
	"bitbucket.org/mmdatafocus/expenses_backend/utils"
	"github.com/disintegration/imaging"
)

// Receipt is one uploaded proof of spend. Rows are immutable once written;
// correcting a receipt means uploading another one.
type Receipt struct {
	ID           int    `gorm:"primary_key" json:"id"`
	ExpenseId    int    `gorm:"index;not null" json:"expense_id"`
	FileName     string `gorm:"size:255;not null" json:"file_name"`
	FileSize     int64  `gorm:"not null" json:"file_size"`
	MimeType     string `gorm:"size:100;not null" json:"mime_type"`
	StorageKey   string `gorm:"size:512;not null" json:"storage_key"`
	ThumbnailKey string `gorm:"size:512" json:"thumbnail_key"`
	UploadedById int    `gorm:"not null" json:"uploaded_by_id"`

	// Derived access URLs, filled on read.
	FileUrl      string `gorm:"-" json:"file_url"`
	ThumbnailUrl string `gorm:"-" json:"thumbnail_url"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (r *Receipt) PrepareGive() {
	r.FileUrl = utils.BuildObjectAccessURL(r.StorageKey)
	if r.ThumbnailKey != "" {
		r.ThumbnailUrl = utils.BuildObjectAccessURL(r.ThumbnailKey)
	}
}

// AttachReceipt stores the uploaded file for the caller's own draft expense.
// Images additionally get a 200px JPEG thumbnail; PDFs do not.
func AttachReceipt(ctx context.Context, expenseId int, fileName string, file io.Reader) (*Receipt, error) {

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, errors.New("user id is required")
	}

	// receipts attach to the uploader's own expense while it is a draft
	if _, err := utils.FetchModelForChange[Expense](ctx, userId, expenseId); err != nil {
		return nil, err
	}

	if file == nil {
		return nil, errors.New("nil file provided")
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	ext := filepath.Ext(fileName)
	if ext == "" {
		return nil, errors.New("file has no extension")
	}
	uniqueFilename := utils.GenerateUniqueFilename() + ext
	storageKey := filepath.Join(fmt.Sprintf("receipts/%d", expenseId), uniqueFilename)
	thumbnailKey := ""

	mimeType, err := utils.UploadReceiptToGCS(ctx, storageKey, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(mimeType, "image/") {
		thumbnailData, err := generateThumbnail(data)
		if err != nil {
			return nil, err
		}
		thumbnailKey = filepath.Join(fmt.Sprintf("receipts/%d", expenseId), "thumbnails", uniqueFilename)
		if err := utils.UploadBytesToGCS(ctx, thumbnailKey, thumbnailData, "image/jpeg"); err != nil {
			return nil, err
		}
	}

	receipt := Receipt{
		ExpenseId:    expenseId,
		FileName:     fileName,
		FileSize:     int64(len(data)),
		MimeType:     mimeType,
		StorageKey:   storageKey,
		ThumbnailKey: thumbnailKey,
		UploadedById: userId,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&receipt).Error; err != nil {
		return nil, err
	}

	receipt.PrepareGive()
	return &receipt, nil
}

func generateThumbnail(originalData []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(originalData))
	if err != nil {
		return nil, err
	}

	thumbnail := imaging.Resize(img, 200, 0, imaging.Lanczos)

	var thumbnailBuffer bytes.Buffer
	err = imaging.Encode(&thumbnailBuffer, thumbnail, imaging.JPEG)
	if err != nil {
		return nil, err
	}

	return thumbnailBuffer.Bytes(), nil
}

// ListReceipts returns the receipts of one expense. The viewer must be able
// to see the expense itself.
func ListReceipts(ctx context.Context, viewer *User, expenseId int) ([]*Receipt, error) {
	if _, err := GetScopedExpense(ctx, viewer, expenseId); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var results []*Receipt
	err := db.WithContext(ctx).
		Where("expense_id = ?", expenseId).
		Order("id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	for _, receipt := range results {
		receipt.PrepareGive()
	}
	return results, nil
}
