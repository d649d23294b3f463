package utils_test

import (
	"errors"
	"mime/multipart"
	"net/textproto"
	"testing"
	"time"

	"BillboardAnalyzer/pkg/utils"
)

func fileHeader(contentType string, size int64) *multipart.FileHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Type", contentType)
	return &multipart.FileHeader{Filename: "board.jpg", Header: h, Size: size}
}

func TestValidateJPEGFile(t *testing.T) {
	u := utils.New()

	tests := []struct {
		name string
		file *multipart.FileHeader
		want error
	}{
		{"jpeg", fileHeader("image/jpeg", 1024), nil},
		{"jpeg with params", fileHeader("image/JPEG; charset=binary", 1024), nil},
		{"exactly at limit", fileHeader("image/jpeg", utils.MaxImageSize), nil},
		{"nil file", nil, utils.ErrNoFile},
		{"png", fileHeader("image/png", 1024), utils.ErrNotJPEG},
		{"text", fileHeader("text/plain", 10), utils.ErrNotJPEG},
		{"too large", fileHeader("image/jpeg", utils.MaxImageSize+1), utils.ErrFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := u.ValidateJPEGFile(tt.file)
			if !errors.Is(err, tt.want) {
				t.Fatalf("ValidateJPEGFile() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewULIDFromTimestamp_SortsByTime(t *testing.T) {
	u := utils.New()
	earlier, err := u.NewULIDFromTimestamp(time.Unix(1_700_000_000, 0))
	if err != nil {
		t.Fatal(err)
	}
	later, err := u.NewULIDFromTimestamp(time.Unix(1_700_000_100, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(earlier) != 26 || earlier >= later {
		t.Fatalf("expected lexically ordered ULIDs, got %q and %q", earlier, later)
	}
}
