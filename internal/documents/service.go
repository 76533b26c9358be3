package documents

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/docport/gateway/internal/backend"
	"github.com/docport/gateway/pkg/logger"
)

const (
	defaultListLimit       = 50
	maxListLimit           = 200
	defaultConfidentiality = "internal"
)

var ErrNoFile = errors.New("no file provided")

// API is the backend surface the document service proxies to.
type API interface {
	ListDocuments(ctx context.Context, token string, p backend.ListParams) (*backend.DocumentList, error)
	UploadDocument(ctx context.Context, token string, file io.Reader, fileName, contentType string, fields map[string]string) (*backend.UploadResult, error)
	DeleteDocument(ctx context.Context, token, id string) error
}

// Service applies listing defaults and upload enrichment before handing
// requests to the backend.
type Service struct {
	api API
}

func NewService(api API) *Service {
	return &Service{api: api}
}

// List forwards a listing query with sane pagination defaults.
func (s *Service) List(ctx context.Context, token string, p backend.ListParams) (*backend.DocumentList, error) {
	if p.Limit <= 0 {
		p.Limit = defaultListLimit
	}
	if p.Limit > maxListLimit {
		p.Limit = maxListLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Order != "" && p.Order != "asc" && p.Order != "desc" {
		p.Order = "desc"
	}
	return s.api.ListDocuments(ctx, token, p)
}

// UploadInput is one file plus its optional metadata. Missing metadata is
// derived from the file name.
type UploadInput struct {
	Reader      io.Reader
	FileName    string
	ContentType string

	Title                string
	Department           string
	ConfidentialityLevel string
	Description          string
	Tags                 []string
}

// Upload enriches the input and forwards it as a multipart upload.
func (s *Service) Upload(ctx context.Context, token string, in UploadInput) (*backend.UploadResult, error) {
	if in.Reader == nil || in.FileName == "" {
		return nil, ErrNoFile
	}
	if in.ContentType == "" {
		in.ContentType = MimeTypeFromExtension(in.FileName)
	}
	if in.Title == "" {
		in.Title = strings.TrimSuffix(in.FileName, filepath.Ext(in.FileName))
	}
	if in.ConfidentialityLevel == "" {
		in.ConfidentialityLevel = defaultConfidentiality
	}
	if len(in.Tags) == 0 {
		in.Tags = AutoTags(in.FileName)
	}

	fields := map[string]string{
		"title":                 in.Title,
		"confidentiality_level": in.ConfidentialityLevel,
		"tags":                  strings.Join(in.Tags, ", "),
	}
	if in.Department != "" {
		fields["department"] = in.Department
	}
	if in.Description != "" {
		fields["description"] = in.Description
	}
	return s.api.UploadDocument(ctx, token, in.Reader, in.FileName, in.ContentType, fields)
}

// UploadResultError pairs a failed file with its error for batch uploads.
type UploadResultError struct {
	FileName string
	Err      error
}

// UploadAll uploads files sequentially and keeps going past individual
// failures, mirroring how batch uploads behave in the UI.
func (s *Service) UploadAll(ctx context.Context, token string, inputs []UploadInput) ([]*backend.UploadResult, []UploadResultError) {
	var (
		results []*backend.UploadResult
		failed  []UploadResultError
	)
	for _, in := range inputs {
		res, err := s.Upload(ctx, token, in)
		if err != nil {
			logger.Warnf("upload of %s failed: %v", in.FileName, err)
			failed = append(failed, UploadResultError{FileName: in.FileName, Err: err})
			continue
		}
		results = append(results, res)
	}
	return results, failed
}

// Delete removes a document.
func (s *Service) Delete(ctx context.Context, token, id string) error {
	return s.api.DeleteDocument(ctx, token, id)
}
