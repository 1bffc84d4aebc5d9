package spapi

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/erp/sellersync/internal/domain/marketplace"
	"github.com/erp/sellersync/internal/domain/shared"
	"go.uber.org/zap"
)

const (
	reportsBasePath = "/reports/2021-06-30"
	maxDocumentSize = 512 * 1024 * 1024
	maxReasonLength = 1024
)

var (
	duplicateOfPattern   = regexp.MustCompile(`(?i)duplicate\s+of(?:\s+report(?:\s*id)?)?[:\s]+["']?([A-Za-z0-9-]+)`)
	reportIDFieldPattern = regexp.MustCompile(`"reportId"\s*:\s*"([A-Za-z0-9-]+)"`)
	gzipMagic            = []byte{0x1f, 0x8b}
)

type createReportRequest struct {
	ReportType     string   `json:"reportType"`
	MarketplaceIDs []string `json:"marketplaceIds"`
	DataStartTime  string   `json:"dataStartTime,omitempty"`
	DataEndTime    string   `json:"dataEndTime,omitempty"`
}

type createReportResponse struct {
	ReportID string `json:"reportId"`
}

type reportResponse struct {
	ReportID         string `json:"reportId"`
	ReportType       string `json:"reportType"`
	ProcessingStatus string `json:"processingStatus"`
	ReportDocumentID string `json:"reportDocumentId"`
}

type reportDocumentResponse struct {
	ReportDocumentID     string `json:"reportDocumentId"`
	URL                  string `json:"url"`
	CompressionAlgorithm string `json:"compressionAlgorithm"`
}

// CreateReport requests a report over window. When the vendor rejects the
// request as a duplicate of a report already in flight, the id of that
// report is returned instead.
func (c *Client) CreateReport(ctx context.Context, reportType string, window shared.DateRange) (string, error) {
	req := createReportRequest{
		ReportType:     reportType,
		MarketplaceIDs: []string{c.config.MarketplaceID},
	}
	if !window.Start.IsZero() {
		req.DataStartTime = window.Start.UTC().Format(time.RFC3339)
	}
	if !window.End.IsZero() {
		req.DataEndTime = window.End.UTC().Format(time.RFC3339)
	}

	var resp createReportResponse
	err := c.doJSON(ctx, "createReport", http.MethodPost, reportsBasePath+"/reports", nil, req, &resp)
	if err != nil {
		if id, ok := duplicateReportID(err); ok {
			c.logger.Info("reusing in-flight duplicate report",
				zap.String("report_type", reportType),
				zap.String("report_id", id))
			return id, nil
		}
		return "", err
	}
	if resp.ReportID == "" {
		return "", fmt.Errorf("%w: createReport returned no reportId", marketplace.ErrInvalidResponse)
	}
	return resp.ReportID, nil
}

// duplicateReportID extracts the existing report id from a duplicate-request
// rejection.
func duplicateReportID(err error) (string, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return "", false
	}
	if !errors.Is(apiErr, marketplace.ErrDuplicateReport) && !strings.Contains(strings.ToLower(apiErr.Body), "duplicate") {
		return "", false
	}
	return ExtractDuplicateReportID(apiErr.Body)
}

// ExtractDuplicateReportID finds the id of the original report in a
// duplicate rejection message such as "duplicate of: abc-123".
func ExtractDuplicateReportID(body string) (string, bool) {
	if m := duplicateOfPattern.FindStringSubmatch(body); len(m) == 2 {
		return m[1], true
	}
	if m := reportIDFieldPattern.FindStringSubmatch(body); len(m) == 2 {
		return m[1], true
	}
	return "", false
}

// GetReport returns the processing status of a report. A failed report
// that carries a document has its error details read into FailureReason.
func (c *Client) GetReport(ctx context.Context, reportID string) (*marketplace.ReportStatusResult, error) {
	var resp reportResponse
	if err := c.doJSON(ctx, "getReport", http.MethodGet, reportsBasePath+"/reports/"+reportID, nil, nil, &resp); err != nil {
		return nil, err
	}
	result := &marketplace.ReportStatusResult{
		ReportID:   reportID,
		Status:     marketplace.ReportStatus(resp.ProcessingStatus),
		DocumentID: resp.ReportDocumentID,
	}
	if result.Status.IsFailure() && resp.ReportDocumentID != "" {
		raw, err := c.DownloadDocument(ctx, resp.ReportDocumentID)
		if err != nil {
			c.logger.Warn("failed to read report failure document",
				zap.String("report_id", reportID),
				zap.Error(err))
		} else {
			result.FailureReason = failureReason(raw)
		}
		result.DocumentID = ""
	}
	return result, nil
}

// failureReason extracts errorDetails from a failure document, falling back
// to the trimmed document text.
func failureReason(raw []byte) string {
	var doc struct {
		ErrorDetails string `json:"errorDetails"`
	}
	reason := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &doc); err == nil && doc.ErrorDetails != "" {
		reason = doc.ErrorDetails
	}
	if len(reason) > maxReasonLength {
		reason = strings.ToValidUTF8(reason[:maxReasonLength], "")
	}
	return reason
}

// DownloadDocument resolves a report document and returns its
// decompressed contents.
func (c *Client) DownloadDocument(ctx context.Context, documentID string) ([]byte, error) {
	var doc reportDocumentResponse
	if err := c.doJSON(ctx, "getReportDocument", http.MethodGet, reportsBasePath+"/documents/"+documentID, nil, nil, &doc); err != nil {
		return nil, err
	}
	if doc.URL == "" {
		return nil, fmt.Errorf("%w: document %s has no url", marketplace.ErrReportNotAvailable, documentID)
	}

	// The document URL is pre-signed and must not carry the access token.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, doc.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("spapi: failed to create document request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: download document: %v", marketplace.ErrVendorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		c.observe(ctx, "downloadDocument", resp.StatusCode)
		return nil, &APIError{Operation: "downloadDocument", StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("spapi: failed to read document: %w", err)
	}
	c.observe(ctx, "downloadDocument", resp.StatusCode)

	if strings.EqualFold(doc.CompressionAlgorithm, "GZIP") || bytes.HasPrefix(data, gzipMagic) {
		return gunzip(data)
	}
	return data, nil
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: gzip header: %v", marketplace.ErrInvalidResponse, err)
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("%w: gzip body: %v", marketplace.ErrInvalidResponse, err)
	}
	return out, nil
}
