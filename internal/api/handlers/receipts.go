package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/welthhq/welth/internal/api/middleware"
	"github.com/welthhq/welth/internal/archive"
	"github.com/welthhq/welth/internal/scan"
)

// 5 MB cap on uploaded receipt images.
const maxReceiptBytes = 5 << 20

// ReceiptsHandler handles receipt scanning. The archive is optional; with
// no bucket configured scans still work, the image just isn't retained.
type ReceiptsHandler struct {
	scanner scan.ReceiptScanner
	archive *archive.Archive
	log     zerolog.Logger
}

// NewReceiptsHandler creates the receipts handler.
func NewReceiptsHandler(scanner scan.ReceiptScanner, arch *archive.Archive, log zerolog.Logger) *ReceiptsHandler {
	return &ReceiptsHandler{scanner: scanner, archive: arch, log: log}
}

// Scan handles POST /api/receipts/scan. It accepts a multipart form with a
// "file" part (or a raw image body) and returns the extracted fields for
// the client to prefill a transaction draft. Nothing is persisted to the
// ledger here.
func (h *ReceiptsHandler) Scan(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}

	image, contentType, ok := readImage(w, r)
	if !ok {
		return
	}

	receipt, err := h.scanner.ScanReceipt(r.Context(), image, contentType)
	if err != nil {
		h.log.Error().Err(err).Msg("Receipt scan failed")
		middleware.WriteDomainError(w, err)
		return
	}

	var archivedURI string
	if h.archive != nil {
		uri, err := h.archive.Store(r.Context(), userID.String(), image, contentType)
		if err != nil {
			// Archival is best-effort; the scan result is still useful.
			h.log.Warn().Err(err).Msg("Failed to archive receipt image")
		} else {
			archivedURI = uri
		}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"amount":        receipt.Amount,
		"date":          receipt.Date,
		"description":   receipt.Description,
		"merchant_name": receipt.MerchantName,
		"category":      receipt.Category,
		"receipt_url":   archivedURI,
	})
}

// ListArchived handles GET /api/receipts: the caller's archived images.
func (h *ReceiptsHandler) ListArchived(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}
	if h.archive == nil {
		middleware.WriteJSON(w, http.StatusOK, map[string]any{"receipts": []archive.Object{}, "count": 0})
		return
	}

	objects, err := h.archive.List(r.Context(), userID.String())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list archived receipts")
		middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if objects == nil {
		objects = []archive.Object{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"receipts": objects,
		"count":    len(objects),
	})
}

func readImage(w http.ResponseWriter, r *http.Request) (data []byte, contentType string, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxReceiptBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Multipart form must include a file part")
			return nil, "", false
		}
		defer file.Close()

		data, err = io.ReadAll(file)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Could not read uploaded file")
			return nil, "", false
		}
		contentType = header.Header.Get("Content-Type")
	} else {
		var err error
		data, err = io.ReadAll(r.Body)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Could not read request body")
			return nil, "", false
		}
		contentType = r.Header.Get("Content-Type")
	}

	if len(data) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Image is required")
		return nil, "", false
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return data, contentType, true
}
