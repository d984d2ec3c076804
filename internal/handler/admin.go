package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/pavelanni/examfix/internal/handler/views"
	appI18n "github.com/pavelanni/examfix/internal/i18n"
	"github.com/pavelanni/examfix/internal/model"
)

const maxBankUpload = 10 << 20

// BankImporter seeds a local question bank. Only the SQLite store implements it.
type BankImporter interface {
	ImportBank(ctx context.Context, bank model.BankImport) (int, error)
	GetImportedFileHash(path string) (string, error)
	SetImportedFileHash(path, hash string) error
}

func (h *Handler) handleImportPage(w http.ResponseWriter, r *http.Request) {
	var notice *views.Notice
	if h.importer == nil {
		notice = &views.Notice{Kind: "error", Text: appI18n.T(r.Context(), "ImportUnsupported")}
	}
	render(w, r, http.StatusOK, views.ImportPage(model.UserFromContext(r.Context()), notice))
}

func (h *Handler) handleImportBank(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	fail := func(status int, text string) {
		render(w, r, status, views.ImportPage(user, &views.Notice{Kind: "error", Text: text}))
	}

	if h.importer == nil {
		fail(http.StatusNotImplemented, appI18n.T(r.Context(), "ImportUnsupported"))
		return
	}
	if err := r.ParseMultipartForm(maxBankUpload); err != nil {
		fail(http.StatusBadRequest, "file too large")
		return
	}
	file, header, err := r.FormFile("bank_file")
	if err != nil {
		fail(http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		fail(http.StatusInternalServerError, "failed to read file")
		return
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	stored, err := h.importer.GetImportedFileHash(header.Filename)
	if err != nil {
		slog.Error("failed to check import status", "error", err)
		fail(http.StatusInternalServerError, "internal error")
		return
	}
	// Same rules as the import command: a known file name is skipped unless forced.
	if r.FormValue("force") == "" {
		if stored == hash {
			render(w, r, http.StatusOK, views.ImportPage(user, &views.Notice{Kind: "info", Text: appI18n.T(r.Context(), "ImportDuplicate")}))
			return
		}
		if stored != "" {
			slog.Warn("bank file changed since last import, skipping", "filename", header.Filename)
			fail(http.StatusConflict, appI18n.Td(r.Context(), "ImportChanged", map[string]any{"File": header.Filename}))
			return
		}
	}

	var bank model.BankImport
	if err := json.Unmarshal(data, &bank); err != nil {
		fail(http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	n, err := h.importer.ImportBank(r.Context(), bank)
	if err != nil {
		slog.Error("failed to import bank", "file", header.Filename, "error", err)
		fail(http.StatusBadRequest, err.Error())
		return
	}
	if err := h.importer.SetImportedFileHash(header.Filename, hash); err != nil {
		slog.Error("failed to record import", "error", err)
	}
	if err := h.scope.LoadExams(r.Context()); err != nil {
		slog.Warn("reload exams after import", "error", err)
	}

	slog.Info("imported question bank via admin", "filename", header.Filename, "count", n)
	h.setNotice(w, views.Notice{Kind: "info", Text: appI18n.Td(r.Context(), "ImportDone", map[string]any{"Count": n})})
	h.backToDashboard(w, r)
}
