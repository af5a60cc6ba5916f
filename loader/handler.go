package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"taja/parsers"
	"taja/render"
)

const maxImportBytes = 32 << 20

// ImportAgentsHandler loads the uploaded "file" as an agent CSV.
func ImportAgentsHandler(db *sqlx.DB) http.HandlerFunc {
	return importHandler(db, "agents", LoadAgents)
}

// ImportShopsHandler loads the uploaded "file" as a shop CSV.
func ImportShopsHandler(db *sqlx.DB) http.HandlerFunc {
	return importHandler(db, "shops", LoadShops)
}

func importHandler(db *sqlx.DB, kind string, load func(context.Context, *sqlx.DB, io.Reader) (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		zap.S().Infof("HTTP request received: importing %s...", kind)

		r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
		if err := r.ParseMultipartForm(maxImportBytes); err != nil {
			render.Invalid(w, render.ValidationErrors{"file": {"Upload a CSV file as multipart form data."}})
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			render.Invalid(w, render.ValidationErrors{"file": {"No file was submitted."}})
			return
		}
		defer file.Close()

		n, err := load(r.Context(), db, file)
		if errors.Is(err, parsers.ErrInvalidCSV) {
			zap.S().Infof("import of %s rejected: %v", kind, err)
			render.Invalid(w, render.ValidationErrors{"file": {err.Error()}})
			return
		}
		if err != nil {
			render.ServerError(w, r, fmt.Errorf("import of %s: %w", kind, err))
			return
		}
		render.JSON(w, http.StatusOK, map[string]int{"imported": n})
	}
}
