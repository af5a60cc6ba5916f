package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// ValidationErrors maps a field name to its messages, e.g. {"name": ["This field is required."]}.
// The "detail" key carries errors that belong to no single field.
type ValidationErrors map[string][]string

func (v ValidationErrors) Add(field, msg string) {
	v[field] = append(v[field], msg)
}

func (v ValidationErrors) Empty() bool {
	return len(v) == 0
}

func (v ValidationErrors) Error() string {
	return fmt.Sprintf("%d invalid field(s)", len(v))
}

// JSON writes body with the given status.
func JSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.S().Warnf("failed to encode response: %v", err)
	}
}

// Error writes {"detail": message}.
func Error(w http.ResponseWriter, message string, status int) {
	JSON(w, status, map[string]string{"detail": message})
}

// ServerError logs err and writes a generic 500.
func ServerError(w http.ResponseWriter, r *http.Request, err error) {
	zap.S().Errorf("%s %s failed: %v", r.Method, r.URL.Path, err)
	Error(w, "Internal server error.", http.StatusInternalServerError)
}

// Invalid writes a 400 with the field error map.
func Invalid(w http.ResponseWriter, errs ValidationErrors) {
	JSON(w, http.StatusBadRequest, errs)
}

// CSV writes rows as a UTF-8 CSV attachment with a byte order mark so
// spreadsheet tools pick the right encoding.
func CSV(w http.ResponseWriter, filename string, header []string, rows [][]string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		zap.S().Warnf("failed to write csv: %v", err)
		return
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		zap.S().Warnf("failed to write csv header: %v", err)
		return
	}
	if err := cw.WriteAll(rows); err != nil {
		zap.S().Warnf("failed to write csv rows: %v", err)
	}
}
