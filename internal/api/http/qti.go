package http

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-grading/internal/errs"
	"github.com/mind-engage/mindengage-grading/internal/qti"
	"github.com/mind-engage/mindengage-grading/internal/qti/export"
	"github.com/mind-engage/mindengage-grading/internal/question"
)

const maxPackage = 32 << 20

type importResp struct {
	Imported []string        `json:"imported"`
	Skipped  []qti.ItemError `json:"skipped"`
}

// POST /questions/import
// Body is a QTI 2.1 content package, either raw (application/zip) or as the
// "file" field of a multipart form. Items are stored one by one; a failed
// item is reported and does not stop the rest.
func ImportQTIHandler(store question.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pkg, err := readPackage(w, r)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		rep, err := qti.Import(pkg)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		resp := importResp{Imported: []string{}, Skipped: rep.Skipped}
		for _, q := range rep.Questions {
			if err := store.Put(r.Context(), q); err != nil {
				if errs.HTTPStatus(err) >= http.StatusInternalServerError {
					writeError(w, log, r, err)
					return
				}
				resp.Skipped = append(resp.Skipped, qti.ItemError{Href: q.ID, Error: err.Error()})
				continue
			}
			resp.Imported = append(resp.Imported, q.ID)
		}
		if resp.Skipped == nil {
			resp.Skipped = []qti.ItemError{}
		}
		log.Info("qti package imported",
			zap.Int("imported", len(resp.Imported)), zap.Int("skipped", len(resp.Skipped)))
		writeJSON(w, http.StatusCreated, resp)
	}
}

func readPackage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body := http.MaxBytesReader(w, r.Body, maxPackage)
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "multipart/form-data" {
		r.Body = body
		if err := r.ParseMultipartForm(maxPackage); err != nil {
			return nil, fmt.Errorf("%w: multipart: %v", errs.ErrInvalidInput, err)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("%w: file required", errs.ErrInvalidInput)
		}
		defer f.Close()
		b, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("%w: read upload: %v", errs.ErrInvalidInput, err)
		}
		return b, nil
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", errs.ErrInvalidInput, err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty package", errs.ErrInvalidInput)
	}
	return b, nil
}

// GET /questions/export?ids=a,b,c
// Without ids the first 500 questions of the bank are exported. Ids of
// questions that have no QTI form are listed in X-QTI-Skipped.
func ExportQTIHandler(store question.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			qs  []question.Question
			err error
		)
		if raw := strings.TrimSpace(r.URL.Query().Get("ids")); raw != "" {
			var ids []string
			for _, id := range strings.Split(raw, ",") {
				if id = strings.TrimSpace(id); id != "" {
					ids = append(ids, id)
				}
			}
			qs, err = store.GetMany(r.Context(), ids)
		} else {
			qs, err = store.List(r.Context(), question.ListOpts{Limit: 500})
		}
		if err != nil {
			writeError(w, log, r, err)
			return
		}

		pkg, skipped, err := export.BuildPackage(qs)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		if len(skipped) > 0 {
			w.Header().Set("X-QTI-Skipped", strings.Join(skipped, ","))
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", `attachment; filename="questions-qti.zip"`)
		http.ServeContent(w, r, "questions-qti.zip", time.Now(), bytes.NewReader(pkg))
	}
}
