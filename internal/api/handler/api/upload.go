package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/newthinker/btviz/internal/api/response"
	"github.com/newthinker/btviz/internal/core"
)

const multipartMemory = 8 << 20

// ErrNotJSON is returned for uploads that are not JSON files.
var ErrNotJSON = errors.New("please upload a JSON file")

// openUpload returns the backtest document of a request: the first file of
// the multipart field "file", or the raw body for JSON requests.
func openUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (io.ReadCloser, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}

	mediaType := "application/json"
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return nil, core.WrapError(core.ErrFileRead, err)
		}
		mediaType = mt
	}

	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return nil, core.WrapError(core.ErrFileRead, err)
		}
		files := r.MultipartForm.File["file"]
		if len(files) == 0 {
			return nil, core.WrapError(core.ErrFileRead, errors.New(`no file in form field "file"`))
		}
		return openPart(files[0])
	case "application/json", "text/json":
		return r.Body, nil
	default:
		return nil, core.WrapError(core.ErrValidation, fmt.Errorf("%w, got %s", ErrNotJSON, mediaType))
	}
}

func openPart(fh *multipart.FileHeader) (io.ReadCloser, error) {
	isJSON := strings.EqualFold(filepath.Ext(fh.Filename), ".json")
	if ct := fh.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil && mt == "application/json" {
			isJSON = true
		}
	}
	if !isJSON {
		return nil, core.WrapError(core.ErrValidation, fmt.Errorf("%w, got %s", ErrNotJSON, fh.Filename))
	}

	f, err := fh.Open()
	if err != nil {
		return nil, core.WrapError(core.ErrFileRead, err)
	}
	return f, nil
}

// uploadFailed writes the error of a failed upload. Oversized bodies get 413.
func uploadFailed(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		response.Error(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	response.Fail(w, err)
}
