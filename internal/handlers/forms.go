package handlers

import (
	"mime"
	"net/http"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
)

// form fields that carry booleans
var boolFields = map[string]bool{
	"isGymMember": true,
	"blocked":     true,
	"isVeg":       true,
	"isExpired":   true,
}

// form fields that are always lists
var listFields = map[string]bool{
	"images": true,
	"tags":   true,
}

// readForm accepts either a JSON object or a multipart form. Multipart
// values become strings (or string lists when repeated) and the files of
// fileField are returned in submission order.
func (h *Handler) readForm(w http.ResponseWriter, r *http.Request, fileField string) (map[string]interface{}, []domain.FileUpload, bool) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		fields := map[string]interface{}{}
		if err := decodeJSON(r, &fields); err != nil {
			h.fail(w, r, err, "invalid request body")
			return nil, nil, false
		}
		return fields, nil, true
	}

	files, ok := h.formFiles(w, r, fileField)
	if !ok {
		return nil, nil, false
	}
	fields := make(map[string]interface{}, len(r.MultipartForm.Value))
	for key, values := range r.MultipartForm.Value {
		switch {
		case len(values) == 0:
		case listFields[key]:
			fields[key] = values
		case boolFields[key]:
			fields[key] = values[0] == "true" || values[0] == "on"
		case len(values) == 1:
			fields[key] = values[0]
		default:
			fields[key] = values
		}
	}
	return fields, files, true
}
