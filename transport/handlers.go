package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"shoppinglist/pkg/domain/model"
	"shoppinglist/pkg/domain/service"
)

// Multipart bodies larger than this are rejected outright.
const maxUploadSize = 10 << 20

func Router(svc service.ShoppingListService, attachments model.AttachmentStore) http.Handler {
	h := &handler{service: svc, attachments: attachments}

	r := mux.NewRouter()
	r.HandleFunc("/shopping-list", h.list).Methods(http.MethodGet)
	r.HandleFunc("/shopping-list", h.create).Methods(http.MethodPost)
	r.HandleFunc("/shopping-list/{id}", h.update).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/shopping-list/{id}", h.remove).Methods(http.MethodDelete)
	r.HandleFunc("/uploads/{filename}", h.attachment).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(routeNotFound)

	return logMiddleware(r)
}

type handler struct {
	service     service.ShoppingListService
	attachments model.AttachmentStore
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List()
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid data format")
		return
	}

	upload, err := formUpload(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid data format")
		return
	}

	input := service.NewItemInput{
		ID:          r.FormValue("id"),
		Name:        r.FormValue("name"),
		Quantity:    r.FormValue("quantity"),
		Description: r.FormValue("description"),
		Price:       r.FormValue("price"),
	}

	item, err := h.service.AddItem(input, upload)
	if errors.Is(err, model.ErrDuplicateID) {
		writeMessage(w, http.StatusConflict, fmt.Sprintf("Item with ID %s already exists", input.ID))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *handler) update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var patch model.ItemPatch
	var upload *model.Upload

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid data format")
			return
		}

		var err error
		if patch, err = formPatch(r); err != nil {
			writeError(w, err)
			return
		}
		if upload, err = formUpload(r); err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid data format")
			return
		}
	} else {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadSize))
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid JSON input")
			return
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &patch); err != nil {
				writeMessage(w, http.StatusBadRequest, "Invalid JSON input")
				return
			}
		}
	}

	item, err := h.service.UpdateItem(id, patch, upload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *handler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveItem(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Item deleted")
}

func (h *handler) attachment(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	content, err := h.attachments.Open(filename)
	if errors.Is(err, model.ErrAttachmentNotFound) {
		writeMessage(w, http.StatusNotFound, "Attachment not found")
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	defer content.Close()

	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if _, err := io.Copy(w, content); err != nil {
		log.WithError(err).Error("write attachment response")
	}
}

// formUpload pulls the optional image file out of a parsed multipart form.
func formUpload(r *http.Request) (*model.Upload, error) {
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.Upload{Field: "image", Name: header.Filename, Content: file}, nil
}

// formPatch builds an ItemPatch from whichever fields the form carries.
func formPatch(r *http.Request) (model.ItemPatch, error) {
	var patch model.ItemPatch
	if r.MultipartForm == nil {
		return patch, nil
	}

	for field, values := range r.MultipartForm.Value {
		if len(values) == 0 {
			continue
		}
		value := values[0]

		switch field {
		case "name":
			patch.Name = &value
		case "description":
			patch.Description = &value
		case "quantity":
			quantity, err := model.ParseQuantity(value)
			if err != nil {
				return patch, err
			}
			patch.Quantity = &quantity
		case "price":
			price, err := model.ParsePrice(value)
			if err != nil {
				return patch, err
			}
			patch.Price = &price
		}
	}
	return patch, nil
}

func routeNotFound(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusNotFound, "Route not found")
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		writeMessage(w, http.StatusBadRequest, "Invalid data format")
	case errors.Is(err, model.ErrItemNotFound):
		writeMessage(w, http.StatusNotFound, "Item not found")
	case errors.Is(err, model.ErrDuplicateID):
		writeMessage(w, http.StatusConflict, "Item already exists")
	case errors.Is(err, service.ErrUploadFailed):
		writeMessage(w, http.StatusInternalServerError, "Failed to upload file")
	case errors.Is(err, model.ErrCorruptStore):
		log.WithError(err).Error("shopping list document is unreadable")
		writeMessage(w, http.StatusInternalServerError, "Failed to read shopping list")
	default:
		log.WithError(err).Error("shopping list operation failed")
		writeMessage(w, http.StatusInternalServerError, "Failed to update shopping list")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.WithError(err).Error("write response")
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func logMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.WithFields(log.Fields{
			"method":     r.Method,
			"url":        r.URL,
			"remoteAddr": r.RemoteAddr,
			"userAgent":  r.UserAgent(),
		}).Info("got a new request")
		h.ServeHTTP(w, r)
	})
}
