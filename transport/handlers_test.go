package transport

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoppinglist/pkg/domain/model"
	"shoppinglist/pkg/domain/service"
	"shoppinglist/pkg/infrastructure/event"
	"shoppinglist/pkg/infrastructure/storage"
	"shoppinglist/pkg/infrastructure/uploads"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()

	repo, err := storage.NewFileRepository(filepath.Join(dir, "data", "shopping-list.json"))
	require.NoError(t, err)
	attachments, err := uploads.NewDiskStore(filepath.Join(dir, "uploads"))
	require.NoError(t, err)

	svc := service.NewShoppingListService(repo, attachments, event.NewLogDispatcher())
	server := httptest.NewServer(Router(svc, attachments))
	t.Cleanup(server.Close)
	return server
}

// multipartBody builds a form with the given fields and, when image is
// non-empty, an image file part carrying it.
func multipartBody(t *testing.T, fields map[string]string, filename, image string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for field, value := range fields {
		require.NoError(t, writer.WriteField(field, value))
	}
	if image != "" {
		part, err := writer.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(image))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func doRequest(t *testing.T, method, url string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeItem(t *testing.T, resp *http.Response) model.Item {
	t.Helper()
	defer resp.Body.Close()
	var item model.Item
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&item))
	return item
}

func decodeMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload["message"]
}

func createItem(t *testing.T, server *httptest.Server, fields map[string]string, filename, image string) model.Item {
	t.Helper()
	body, contentType := multipartBody(t, fields, filename, image)
	resp := doRequest(t, http.MethodPost, server.URL+"/shopping-list", body, contentType)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeItem(t, resp)
}

func milkFields() map[string]string {
	return map[string]string{
		"id":       "1",
		"name":     "Milk",
		"quantity": "2",
		"price":    "3.5",
	}
}

func TestCreateAndList(t *testing.T) {
	server := newTestServer(t)

	item := createItem(t, server, milkFields(), "", "")
	assert.Equal(t, model.ItemID("1"), item.ID)
	assert.Equal(t, model.Quantity(2), item.Quantity)
	assert.Nil(t, item.AttachmentRef)

	resp, err := http.Get(server.URL + "/shopping-list")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var listed []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "1", listed[0]["id"])
	assert.Equal(t, "Milk", listed[0]["name"])
	assert.Equal(t, 2.0, listed[0]["quantity"])
	assert.Equal(t, 3.5, listed[0]["price"])

	// The field is present and explicitly null when no image was uploaded.
	ref, present := listed[0]["attachmentRef"]
	assert.True(t, present)
	assert.Nil(t, ref)
}

func TestListEmpty(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/shopping-list")
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestCreateWithImage(t *testing.T) {
	server := newTestServer(t)

	item := createItem(t, server, milkFields(), "milk.png", "png bytes")
	require.NotNil(t, item.AttachmentRef)
	assert.True(t, strings.HasPrefix(*item.AttachmentRef, "uploads/image-"))
	assert.True(t, strings.HasSuffix(*item.AttachmentRef, ".png"))

	resp, err := http.Get(server.URL + "/" + *item.AttachmentRef)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "png bytes", string(data))
}

func TestCreateDuplicateID(t *testing.T) {
	server := newTestServer(t)
	createItem(t, server, milkFields(), "", "")

	body, contentType := multipartBody(t, milkFields(), "", "")
	resp := doRequest(t, http.MethodPost, server.URL+"/shopping-list", body, contentType)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Item with ID 1 already exists", decodeMessage(t, resp))
}

func TestCreateInvalidQuantity(t *testing.T) {
	server := newTestServer(t)

	fields := milkFields()
	fields["quantity"] = "plenty"
	body, contentType := multipartBody(t, fields, "", "")
	resp := doRequest(t, http.MethodPost, server.URL+"/shopping-list", body, contentType)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid data format", decodeMessage(t, resp))
}

func TestPatchWithJSONBody(t *testing.T) {
	server := newTestServer(t)
	createItem(t, server, milkFields(), "", "")

	resp := doRequest(t, http.MethodPatch, server.URL+"/shopping-list/1",
		strings.NewReader(`{"quantity": 5}`), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	item := decodeItem(t, resp)
	assert.Equal(t, model.Quantity(5), item.Quantity)
	assert.Equal(t, "Milk", item.Name)
	assert.Equal(t, model.Price(3.5), item.Price)
}

func TestPatchCoercesNumericStrings(t *testing.T) {
	server := newTestServer(t)
	createItem(t, server, milkFields(), "", "")

	resp := doRequest(t, http.MethodPatch, server.URL+"/shopping-list/1",
		strings.NewReader(`{"quantity": "7", "price": "9.99"}`), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	item := decodeItem(t, resp)
	assert.Equal(t, model.Quantity(7), item.Quantity)
	assert.Equal(t, model.Price(9.99), item.Price)
}

func TestPutReplacesImage(t *testing.T) {
	server := newTestServer(t)
	created := createItem(t, server, milkFields(), "old.png", "old image")
	oldRef := *created.AttachmentRef

	body, contentType := multipartBody(t, map[string]string{"name": "Oat Milk"}, "new.png", "new image")
	resp := doRequest(t, http.MethodPut, server.URL+"/shopping-list/1", body, contentType)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	item := decodeItem(t, resp)
	assert.Equal(t, "Oat Milk", item.Name)
	assert.Equal(t, model.Quantity(2), item.Quantity)
	require.NotNil(t, item.AttachmentRef)
	assert.NotEqual(t, oldRef, *item.AttachmentRef)

	// The new image is servable, the replaced one is gone.
	resp, err := http.Get(server.URL + "/" + *item.AttachmentRef)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/" + oldRef)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPatchUnknownID(t *testing.T) {
	server := newTestServer(t)

	resp := doRequest(t, http.MethodPatch, server.URL+"/shopping-list/404",
		strings.NewReader(`{"quantity": 5}`), "application/json")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Item not found", decodeMessage(t, resp))
}

func TestPatchInvalidJSON(t *testing.T) {
	server := newTestServer(t)
	createItem(t, server, milkFields(), "", "")

	resp := doRequest(t, http.MethodPatch, server.URL+"/shopping-list/1",
		strings.NewReader(`{"quantity":`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid JSON input", decodeMessage(t, resp))
}

func TestDeleteItem(t *testing.T) {
	server := newTestServer(t)
	created := createItem(t, server, milkFields(), "milk.png", "png bytes")

	resp := doRequest(t, http.MethodDelete, server.URL+"/shopping-list/1", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Item deleted", decodeMessage(t, resp))

	listResp, err := http.Get(server.URL + "/shopping-list")
	require.NoError(t, err)
	defer listResp.Body.Close()
	data, err := io.ReadAll(listResp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))

	// The item's attachment went with it.
	imageResp, err := http.Get(server.URL + "/" + *created.AttachmentRef)
	require.NoError(t, err)
	imageResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, imageResp.StatusCode)
}

func TestDeleteUnknownID(t *testing.T) {
	server := newTestServer(t)

	resp := doRequest(t, http.MethodDelete, server.URL+"/shopping-list/404", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Item not found", decodeMessage(t, resp))
}

func TestUnknownRoute(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/groceries")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Route not found", decodeMessage(t, resp))
}

func TestMissingAttachment(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/uploads/nothing-here.png")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Attachment not found", decodeMessage(t, resp))
}
