package service

import (
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"
	"shoppinglist/pkg/domain/model"
)

var ErrUploadFailed = errors.New("failed to store uploaded attachment")

type Event interface {
	Type() string
}

type EventDispatcher interface {
	Dispatch(event Event) error
}

// NewItemInput carries the raw form fields of a create request. Quantity and
// price arrive as text and are coerced; uncoercible values are rejected with
// model.ErrInvalidInput.
type NewItemInput struct {
	ID          string
	Name        string
	Quantity    string
	Description string
	Price       string
}

type ShoppingListService interface {
	List() ([]model.Item, error)
	AddItem(input NewItemInput, upload *model.Upload) (*model.Item, error)
	UpdateItem(id string, patch model.ItemPatch, upload *model.Upload) (*model.Item, error)
	RemoveItem(id string) error
}

func NewShoppingListService(repo model.ItemRepository, attachments model.AttachmentStore, dispatcher EventDispatcher) ShoppingListService {
	return &shoppingListService{
		repo:        repo,
		attachments: attachments,
		dispatcher:  dispatcher,
	}
}

type shoppingListService struct {
	// mu serializes every load-compute-replace cycle on the document; the
	// persistence layer has no compare-and-swap, so interleaved writers
	// would silently lose updates.
	mu          sync.RWMutex
	repo        model.ItemRepository
	attachments model.AttachmentStore
	dispatcher  EventDispatcher
}

func (s *shoppingListService) List() ([]model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo.LoadAll()
}

func (s *shoppingListService) AddItem(input NewItemInput, upload *model.Upload) (*model.Item, error) {
	quantity, err := model.ParseQuantity(input.Quantity)
	if err != nil {
		return nil, err
	}
	price, err := model.ParsePrice(input.Price)
	if err != nil {
		return nil, err
	}

	ref, err := s.saveUpload(upload)
	if err != nil {
		return nil, err
	}

	item := model.Item{
		ID:            model.ItemID(input.ID),
		Name:          input.Name,
		Quantity:      quantity,
		Description:   input.Description,
		Price:         price,
		AttachmentRef: ref,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.repo.LoadAll()
	if err != nil {
		s.discardUpload(item.ID, ref)
		return nil, err
	}

	if findIndex(items, input.ID) >= 0 {
		s.discardUpload(item.ID, ref)
		return nil, model.ErrDuplicateID
	}

	if err := s.repo.ReplaceAll(append(items, item)); err != nil {
		s.discardUpload(item.ID, ref)
		return nil, err
	}

	_ = s.dispatcher.Dispatch(model.ItemCreated{ItemID: item.ID, Name: item.Name})
	return &item, nil
}

func (s *shoppingListService) UpdateItem(id string, patch model.ItemPatch, upload *model.Upload) (*model.Item, error) {
	ref, err := s.saveUpload(upload)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.repo.LoadAll()
	if err != nil {
		s.discardUpload(model.ItemID(id), ref)
		return nil, err
	}

	index := findIndex(items, id)
	if index < 0 {
		s.discardUpload(model.ItemID(id), ref)
		return nil, model.ErrItemNotFound
	}

	previousRef := items[index].AttachmentRef
	merged := patch.Apply(items[index])
	if ref != nil {
		merged.AttachmentRef = ref
	}
	items[index] = merged

	if err := s.repo.ReplaceAll(items); err != nil {
		s.discardUpload(merged.ID, ref)
		return nil, err
	}

	if ref != nil && previousRef != nil {
		s.removeAttachment(merged.ID, *previousRef)
	}
	_ = s.dispatcher.Dispatch(model.ItemUpdated{ItemID: merged.ID})
	return &merged, nil
}

func (s *shoppingListService) RemoveItem(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.repo.LoadAll()
	if err != nil {
		return err
	}

	index := findIndex(items, id)
	if index < 0 {
		return model.ErrItemNotFound
	}

	removed := items[index]
	if err := s.repo.ReplaceAll(append(items[:index], items[index+1:]...)); err != nil {
		return err
	}

	if removed.AttachmentRef != nil {
		s.removeAttachment(removed.ID, *removed.AttachmentRef)
	}
	_ = s.dispatcher.Dispatch(model.ItemDeleted{ItemID: removed.ID})
	return nil
}

func (s *shoppingListService) saveUpload(upload *model.Upload) (*string, error) {
	if upload == nil {
		return nil, nil
	}
	ref, err := s.attachments.Save(upload)
	if err != nil {
		log.WithError(err).WithField("filename", upload.Name).Error("failed to store uploaded attachment")
		return nil, ErrUploadFailed
	}
	return &ref, nil
}

// discardUpload removes an attachment that was saved for an operation which
// then failed, so the store does not leak unreferenced files.
func (s *shoppingListService) discardUpload(id model.ItemID, ref *string) {
	if ref == nil {
		return
	}
	s.removeAttachment(id, *ref)
}

// removeAttachment is best-effort: a failed delete is logged and never fails
// the enclosing operation.
func (s *shoppingListService) removeAttachment(id model.ItemID, ref string) {
	if err := s.attachments.Delete(ref); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"itemId": id,
			"ref":    ref,
		}).Warn("failed to remove orphaned attachment")
		return
	}
	_ = s.dispatcher.Dispatch(model.AttachmentOrphaned{ItemID: id, Ref: ref})
}

// findIndex compares ids by string form regardless of how they were stored.
func findIndex(items []model.Item, id string) int {
	for i, item := range items {
		if string(item.ID) == id {
			return i
		}
	}
	return -1
}
