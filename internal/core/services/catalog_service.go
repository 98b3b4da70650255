package services

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"school-library/internal/adapters/persistence/models"
	"school-library/internal/adapters/persistence/repositories"
	"school-library/internal/adapters/storage"
	"school-library/internal/core/domain"
)

// Catalog errors
var (
	ErrDuplicateISBN = errors.New("an item with this ISBN already exists")
	ErrItemOnLoan    = errors.New("item is currently on loan")
	ErrInvalidYear   = errors.New("invalid publication year")
	ErrInvalidISBN   = errors.New("ISBN must be 10 or 13 characters")
)

// CatalogService manages the item catalog
type CatalogService struct {
	repos *repositories.Repositories
	files FileStore
	now   func() time.Time
}

// NewCatalogService creates a new catalog service
func NewCatalogService(repos *repositories.Repositories, files FileStore) *CatalogService {
	return &CatalogService{repos: repos, files: files, now: time.Now}
}

// ItemInput represents item fields; nil fields are left unchanged on update
type ItemInput struct {
	Title           *string `json:"title"`
	Author          *string `json:"author"`
	ISBN            *string `json:"isbn"`
	PublicationYear *int    `json:"publication_year"`
	Category        *string `json:"category"`
	Summary         *string `json:"summary"`
}

// ItemStatus maps the catalog status filter onto availability
func ItemStatus(status string) *bool {
	var available bool
	switch strings.ToLower(status) {
	case "available":
		available = true
	case "borrowed":
		available = false
	default:
		return nil
	}
	return &available
}

// List filters the catalog. Anyone may browse.
func (s *CatalogService) List(ctx context.Context, filter repositories.ItemFilter, offset, limit int) ([]*models.Item, int64, error) {
	return s.repos.Items.List(ctx, filter, offset, limit)
}

// Categories lists the distinct categories
func (s *CatalogService) Categories(ctx context.Context) ([]string, error) {
	return s.repos.Items.Categories(ctx)
}

// Get returns one item
func (s *CatalogService) Get(ctx context.Context, id uint) (*models.Item, error) {
	item, err := s.repos.Items.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrItemNotFound)
	}
	return item, nil
}

// HeldItemIDs returns the items the actor's member currently has on loan
func (s *CatalogService) HeldItemIDs(ctx context.Context, actor domain.Actor) ([]uint, error) {
	if actor.MemberID == 0 {
		return []uint{}, nil
	}
	loans, err := s.repos.Loans.ListByMember(ctx, actor.MemberID)
	if err != nil {
		return nil, err
	}
	ids := []uint{}
	for _, l := range loans {
		if l.IsOpen() {
			ids = append(ids, l.ItemID)
		}
	}
	return ids, nil
}

// Create adds an item to the catalog. New items are available.
func (s *CatalogService) Create(ctx context.Context, actor domain.Actor, input *ItemInput) (*models.Item, error) {
	if !actor.Can(domain.CapManageCatalog) {
		return nil, domain.ErrForbidden
	}
	if input.Title == nil || input.Author == nil {
		return nil, &fieldError{field: "title and author"}
	}

	item := &models.Item{Available: true}
	if err := s.apply(ctx, item, input); err != nil {
		return nil, err
	}
	if err := s.repos.Items.Create(ctx, item); err != nil {
		return nil, err
	}

	log.Printf("📚 Item created: %q (id %d) by %s", item.Title, item.ID, actor.Username)
	return item, nil
}

// Update changes item fields
func (s *CatalogService) Update(ctx context.Context, actor domain.Actor, id uint, input *ItemInput) (*models.Item, error) {
	if !actor.Can(domain.CapManageCatalog) {
		return nil, domain.ErrForbidden
	}

	item, err := s.repos.Items.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrItemNotFound)
	}
	if err := s.apply(ctx, item, input); err != nil {
		return nil, err
	}
	if err := s.repos.Items.Update(ctx, item); err != nil {
		return nil, err
	}

	log.Printf("📚 Item updated: %d by %s", item.ID, actor.Username)
	return item, nil
}

// Delete removes an item that is not on loan and cancels its reservations.
// Loan history keeps pointing at the soft-deleted row.
func (s *CatalogService) Delete(ctx context.Context, actor domain.Actor, id uint) error {
	if !actor.Can(domain.CapManageCatalog) {
		return domain.ErrForbidden
	}

	var cancelled int64
	err := s.repos.Transaction(ctx, func(tx *repositories.Repositories) error {
		if _, err := tx.Items.GetByID(ctx, id); err != nil {
			return notFound(err, ErrItemNotFound)
		}
		open, err := tx.Loans.CountOpenByItem(ctx, id)
		if err != nil {
			return err
		}
		if open > 0 {
			return ErrItemOnLoan
		}
		cancelled, err = tx.Reservations.CancelActiveByItem(ctx, id, s.now().UTC())
		if err != nil {
			return err
		}
		return tx.Items.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	log.Printf("🗑️ Item deleted: %d by %s (%d reservations cancelled)", id, actor.Username, cancelled)
	return nil
}

// AttachContent stores a PDF as the item's digital content
func (s *CatalogService) AttachContent(ctx context.Context, actor domain.Actor, id uint, filename string, r io.Reader) (*models.Item, error) {
	return s.attach(ctx, actor, id, storage.KindContent, filename, r)
}

// AttachCover stores the item's cover image
func (s *CatalogService) AttachCover(ctx context.Context, actor domain.Actor, id uint, filename string, r io.Reader) (*models.Item, error) {
	return s.attach(ctx, actor, id, storage.KindCover, filename, r)
}

func (s *CatalogService) attach(ctx context.Context, actor domain.Actor, id uint, kind storage.Kind, filename string, r io.Reader) (*models.Item, error) {
	if !actor.Can(domain.CapManageCatalog) {
		return nil, domain.ErrForbidden
	}
	item, err := s.repos.Items.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrItemNotFound)
	}

	name, err := s.files.Save(kind, filename, r)
	if err != nil {
		return nil, err
	}

	var previous string
	if kind == storage.KindContent {
		previous, item.ContentFile = item.ContentFile, name
	} else {
		previous, item.CoverImage = item.CoverImage, name
	}
	if err := s.repos.Items.Update(ctx, item); err != nil {
		s.files.Remove(name)
		return nil, err
	}
	if err := s.files.Remove(previous); err != nil {
		log.Printf("⚠️ Failed to remove %s: %v", previous, err)
	}
	return item, nil
}

// apply validates input and copies it onto item
func (s *CatalogService) apply(ctx context.Context, item *models.Item, input *ItemInput) error {
	if input.Title != nil {
		if strings.TrimSpace(*input.Title) == "" {
			return &fieldError{field: "title"}
		}
		item.Title = strings.TrimSpace(*input.Title)
	}
	if input.Author != nil {
		if strings.TrimSpace(*input.Author) == "" {
			return &fieldError{field: "author"}
		}
		item.Author = strings.TrimSpace(*input.Author)
	}
	if input.ISBN != nil {
		isbn := normalizeISBN(*input.ISBN)
		switch {
		case isbn == "":
			item.ISBN = nil
		case len(isbn) != 10 && len(isbn) != 13:
			return ErrInvalidISBN
		default:
			exists, err := s.repos.Items.ExistsByISBN(ctx, isbn, item.ID)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateISBN
			}
			item.ISBN = &isbn
		}
	}
	if input.PublicationYear != nil {
		year := *input.PublicationYear
		if year < 0 || year > s.now().Year()+1 {
			return ErrInvalidYear
		}
		item.PublicationYear = year
	}
	if input.Category != nil {
		item.Category = strings.TrimSpace(*input.Category)
	}
	if input.Summary != nil {
		item.Summary = strings.TrimSpace(*input.Summary)
	}
	return nil
}

// normalizeISBN strips spaces and hyphens
func normalizeISBN(s string) string {
	return strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(s)))
}
