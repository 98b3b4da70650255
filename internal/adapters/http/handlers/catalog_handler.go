package handlers

import (
	"io"
	"strconv"

	"school-library/internal/adapters/persistence/models"
	"school-library/internal/adapters/persistence/repositories"
	"school-library/internal/core/domain"
	"school-library/internal/core/services"
	"school-library/internal/pkg/pagination"
	"school-library/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// CatalogHandler handles public catalog browsing and staff item management
type CatalogHandler struct {
	catalogService *services.CatalogService
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalogService *services.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService}
}

// List browses the catalog
// @Summary Browse catalog
// @Description Signed-in callers also receive the ids of items they currently hold
// @Tags Catalog
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Param search query string false "Title, author or ISBN"
// @Param category query string false "Category"
// @Param author query string false "Author"
// @Param status query string false "available or borrowed"
// @Param year_from query int false "Earliest publication year"
// @Param year_to query int false "Latest publication year"
// @Param sort query string false "title, author, year or newest"
// @Success 200 {object} response.Response
// @Router /catalog [get]
func (h *CatalogHandler) List(c *fiber.Ctx) error {
	params := pagination.GetParams(c)
	filter := repositories.ItemFilter{
		Search:    c.Query("search"),
		Category:  c.Query("category"),
		Author:    c.Query("author"),
		Available: services.ItemStatus(c.Query("status")),
		YearFrom:  c.QueryInt("year_from"),
		YearTo:    c.QueryInt("year_to"),
		Sort:      c.Query("sort"),
	}

	items, total, err := h.catalogService.List(c.UserContext(), filter, params.Offset, params.Limit)
	if err != nil {
		return fail(c, err, "Failed to list catalog")
	}

	result := fiber.Map{
		"items": pagination.NewResponse(items, params, total),
	}
	if actor, err := actorFrom(c); err == nil {
		held, err := h.catalogService.HeldItemIDs(c.UserContext(), actor)
		if err != nil {
			return fail(c, err, "Failed to list catalog")
		}
		result["held_item_ids"] = held
	}

	return response.Success(c, "Catalog retrieved successfully", result)
}

// Categories lists the distinct item categories
// @Summary List categories
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Response
// @Router /catalog/categories [get]
func (h *CatalogHandler) Categories(c *fiber.Ctx) error {
	categories, err := h.catalogService.Categories(c.UserContext())
	if err != nil {
		return fail(c, err, "Failed to list categories")
	}
	return response.Success(c, "Categories retrieved successfully", categories)
}

// Get returns one catalog item
// @Summary Get item
// @Tags Catalog
// @Produce json
// @Param id path int true "Item ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /catalog/{id} [get]
func (h *CatalogHandler) Get(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid item ID")
	}

	item, err := h.catalogService.Get(c.UserContext(), id)
	if err != nil {
		return fail(c, err, "Failed to get item")
	}
	return response.Success(c, "Item retrieved successfully", item)
}

// Create adds a catalog item. Accepts JSON or a multipart form with
// optional content (PDF) and cover (image) files.
// @Summary Create item
// @Tags Items
// @Accept json,multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param body body services.ItemInput true "Item fields"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /items [post]
func (h *CatalogHandler) Create(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}

	input, err := itemInput(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	item, err := h.catalogService.Create(c.UserContext(), actor, input)
	if err != nil {
		return fail(c, err, "Failed to create item")
	}

	item, err = h.attachUploads(c, actor, item)
	if err != nil {
		return fail(c, err, "Item created but the upload failed")
	}
	return response.Created(c, "Item created successfully", item)
}

// Update changes a catalog item
// @Summary Update item
// @Tags Items
// @Accept json,multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path int true "Item ID"
// @Param body body services.ItemInput true "Item fields"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /items/{id} [put]
func (h *CatalogHandler) Update(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid item ID")
	}

	input, err := itemInput(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	item, err := h.catalogService.Update(c.UserContext(), actor, id, input)
	if err != nil {
		return fail(c, err, "Failed to update item")
	}

	item, err = h.attachUploads(c, actor, item)
	if err != nil {
		return fail(c, err, "Item updated but the upload failed")
	}
	return response.Success(c, "Item updated successfully", item)
}

// Delete removes a catalog item
// @Summary Delete item
// @Description Rejected while the item is on loan; active reservations are cancelled
// @Tags Items
// @Produce json
// @Security BearerAuth
// @Param id path int true "Item ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /items/{id} [delete]
func (h *CatalogHandler) Delete(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid item ID")
	}

	if err := h.catalogService.Delete(c.UserContext(), actor, id); err != nil {
		return fail(c, err, "Failed to delete item")
	}
	return response.Success(c, "Item deleted successfully", nil)
}

// itemInput reads item fields from JSON or from multipart form values
func itemInput(c *fiber.Ctx) (*services.ItemInput, error) {
	input := &services.ItemInput{}
	if _, err := c.MultipartForm(); err != nil {
		if err := c.BodyParser(input); err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		return input, nil
	}

	formString := func(key string) *string {
		if v := c.FormValue(key); v != "" {
			return &v
		}
		return nil
	}
	input.Title = formString("title")
	input.Author = formString("author")
	input.ISBN = formString("isbn")
	input.Category = formString("category")
	input.Summary = formString("summary")
	if v := c.FormValue("publication_year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "publication_year must be a number")
		}
		input.PublicationYear = &year
	}
	return input, nil
}

// attachUploads stores the optional "content" and "cover" form files
func (h *CatalogHandler) attachUploads(c *fiber.Ctx, actor domain.Actor, item *models.Item) (*models.Item, error) {
	uploads := []struct {
		field  string
		attach func(name string, r io.Reader) (*models.Item, error)
	}{
		{"content", func(name string, r io.Reader) (*models.Item, error) {
			return h.catalogService.AttachContent(c.UserContext(), actor, item.ID, name, r)
		}},
		{"cover", func(name string, r io.Reader) (*models.Item, error) {
			return h.catalogService.AttachCover(c.UserContext(), actor, item.ID, name, r)
		}},
	}

	for _, u := range uploads {
		file, err := c.FormFile(u.field)
		if err != nil {
			continue
		}
		f, err := file.Open()
		if err != nil {
			return nil, err
		}
		updated, err := u.attach(file.Filename, f)
		f.Close()
		if err != nil {
			return nil, err
		}
		item = updated
	}
	return item, nil
}
