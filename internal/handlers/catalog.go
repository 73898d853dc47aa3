package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/judyrop/storefront/internal/catalog"
	"github.com/judyrop/storefront/internal/pricing"
	"github.com/judyrop/storefront/models"
)

type CategoryView struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func categoryViews(categories []models.Category) []CategoryView {
	out := make([]CategoryView, 0, len(categories))
	for _, c := range categories {
		out = append(out, CategoryView{ID: c.ID, Name: c.Name, Description: c.Description})
	}
	return out
}

type HomeResponse struct {
	Featured   []pricing.ProductView `json:"featured"`
	Categories []CategoryView        `json:"categories"`
}

type ProductListResponse struct {
	Items      []pricing.ProductView `json:"items"`
	Page       int                   `json:"page"`
	TotalPages int                   `json:"total_pages"`
	Total      int64                 `json:"total"`
	HasNext    bool                  `json:"has_next"`
	HasPrev    bool                  `json:"has_prev"`
	Categories []CategoryView        `json:"categories"`
	Category   uint                  `json:"category,omitempty"`
	Query      string                `json:"q,omitempty"`
	Sort       string                `json:"sort"`
}

type ProductDetailResponse struct {
	Product pricing.ProductView   `json:"product"`
	Related []pricing.ProductView `json:"related"`
}

type listProductsQuery struct {
	Category string `form:"category"`
	Query    string `form:"q"`
	Sort     string `form:"sort"`
	Page     string `form:"page"`
}

type CatalogHandler struct {
	catalog       *catalog.Service
	featuredLimit int
	relatedLimit  int
	log           *logrus.Logger
}

func NewCatalogHandler(svc *catalog.Service, featuredLimit, relatedLimit int, logger *logrus.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: svc, featuredLimit: featuredLimit, relatedLimit: relatedLimit, log: logger}
}

func (h *CatalogHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/", h.Home)
	products := router.Group("/products")
	{
		products.GET("", h.ListProducts)
		products.GET("/:id", h.GetProduct)
	}
}

func (h *CatalogHandler) Home(c *gin.Context) {
	ctx := c.Request.Context()
	featured, err := h.catalog.Featured(ctx, h.featuredLimit)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	categories, err := h.catalog.Categories(ctx)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, HomeResponse{Featured: pricing.Views(featured), Categories: categoryViews(categories)})
}

func (h *CatalogHandler) ListProducts(c *gin.Context) {
	var q listProductsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "Invalid query: "+err.Error())
		return
	}

	filter := catalog.Filter{Query: strings.TrimSpace(q.Query), Sort: q.Sort}
	if q.Category != "" {
		id, err := strconv.ParseUint(q.Category, 10, 64)
		if err != nil {
			badRequest(c, "Invalid category "+strconv.Quote(q.Category))
			return
		}
		filter.CategoryID = uint(id)
	}
	// A malformed page number shows the first page.
	if n, err := strconv.Atoi(q.Page); err == nil {
		filter.Page = n
	}
	if filter.Sort == "" {
		filter.Sort = catalog.SortName
	}

	page, err := h.catalog.ListProducts(c.Request.Context(), filter)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	categories, err := h.catalog.Categories(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, ProductListResponse{
		Items:      pricing.Views(page.Items),
		Page:       page.Number,
		TotalPages: page.TotalPages,
		Total:      page.Total,
		HasNext:    page.HasNext(),
		HasPrev:    page.HasPrev(),
		Categories: categoryViews(categories),
		Category:   filter.CategoryID,
		Query:      filter.Query,
		Sort:       filter.Sort,
	})
}

func (h *CatalogHandler) GetProduct(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	product, err := h.catalog.Product(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	related, err := h.catalog.Related(c.Request.Context(), product, h.relatedLimit)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, ProductDetailResponse{Product: pricing.View(product), Related: pricing.Views(related)})
}
