package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/judyrop/storefront/internal/auth"
	"github.com/judyrop/storefront/internal/cart"
	"github.com/judyrop/storefront/internal/domain"
	"github.com/judyrop/storefront/internal/pricing"
	"github.com/judyrop/storefront/models"
)

type CartItemView struct {
	ID              uint                `json:"id"`
	Product         pricing.ProductView `json:"product"`
	Quantity        int                 `json:"quantity"`
	Subtotal        decimal.Decimal     `json:"subtotal"`
	SubtotalDisplay string              `json:"subtotal_display"`
}

type CartView struct {
	ID           uint            `json:"id"`
	Items        []CartItemView  `json:"items"`
	Total        decimal.Decimal `json:"total"`
	TotalDisplay string          `json:"total_display"`
	ItemCount    int             `json:"item_count"`
}

func newCartView(c *models.Cart) CartView {
	v := CartView{
		ID:           c.ID,
		Items:        make([]CartItemView, 0, len(c.Items)),
		Total:        c.Total(),
		TotalDisplay: pricing.FormatAmount(c.Total()),
		ItemCount:    c.ItemCount(),
	}
	for i := range c.Items {
		item := &c.Items[i]
		v.Items = append(v.Items, CartItemView{
			ID:              item.ID,
			Product:         pricing.View(&item.Product),
			Quantity:        item.Quantity,
			Subtotal:        item.Subtotal(),
			SubtotalDisplay: pricing.FormatAmount(item.Subtotal()),
		})
	}
	return v
}

type AddItemRequest struct {
	ProductID uint `json:"product_id" form:"product_id" binding:"required"`
	Quantity  *int `json:"quantity" form:"quantity"`
}

type UpdateItemRequest struct {
	ItemID   uint `json:"item_id" form:"item_id" binding:"required"`
	Quantity *int `json:"quantity" form:"quantity" binding:"required"`
}

type RemoveItemRequest struct {
	ItemID uint `json:"item_id" form:"item_id" binding:"required"`
}

// CartMutationResponse answers every add, update and remove.
type CartMutationResponse struct {
	Success          bool             `json:"success"`
	Message          string           `json:"message"`
	CartTotal        *decimal.Decimal `json:"cart_total,omitempty"`
	CartTotalDisplay string           `json:"cart_total_display,omitempty"`
	CartCount        *int             `json:"cart_count,omitempty"`
	ItemSubtotal     *decimal.Decimal `json:"item_subtotal,omitempty"`
	Available        *int             `json:"available,omitempty"`
}

type CartHandler struct {
	carts *cart.Service
	log   *logrus.Logger
}

func NewCartHandler(carts *cart.Service, logger *logrus.Logger) *CartHandler {
	return &CartHandler{carts: carts, log: logger}
}

func (h *CartHandler) RegisterRoutes(router gin.IRouter) {
	group := router.Group("/cart")
	{
		group.GET("", h.GetCart)
		group.POST("/items", h.AddItem)
		group.POST("/items/update", h.UpdateItem)
		group.POST("/items/remove", h.RemoveItem)
	}
}

func (h *CartHandler) GetCart(c *gin.Context) {
	current, err := h.carts.Resolve(c.Request.Context(), auth.Principal(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, newCartView(current))
}

func (h *CartHandler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Errorf("Cart operation failed: %v", err)
	} else {
		h.log.Warnf("Cart operation rejected: %v", err)
	}
	resp := CartMutationResponse{Success: false, Message: messageFor(err)}
	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		resp.Available = &stockErr.Available
	}
	c.JSON(status, resp)
}

func (h *CartHandler) succeed(c *gin.Context, message string, sum *cart.Summary, withSubtotal bool) {
	resp := CartMutationResponse{
		Success:          true,
		Message:          message,
		CartTotal:        &sum.Total,
		CartTotalDisplay: pricing.FormatAmount(sum.Total),
		CartCount:        &sum.ItemCount,
	}
	if withSubtotal {
		resp.ItemSubtotal = &sum.ItemSubtotal
	}
	c.JSON(http.StatusOK, resp)
}

func (h *CartHandler) AddItem(c *gin.Context) {
	var req AddItemRequest
	if err := c.ShouldBind(&req); err != nil {
		h.log.Warnf("Failed to bind add-to-cart request: %v", err)
		c.JSON(http.StatusBadRequest, CartMutationResponse{Message: "Invalid request body: " + err.Error()})
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	current, err := h.carts.Resolve(c.Request.Context(), auth.Principal(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	sum, err := h.carts.AddItem(c.Request.Context(), current, req.ProductID, quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.succeed(c, "Product added to cart", sum, false)
}

func (h *CartHandler) UpdateItem(c *gin.Context) {
	var req UpdateItemRequest
	if err := c.ShouldBind(&req); err != nil {
		h.log.Warnf("Failed to bind cart update request: %v", err)
		c.JSON(http.StatusBadRequest, CartMutationResponse{Message: "Invalid request body: " + err.Error()})
		return
	}

	current, err := h.carts.Resolve(c.Request.Context(), auth.Principal(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	sum, err := h.carts.UpdateItem(c.Request.Context(), current, req.ItemID, *req.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	message := "Cart updated"
	if *req.Quantity <= 0 {
		message = "Item removed from cart"
	}
	h.succeed(c, message, sum, true)
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	var req RemoveItemRequest
	if err := c.ShouldBind(&req); err != nil {
		h.log.Warnf("Failed to bind cart remove request: %v", err)
		c.JSON(http.StatusBadRequest, CartMutationResponse{Message: "Invalid request body: " + err.Error()})
		return
	}

	current, err := h.carts.Resolve(c.Request.Context(), auth.Principal(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	sum, err := h.carts.RemoveItem(c.Request.Context(), current, req.ItemID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.succeed(c, fmt.Sprintf("Item %d removed from cart", req.ItemID), sum, false)
}
