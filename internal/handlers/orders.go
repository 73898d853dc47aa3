package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/judyrop/storefront/internal/auth"
	"github.com/judyrop/storefront/internal/orders"
	"github.com/judyrop/storefront/internal/pricing"
	"github.com/judyrop/storefront/models"
)

type OrderItemView struct {
	ProductID   uint            `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type OrderView struct {
	ID            uint               `json:"id"`
	Status        models.OrderStatus `json:"status"`
	Total         decimal.Decimal    `json:"total"`
	TotalDisplay  string             `json:"total_display"`
	FullName      string             `json:"full_name"`
	Email         string             `json:"email"`
	Phone         string             `json:"phone"`
	Address       string             `json:"address"`
	City          string             `json:"city"`
	PostalCode    string             `json:"postal_code"`
	PaymentMethod string             `json:"payment_method"`
	Paid          bool               `json:"paid"`
	PaidAt        *time.Time         `json:"paid_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	Items         []OrderItemView    `json:"items"`
}

func newOrderView(o *models.Order) OrderView {
	v := OrderView{
		ID:            o.ID,
		Status:        o.Status,
		Total:         o.Total,
		TotalDisplay:  pricing.FormatAmount(o.Total),
		FullName:      o.FullName,
		Email:         o.Email,
		Phone:         o.Phone,
		Address:       o.Address,
		City:          o.City,
		PostalCode:    o.PostalCode,
		PaymentMethod: o.PaymentMethod,
		Paid:          o.Paid,
		PaidAt:        o.PaidAt,
		CreatedAt:     o.CreatedAt,
		Items:         make([]OrderItemView, 0, len(o.Items)),
	}
	for _, item := range o.Items {
		v.Items = append(v.Items, OrderItemView{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
		})
	}
	return v
}

type OrderListResponse struct {
	Orders []OrderView `json:"orders"`
}

type OrdersHandler struct {
	orders *orders.Service
	log    *logrus.Logger
}

func NewOrdersHandler(svc *orders.Service, logger *logrus.Logger) *OrdersHandler {
	return &OrdersHandler{orders: svc, log: logger}
}

func (h *OrdersHandler) RegisterRoutes(router gin.IRouter) {
	group := router.Group("/orders", auth.RequireUser())
	{
		group.GET("", h.ListOrders)
		group.GET("/:id", h.GetOrder)
	}
}

func (h *OrdersHandler) ListOrders(c *gin.Context) {
	list, err := h.orders.List(c.Request.Context(), auth.Principal(c).UserID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	resp := OrderListResponse{Orders: make([]OrderView, 0, len(list))}
	for i := range list {
		resp.Orders = append(resp.Orders, newOrderView(&list[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *OrdersHandler) GetOrder(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	order, err := h.orders.Get(c.Request.Context(), auth.Principal(c).UserID, id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, newOrderView(order))
}
