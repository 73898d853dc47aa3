package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/judyrop/storefront/internal/auth"
	"github.com/judyrop/storefront/internal/checkout"
	"github.com/judyrop/storefront/models"
)

type CheckoutFormResponse struct {
	Cart           CartView `json:"cart"`
	PaymentMethods []string `json:"payment_methods"`
	Email          string   `json:"email,omitempty"`
}

type CheckoutHandler struct {
	engine *checkout.Engine
	log    *logrus.Logger
}

func NewCheckoutHandler(engine *checkout.Engine, logger *logrus.Logger) *CheckoutHandler {
	return &CheckoutHandler{engine: engine, log: logger}
}

func (h *CheckoutHandler) RegisterRoutes(router gin.IRouter) {
	group := router.Group("/checkout", auth.RequireUser())
	{
		group.GET("", h.Form)
		group.POST("", h.PlaceOrder)
	}
}

// Form returns what the checkout page needs: the cart being ordered and the
// accepted payment methods.
func (h *CheckoutHandler) Form(c *gin.Context) {
	p := auth.Principal(c)
	current, err := h.engine.Prepare(c.Request.Context(), p)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, CheckoutFormResponse{
		Cart:           newCartView(current),
		PaymentMethods: models.PaymentMethods,
		Email:          p.Email,
	})
}

func (h *CheckoutHandler) PlaceOrder(c *gin.Context) {
	var in checkout.Input
	if err := c.ShouldBind(&in); err != nil {
		h.log.Warnf("Failed to bind checkout request: %v", err)
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	order, err := h.engine.Checkout(c.Request.Context(), auth.Principal(c), in)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	h.log.Infof("Order %d created for user %s", order.ID, order.UserID)
	c.JSON(http.StatusCreated, newOrderView(order))
}
