package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/judyrop/storefront/internal/auth"
	"github.com/judyrop/storefront/internal/config"
	"github.com/judyrop/storefront/internal/metrics"
	"github.com/judyrop/storefront/internal/session"
	"github.com/judyrop/storefront/internal/testutil"
	"github.com/judyrop/storefront/models"
)

type tokens map[string]auth.Identity

func (t tokens) Verify(_ context.Context, raw string) (*auth.Identity, error) {
	id, ok := t[raw]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return &id, nil
}

// Create router over a fresh in-memory database
func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	cfg := &config.Config{
		SessionCookie: "cart_session",
		SessionTTL:    time.Hour,
		PageSize:      12,
		FeaturedLimit: 6,
		RelatedLimit:  4,
	}
	router := SetupRouter(Deps{
		DB:       db,
		Config:   cfg,
		Log:      testutil.Logger(),
		Metrics:  metrics.New(),
		Sessions: session.NewDBStore(db, time.Hour),
		Verifier: tokens{
			"ana-token":  {Subject: "ana", Email: "ana@example.com"},
			"luis-token": {Subject: "luis", Email: "luis@example.com"},
		},
	})
	return router, db
}

type client struct {
	t      *testing.T
	router *gin.Engine
	token  string
	cookie *http.Cookie
}

func (c *client) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, _ := http.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}

	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	for _, ck := range w.Result().Cookies() {
		if ck.Name == "cart_session" {
			c.cookie = ck
		}
	}
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func checkoutForm() map[string]string {
	return map[string]string{
		"full_name":      "Ana Perez",
		"email":          "ana@example.com",
		"phone":          "+56 9 1234 5678",
		"address":        "Av. Siempre Viva 742",
		"city":           "Santiago",
		"postal_code":    "8320000",
		"payment_method": models.PaymentDebitCard,
	}
}

// ----------------------- TESTS ----------------------- //

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestBrowseCatalog(t *testing.T) {
	router, db := newTestRouter(t)
	cat := testutil.Category(t, db, "Electronics")
	phone := testutil.Product(t, db, cat, "Phone", "599990", 5)
	testutil.Product(t, db, cat, "Tablet", "1000", 5)
	require.NoError(t, db.Model(phone).Updates(map[string]interface{}{"featured": true, "previous_price": "699990"}).Error)
	c := &client{t: t, router: router}

	w := c.do("GET", "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	home := decode(t, w)
	featured := home["featured"].([]interface{})
	require.Len(t, featured, 1)
	first := featured[0].(map[string]interface{})
	assert.Equal(t, "599.990", first["price_display"])
	assert.Equal(t, true, first["has_discount"])
	assert.Equal(t, float64(14), first["discount_percent"])
	require.NotNil(t, c.cookie, "anonymous visitors get a session cookie")

	w = c.do("GET", "/products?sort=price_asc&page=abc", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode(t, w)
	items := list["items"].([]interface{})
	require.Len(t, items, 2)
	assert.Equal(t, "Tablet", items[0].(map[string]interface{})["name"])
	assert.Equal(t, float64(1), list["page"])

	w = c.do("GET", "/products?q=tab", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["items"], 1)

	w = c.do("GET", "/products?category=xyz", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = c.do("GET", fmt.Sprintf("/products/%d", phone.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode(t, w)
	assert.Equal(t, "Phone", detail["product"].(map[string]interface{})["name"])
	assert.Len(t, detail["related"], 1)

	assert.Equal(t, http.StatusNotFound, c.do("GET", "/products/9999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, c.do("GET", "/products/abc", nil).Code)
}

func TestAnonymousCart(t *testing.T) {
	router, db := newTestRouter(t)
	cat := testutil.Category(t, db, "Electronics")
	phone := testutil.Product(t, db, cat, "Phone", "1000", 3)
	c := &client{t: t, router: router}

	w := c.do("POST", "/cart/items", map[string]interface{}{"product_id": phone.ID, "quantity": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "2000", resp["cart_total"])
	assert.Equal(t, "2.000", resp["cart_total_display"])
	assert.Equal(t, float64(2), resp["cart_count"])

	// Default quantity is one.
	w = c.do("POST", "/cart/items", map[string]interface{}{"product_id": phone.ID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), decode(t, w)["cart_count"])

	w = c.do("POST", "/cart/items", map[string]interface{}{"product_id": phone.ID, "quantity": 4})
	require.Equal(t, http.StatusConflict, w.Code)
	resp = decode(t, w)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, float64(3), resp["available"])
	assert.Contains(t, resp["message"], "Only 3 units")

	w = c.do("GET", "/cart", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cart := decode(t, w)
	items := cart["items"].([]interface{})
	require.Len(t, items, 1)
	itemID := items[0].(map[string]interface{})["id"]

	w = c.do("POST", "/cart/items/update", map[string]interface{}{"item_id": itemID, "quantity": 1})
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode(t, w)
	assert.Equal(t, "1000", resp["item_subtotal"])
	assert.Equal(t, float64(1), resp["cart_count"])

	// Another shopper cannot touch this cart's items.
	stranger := &client{t: t, router: router}
	w = stranger.do("POST", "/cart/items/remove", map[string]interface{}{"item_id": itemID})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = c.do("POST", "/cart/items/remove", map[string]interface{}{"item_id": itemID})
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode(t, w)
	assert.Equal(t, "0", resp["cart_total"])
	assert.Equal(t, float64(0), resp["cart_count"])

	w = c.do("POST", "/cart/items/update", map[string]interface{}{"item_id": itemID})
	assert.Equal(t, http.StatusBadRequest, w.Code, "quantity is required")

	// Anonymous shoppers cannot check out.
	assert.Equal(t, http.StatusUnauthorized, c.do("POST", "/checkout", checkoutForm()).Code)
	assert.Equal(t, http.StatusUnauthorized, c.do("GET", "/orders", nil).Code)
}

func TestFormEncodedAddToCart(t *testing.T) {
	router, db := newTestRouter(t)
	cat := testutil.Category(t, db, "Home")
	lamp := testutil.Product(t, db, cat, "Lamp", "29.99", 10)

	form := url.Values{"product_id": {fmt.Sprint(lamp.ID)}, "quantity": {"2"}}
	req, _ := http.NewRequest("POST", "/cart/items", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "59.98", decode(t, w)["cart_total"])
}

func TestCheckoutAndOrderHistory(t *testing.T) {
	router, db := newTestRouter(t)
	cat := testutil.Category(t, db, "Electronics")
	monitor := testutil.Product(t, db, cat, "Monitor", "1000", 5)
	keyboard := testutil.Product(t, db, cat, "Keyboard", "500", 3)
	ana := &client{t: t, router: router, token: "ana-token"}

	w := ana.do("GET", "/checkout", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Your cart is empty", decode(t, w)["error"])

	require.Equal(t, http.StatusOK, ana.do("POST", "/cart/items", map[string]interface{}{"product_id": monitor.ID, "quantity": 2}).Code)
	require.Equal(t, http.StatusOK, ana.do("POST", "/cart/items", map[string]interface{}{"product_id": keyboard.ID, "quantity": 1}).Code)

	w = ana.do("GET", "/checkout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	form := decode(t, w)
	assert.Equal(t, "2500", form["cart"].(map[string]interface{})["total"])
	assert.Len(t, form["payment_methods"], 4)

	bad := checkoutForm()
	bad["email"] = "nope"
	w = ana.do("POST", "/checkout", bad)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["fields"], "email")

	w = ana.do("POST", "/checkout", checkoutForm())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode(t, w)
	assert.Equal(t, "2500", order["total"])
	assert.Equal(t, "pending", order["status"])
	assert.Equal(t, true, order["paid"])
	assert.Len(t, order["items"], 2)
	orderID := order["id"]

	assert.Equal(t, 3, testutil.Stock(t, db, monitor.ID))
	assert.Equal(t, 2, testutil.Stock(t, db, keyboard.ID))

	w = ana.do("GET", "/cart", nil)
	assert.Equal(t, float64(0), decode(t, w)["item_count"])

	w = ana.do("GET", "/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["orders"], 1)

	path := fmt.Sprintf("/orders/%v", orderID)
	w = ana.do("GET", path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Monitor", decode(t, w)["items"].([]interface{})[0].(map[string]interface{})["product_name"])

	luis := &client{t: t, router: router, token: "luis-token"}
	assert.Equal(t, http.StatusNotFound, luis.do("GET", path, nil).Code)

	forged := &client{t: t, router: router, token: "forged"}
	assert.Equal(t, http.StatusUnauthorized, forged.do("GET", "/orders", nil).Code)

	w = ana.do("GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "storefront_orders_created_total 1")
}

func TestCheckoutInsufficientStock(t *testing.T) {
	router, db := newTestRouter(t)
	cat := testutil.Category(t, db, "Electronics")
	monitor := testutil.Product(t, db, cat, "Monitor", "1000", 5)
	ana := &client{t: t, router: router, token: "ana-token"}

	require.Equal(t, http.StatusOK, ana.do("POST", "/cart/items", map[string]interface{}{"product_id": monitor.ID, "quantity": 4}).Code)
	require.NoError(t, db.Model(monitor).Update("stock", 2).Error)

	w := ana.do("POST", "/checkout", checkoutForm())
	require.Equal(t, http.StatusConflict, w.Code)
	resp := decode(t, w)
	assert.Equal(t, float64(2), resp["available"])
	assert.Equal(t, 2, testutil.Stock(t, db, monitor.ID))

	var count int64
	require.NoError(t, db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}
