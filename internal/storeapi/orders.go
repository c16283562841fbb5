package storeapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/openmall/storefront/internal/order"
	"github.com/openmall/storefront/internal/webserver"
)

type placeOrderPayload struct {
	CartToken    string         `json:"cart_token"`
	Customer     order.Customer `json:"customer"`
	DiscountCode string         `json:"discount_code"`
}

type statusPayload struct {
	Status string `json:"status"`
}

// registerOrderRoutes registers order lifecycle endpoints
func registerOrderRoutes() {
	webserver.ApiGET("/store/orders", listOrders)
	webserver.ApiGET("/store/orders/:id", getOrder)
	webserver.ApiPOST("/store/orders", placeOrder)
	webserver.ApiPUT("/store/orders/:id/status", updateOrderStatus)
	webserver.ApiPOST("/store/orders/:id/cancel", cancelOrder)
}

func listOrders(c echo.Context) error {
	page, pageSize := parsePagination(c)
	rows, total, err := GetApp(c).Orders().List(c.Request().Context(), page, pageSize)
	if err != nil {
		return failErr(c, err)
	}
	return paged(c, rows, total, page, pageSize)
}

func getOrder(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
	}
	detail, err := GetApp(c).Orders().Get(c.Request().Context(), id)
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, detail)
}

func placeOrder(c echo.Context) error {
	var payload placeOrderPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse order", err.Error())
	}
	detail, err := GetApp(c).Orders().Place(c.Request().Context(),
		payload.CartToken, payload.Customer, payload.DiscountCode)
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, detail)
}

func updateOrderStatus(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
	}
	var payload statusPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse status", err.Error())
	}
	o, err := GetApp(c).Orders().UpdateStatus(c.Request().Context(), id, payload.Status)
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, o)
}

func cancelOrder(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
	}
	o, err := GetApp(c).Orders().Cancel(c.Request().Context(), id)
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, o)
}
