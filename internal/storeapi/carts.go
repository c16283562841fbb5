package storeapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/openmall/storefront/internal/webserver"
)

type cartItemPayload struct {
	ProductID  int64             `json:"product_id"`
	Quantity   interface{}       `json:"quantity"`
	Properties map[string]string `json:"properties"`
}

// registerCartRoutes registers cart endpoints. Carts are addressed by
// bearer token, not by id.
func registerCartRoutes() {
	webserver.ApiPOST("/store/carts", createCart)
	webserver.ApiGET("/store/carts/:token", getCartSummary)
	webserver.ApiPOST("/store/carts/:token/items", addCartItem)
	webserver.ApiPUT("/store/carts/:token/items/:itemId", updateCartItem)
	webserver.ApiDELETE("/store/carts/:token/items/:itemId", removeCartItem)
	webserver.ApiDELETE("/store/carts/:token", clearCart)
}

func createCart(c echo.Context) error {
	cart, err := GetApp(c).Carts().Create(c.Request().Context())
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, cart)
}

func getCartSummary(c echo.Context) error {
	sum, err := GetApp(c).Carts().Summary(c.Request().Context(), c.Param("token"))
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, sum)
}

func addCartItem(c echo.Context) error {
	var payload cartItemPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse cart item", err.Error())
	}
	quantity, err := parseQuantity(payload.Quantity, "quantity")
	if err != nil {
		return failErr(c, err)
	}
	item, err := GetApp(c).Carts().AddItem(c.Request().Context(),
		c.Param("token"), payload.ProductID, quantity, payload.Properties)
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, item)
}

func updateCartItem(c echo.Context) error {
	itemID, err := strconv.ParseInt(c.Param("itemId"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid cart item ID", nil)
	}
	var payload cartItemPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse cart item", err.Error())
	}
	// An absent quantity means "leave it alone", so a properties-only
	// update cannot coerce the line to zero and remove it.
	var quantity *int64
	if payload.Quantity != nil {
		q, err := parseQuantity(payload.Quantity, "quantity")
		if err != nil {
			return failErr(c, err)
		}
		quantity = &q
	}
	item, err := GetApp(c).Carts().UpdateItem(c.Request().Context(),
		c.Param("token"), itemID, quantity, payload.Properties)
	if err != nil {
		return failErr(c, err)
	}
	if item == nil {
		// quantity <= 0 removed the line
		return ok(c, map[string]interface{}{"item_id": itemID, "removed": true})
	}
	return ok(c, item)
}

func removeCartItem(c echo.Context) error {
	itemID, err := strconv.ParseInt(c.Param("itemId"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid cart item ID", nil)
	}
	if err := GetApp(c).Carts().RemoveItem(c.Request().Context(), c.Param("token"), itemID); err != nil {
		return failErr(c, err)
	}
	return ok(c, map[string]interface{}{"item_id": itemID, "removed": true})
}

func clearCart(c echo.Context) error {
	if err := GetApp(c).Carts().Clear(c.Request().Context(), c.Param("token")); err != nil {
		return failErr(c, err)
	}
	return ok(c, map[string]interface{}{"cleared": true})
}
