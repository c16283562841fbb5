package storeapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/openmall/storefront/internal/webserver"
)

type adjustPayload struct {
	Delta  interface{} `json:"delta"`
	Reason string      `json:"reason"`
}

type inventorySettingsPayload struct {
	LowStockThreshold *int64 `json:"low_stock_threshold"`
	Tracked           *bool  `json:"tracked"`
	AllowBackorder    *bool  `json:"allow_backorder"`
}

// registerInventoryRoutes registers ledger endpoints
func registerInventoryRoutes() {
	webserver.ApiGET("/store/inventory", listInventory)
	webserver.ApiGET("/store/inventory/low", listLowStock)
	webserver.ApiGET("/store/inventory/:productId", getInventory)
	webserver.ApiPOST("/store/inventory/:productId/adjust", adjustInventory)
	webserver.ApiPUT("/store/inventory/:productId", updateInventorySettings)
}

func listInventory(c echo.Context) error {
	page, pageSize := parsePagination(c)
	rows, total, err := GetApp(c).Ledger().List(c.Request().Context(), page, pageSize)
	if err != nil {
		return failErr(c, err)
	}
	return paged(c, rows, total, page, pageSize)
}

func listLowStock(c echo.Context) error {
	rows, err := GetApp(c).Ledger().LowStock(c.Request().Context())
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, rows)
}

func getInventory(c echo.Context) error {
	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	rec, err := GetApp(c).Ledger().Get(c.Request().Context(), productID)
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, rec)
}

func adjustInventory(c echo.Context) error {
	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	var payload adjustPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse adjustment", err.Error())
	}
	delta, err := parseQuantity(payload.Delta, "delta")
	if err != nil {
		return failErr(c, err)
	}
	reason := payload.Reason
	if reason == "" {
		reason = "manual adjustment"
	}
	res, err := GetApp(c).Ledger().Adjust(c.Request().Context(), productID, delta, reason)
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, res)
}

func updateInventorySettings(c echo.Context) error {
	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	var payload inventorySettingsPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse settings", err.Error())
	}
	rec, err := GetApp(c).Ledger().UpdateSettings(c.Request().Context(), productID,
		payload.LowStockThreshold, payload.Tracked, payload.AllowBackorder)
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, rec)
}
