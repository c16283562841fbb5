package storeapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/openmall/storefront/internal/discount"
	"github.com/openmall/storefront/internal/domain"
	"github.com/openmall/storefront/internal/webserver"
)

type discountPayload struct {
	Code        string          `json:"code"`
	Type        string          `json:"type"`
	Value       decimal.Decimal `json:"value"`
	MinPurchase decimal.Decimal `json:"min_purchase"`
	MaxUses     int64           `json:"max_uses"`
	StartsAt    *time.Time      `json:"starts_at"`
	EndsAt      *time.Time      `json:"ends_at"`
	Active      *bool           `json:"active"`
	Scope       string          `json:"scope"`
	ScopeIDs    []int64         `json:"scope_ids"`
}

// registerDiscountRoutes registers discount administration and evaluation
// endpoints
func registerDiscountRoutes() {
	webserver.ApiGET("/store/discounts", listDiscounts)
	webserver.ApiGET("/store/discounts/:code", getDiscount)
	webserver.ApiPOST("/store/discounts", createDiscount)
	webserver.ApiDELETE("/store/discounts/:code", deleteDiscount)
	webserver.ApiPOST("/store/carts/:token/discounts/:code", evaluateDiscount)
}

func listDiscounts(c echo.Context) error {
	page, pageSize := parsePagination(c)
	rows, total, err := GetApp(c).Discounts().List(c.Request().Context(), page, pageSize)
	if err != nil {
		return failErr(c, err)
	}
	return paged(c, rows, total, page, pageSize)
}

func getDiscount(c echo.Context) error {
	d, err := GetApp(c).Discounts().Get(c.Request().Context(), c.Param("code"))
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, d)
}

func createDiscount(c echo.Context) error {
	var payload discountPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse discount", err.Error())
	}
	active := true
	if payload.Active != nil {
		active = *payload.Active
	}
	d := &domain.Discount{
		Code:        payload.Code,
		Type:        payload.Type,
		Value:       payload.Value,
		MinPurchase: payload.MinPurchase,
		MaxUses:     payload.MaxUses,
		StartsAt:    payload.StartsAt,
		EndsAt:      payload.EndsAt,
		Active:      active,
		Scope:       payload.Scope,
		ScopeIDs:    discount.EncodeScopeIDs(payload.ScopeIDs),
	}
	if err := GetApp(c).Discounts().Create(c.Request().Context(), d); err != nil {
		return failErr(c, err)
	}
	return ok(c, d)
}

func deleteDiscount(c echo.Context) error {
	code := c.Param("code")
	if err := GetApp(c).Discounts().Delete(c.Request().Context(), code); err != nil {
		return failErr(c, err)
	}
	return ok(c, map[string]interface{}{"code": code})
}

// evaluateDiscount previews a code against the cart without committing
// usage.
func evaluateDiscount(c echo.Context) error {
	a := GetApp(c)
	_, lines, err := a.Carts().Items(c.Request().Context(), c.Param("token"))
	if err != nil {
		return failErr(c, err)
	}
	res, err := a.Discounts().Evaluate(c.Request().Context(), lines, c.Param("code"), time.Now())
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, res)
}
