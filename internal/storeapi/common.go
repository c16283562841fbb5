// Package storeapi maps the storefront core onto HTTP routes. It owns the
// response envelope and the translation from core error codes to HTTP
// statuses; all business rules live in the core services.
package storeapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"

	"github.com/openmall/storefront/internal/app"
	"github.com/openmall/storefront/internal/errs"
	"github.com/openmall/storefront/internal/webserver"
)

// Register wires all storefront routes into the webserver.
func Register() {
	registerProductRoutes()
	registerInventoryRoutes()
	registerCartRoutes()
	registerDiscountRoutes()
	registerOrderRoutes()
}

// GetApp returns the application context for this request.
func GetApp(c echo.Context) app.AppContext {
	return webserver.GetApp(c)
}

type apiResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message,omitempty"`
	Detail  interface{} `json:"detail,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type pagedResponse struct {
	Code     string      `json:"code"`
	Data     interface{} `json:"data"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, apiResponse{Code: "OK", Data: data})
}

func fail(c echo.Context, status int, code, message string, detail interface{}) error {
	return c.JSON(status, apiResponse{Code: code, Message: message, Detail: detail})
}

func paged(c echo.Context, rows interface{}, total int64, page, pageSize int) error {
	return c.JSON(http.StatusOK, pagedResponse{
		Code: "OK", Data: rows, Total: total, Page: page, PageSize: pageSize,
	})
}

// failErr maps a core error to its HTTP status by machine-readable code.
func failErr(c echo.Context, err error) error {
	code := errs.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case errs.CodeValidation,
		errs.CodeDiscountInactive, errs.CodeDiscountNotStarted, errs.CodeDiscountExpired,
		errs.CodeDiscountExhausted, errs.CodeDiscountMinPurchase, errs.CodeDiscountNotApplicable:
		status = http.StatusBadRequest
	case errs.CodeNotFound:
		status = http.StatusNotFound
	case errs.CodeInsufficientInventory, errs.CodeInvalidTransition, errs.CodeInvalidAction:
		status = http.StatusConflict
	case errs.CodeNegativeStock:
		status = http.StatusInternalServerError
	case "":
		return fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Unexpected error", err.Error())
	}
	if ie, isInv := errs.IsInsufficientInventory(err); isInv {
		return fail(c, status, string(code), err.Error(), map[string]interface{}{
			"product_id": ie.ProductID,
			"requested":  ie.Requested,
			"available":  ie.Available,
		})
	}
	return fail(c, status, string(code), err.Error(), nil)
}

func parsePagination(c echo.Context) (page, pageSize int) {
	page = cast.ToInt(c.QueryParam("page"))
	if page <= 0 {
		page = 1
	}
	pageSize = cast.ToInt(c.QueryParam("perPage"))
	if pageSize <= 0 {
		pageSize = cast.ToInt(c.QueryParam("pageSize"))
	}
	if pageSize <= 0 || pageSize > 500 {
		pageSize = 20
	}
	return page, pageSize
}

// parseQuantity coerces a loosely-typed quantity field to an integer.
// Non-numeric input is a validation error, not a transport error.
func parseQuantity(v interface{}, field string) (int64, error) {
	n, err := cast.ToInt64E(v)
	if err != nil {
		return 0, errs.NewValidation(field, "quantity must be an integer")
	}
	return n, nil
}
