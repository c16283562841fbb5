package storeapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/openmall/storefront/internal/domain"
	"github.com/openmall/storefront/internal/webserver"
)

type productPayload struct {
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Image      string          `json:"image"`
	Tags       string          `json:"tags"`
	Featured   bool            `json:"featured"`
	New        bool            `json:"new"`
	Bestseller bool            `json:"bestseller"`
	Stock      int64           `json:"stock"`
}

// registerProductRoutes registers catalog CRUD endpoints
func registerProductRoutes() {
	webserver.ApiGET("/store/products", listProducts)
	webserver.ApiGET("/store/products/:id", getProduct)
	webserver.ApiPOST("/store/products", createProduct)
	webserver.ApiPUT("/store/products/:id", updateProduct)
	webserver.ApiDELETE("/store/products/:id", deleteProduct)
	webserver.ApiPOST("/store/collections", createCollection)
	webserver.ApiPOST("/store/collections/:id/products/:productId", addToCollection)
}

func listProducts(c echo.Context) error {
	page, pageSize := parsePagination(c)
	q := strings.TrimSpace(c.QueryParam("q"))
	rows, total, err := GetApp(c).Catalog().ListProducts(c.Request().Context(), q, page, pageSize)
	if err != nil {
		return failErr(c, err)
	}
	return paged(c, rows, total, page, pageSize)
}

func getProduct(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	view, err := GetApp(c).Catalog().View(c.Request().Context(), id)
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, view)
}

func createProduct(c echo.Context) error {
	var payload productPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse product", err.Error())
	}
	view, err := GetApp(c).Catalog().CreateProduct(c.Request().Context(), &domain.Product{
		Name:       strings.TrimSpace(payload.Name),
		Price:      payload.Price,
		Image:      strings.TrimSpace(payload.Image),
		Tags:       strings.TrimSpace(payload.Tags),
		Featured:   payload.Featured,
		New:        payload.New,
		Bestseller: payload.Bestseller,
	}, payload.Stock)
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, view)
}

func updateProduct(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	catalog := GetApp(c).Catalog()
	p, err := catalog.GetProduct(c.Request().Context(), id)
	if err != nil {
		return failErr(c, err)
	}

	var payload productPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse product", err.Error())
	}
	p.Name = strings.TrimSpace(payload.Name)
	p.Price = payload.Price
	p.Image = strings.TrimSpace(payload.Image)
	p.Tags = strings.TrimSpace(payload.Tags)
	p.Featured = payload.Featured
	p.New = payload.New
	p.Bestseller = payload.Bestseller

	if err := catalog.SaveProduct(c.Request().Context(), p); err != nil {
		return failErr(c, err)
	}
	return ok(c, p)
}

func deleteProduct(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	if err := GetApp(c).Catalog().DeleteProduct(c.Request().Context(), id); err != nil {
		return failErr(c, err)
	}
	return ok(c, map[string]interface{}{"id": id})
}

func createCollection(c echo.Context) error {
	var payload struct {
		Name   string `json:"name"`
		Remark string `json:"remark"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse collection", err.Error())
	}
	col := &domain.Collection{Name: payload.Name, Remark: payload.Remark}
	if err := GetApp(c).Catalog().CreateCollection(c.Request().Context(), col); err != nil {
		return failErr(c, err)
	}
	return ok(c, col)
}

func addToCollection(c echo.Context) error {
	collectionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid collection ID", nil)
	}
	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	if err := GetApp(c).Catalog().AddToCollection(c.Request().Context(), collectionID, productID); err != nil {
		return failErr(c, err)
	}
	return ok(c, map[string]interface{}{"collection_id": collectionID, "product_id": productID})
}
