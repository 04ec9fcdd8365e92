package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/stock_ledger/config"
	"github.com/mmdatafocus/stock_ledger/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Handler serves the HTTP surface. The database is looked up per request
// because the server starts listening before it connects.
type Handler struct {
	db     func() *gorm.DB
	logger *logrus.Logger
}

func New(db func() *gorm.DB, logger *logrus.Logger) *Handler {
	if db == nil {
		db = config.GetDB
	}
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Handler{db: db, logger: logger}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	registerMaster[models.Item](r, h, "/items")
	registerMaster[models.Warehouse](r, h, "/warehouses")
	registerMaster[models.Supplier](r, h, "/suppliers")
	registerMaster[models.Customer](r, h, "/customers")

	registerDocument(r, h, "/purchases", documentRoutes[models.NewPurchase, *models.Purchase]{
		family: models.FamilyPurchase,
		create: models.CreatePurchase,
		update: models.UpdatePurchase,
		get:    models.GetPurchase,
	})
	registerDocument(r, h, "/sales", documentRoutes[models.NewSale, *models.Sale]{
		family: models.FamilySale,
		create: models.CreateSale,
		update: models.UpdateSale,
		get:    models.GetSale,
	})
	registerDocument(r, h, "/production-runs", documentRoutes[models.NewProductionRun, *models.ProductionRun]{
		family: models.FamilyProduction,
		create: models.CreateProductionRun,
		update: models.UpdateProductionRun,
		get:    models.GetProductionRun,
	})
	registerDocument(r, h, "/stock-transfers", documentRoutes[models.NewStockTransfer, *models.StockTransfer]{
		family: models.FamilyTransfer,
		create: models.CreateStockTransfer,
		update: models.UpdateStockTransfer,
		get:    models.GetStockTransfer,
	})

	r.POST("/supplier-payments", h.createPayment(models.PaymentKindSupplier))
	r.GET("/supplier-payments", h.listPayments(models.PaymentKindSupplier))
	r.POST("/customer-payments", h.createPayment(models.PaymentKindCustomer))
	r.GET("/customer-payments", h.listPayments(models.PaymentKindCustomer))

	r.GET("/reports/stock", h.stockReport)

	r.POST("/sync-balances", h.syncBalances)
	r.POST("/sync-stock", h.syncStock)
	r.POST("/rebuild-inventory", h.rebuildInventory)
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		badRequest(c, "id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}
