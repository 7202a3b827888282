// Package httpapi публикует команды и запросы над товарами и заказами через HTTP (gin).
package httpapi

import (
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/vladislavdragonenkov/orderstock/internal/metrics"
	"github.com/vladislavdragonenkov/orderstock/internal/service/idempotency"
	"github.com/vladislavdragonenkov/orderstock/internal/service/inventory"
	"github.com/vladislavdragonenkov/orderstock/internal/service/ordering"
)

// DefaultServiceName подставляется в HTTP-спаны, если имя сервиса не задано.
const DefaultServiceName = "orderstock"

// Dependencies — то, что нужно роутеру. Guard и Metrics необязательны.
type Dependencies struct {
	Inventory   *inventory.Service
	Ordering    *ordering.Service
	Guard       *idempotency.Guard
	Metrics     *metrics.HTTPMetrics
	Logger      *log.Entry
	ServiceName string
}

// NewRouter собирает gin.Engine со всеми маршрутами /v1.
func NewRouter(deps Dependencies) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = log.WithField("component", "http-api")
	}
	if deps.ServiceName == "" {
		deps.ServiceName = DefaultServiceName
	}

	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(deps.ServiceName), requestLogger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(observe(deps.Metrics))
	}
	if deps.Guard != nil {
		r.Use(idempotent(deps.Guard, deps.Logger))
	}

	h := &handler{inventory: deps.Inventory, ordering: deps.Ordering, logger: deps.Logger}

	v1 := r.Group("/v1")
	{
		items := v1.Group("/items")
		items.POST("", h.createItem)
		items.GET("", h.listItems)
		items.GET("/:id", h.getItem)
		items.GET("/:id/history", h.itemHistory)
		items.PUT("/:id/details", h.updateItemDetails)
		items.PUT("/:id/price", h.changeItemPrice)
		items.POST("/:id/stock/adjust", h.adjustStock)
		items.POST("/:id/stock/reserve", h.reserveStock)
		items.POST("/:id/stock/release", h.releaseStock)
		items.POST("/:id/stock/commit", h.commitStock)
		items.POST("/:id/deactivate", h.deactivateItem)
		items.POST("/:id/activate", h.activateItem)

		v1.GET("/skus/:sku", h.getItemBySKU)

		orders := v1.Group("/orders")
		orders.POST("", h.createOrder)
		orders.GET("", h.listOrders)
		orders.GET("/:id", h.getOrder)
		orders.GET("/:id/history", h.orderHistory)
		orders.POST("/:id/validate", h.validateOrder)
		orders.POST("/:id/payment/start", h.startPayment)
		orders.POST("/:id/payment/complete", h.completePayment)
		orders.POST("/:id/ship", h.shipOrder)
		orders.POST("/:id/deliver", h.deliverOrder)
		orders.POST("/:id/cancel", h.cancelOrder)
		orders.DELETE("/:id", h.deleteOrder)
	}

	return r
}
