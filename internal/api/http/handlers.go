package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstock/internal/domain"
	"github.com/vladislavdragonenkov/orderstock/internal/service/command"
	"github.com/vladislavdragonenkov/orderstock/internal/service/inventory"
	"github.com/vladislavdragonenkov/orderstock/internal/service/ordering"
)

// HeaderEventsPending выставляется, когда изменения сохранены, а события ещё не опубликованы.
const HeaderEventsPending = "X-Events-Pending"

type handler struct {
	inventory *inventory.Service
	ordering  *ordering.Service
	logger    *log.Entry
}

// reply отвечает результатом команды. Ошибка публикации событий не отменяет
// сохранённое состояние, поэтому клиент получает успешный ответ с заголовком.
func (h *handler) reply(c *gin.Context, status int, body any, err error) {
	if err != nil {
		if !errors.Is(err, command.ErrEventsNotPublished) {
			h.abortWithError(c, err)
			return
		}
		h.logger.WithError(err).WithField("route", c.FullPath()).Warn("state committed, events left unpublished")
		c.Header(HeaderEventsPending, "true")
	}
	c.JSON(status, body)
}

func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return domain.NewValidationError("body", nil, err.Error())
	}
	return nil
}

// bindOptionalJSON пропускает пустое тело, в том числе chunked-тело без данных,
// длина которого заранее неизвестна.
func bindOptionalJSON(c *gin.Context, dst any) error {
	if c.Request.ContentLength == 0 || c.Request.Body == nil || c.Request.Body == http.NoBody {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return domain.NewValidationError("body", nil, err.Error())
	}
	return nil
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(name, raw, "must be an integer")
	}
	return v, nil
}

func queryBool(c *gin.Context, name string) (bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, domain.NewValidationError(name, raw, "must be a boolean")
	}
	return v, nil
}

func pageParams(c *gin.Context) (limit, offset int, err error) {
	if limit, err = queryInt(c, "limit"); err != nil {
		return 0, 0, err
	}
	if offset, err = queryInt(c, "offset"); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

// --- items ---

func (h *handler) createItem(c *gin.Context) {
	var in inventory.CreateItemInput
	if err := bindJSON(c, &in); err != nil {
		h.abortWithError(c, err)
		return
	}
	item, err := h.inventory.CreateItem(c.Request.Context(), in)
	h.reply(c, http.StatusCreated, item, err)
}

func (h *handler) getItem(c *gin.Context) {
	item, err := h.inventory.GetItem(c.Request.Context(), c.Param("id"))
	h.reply(c, http.StatusOK, item, err)
}

func (h *handler) getItemBySKU(c *gin.Context) {
	item, err := h.inventory.GetItemBySKU(c.Request.Context(), c.Param("sku"))
	h.reply(c, http.StatusOK, item, err)
}

func (h *handler) listItems(c *gin.Context) {
	limit, offset, err := pageParams(c)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	activeOnly, err := queryBool(c, "active_only")
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	items, err := h.inventory.ListItems(c.Request.Context(), inventory.ListItemsQuery{
		Category:   c.Query("category"),
		ActiveOnly: activeOnly,
		Limit:      limit,
		Offset:     offset,
	})
	h.reply(c, http.StatusOK, gin.H{"items": items}, err)
}

func (h *handler) itemHistory(c *gin.Context) {
	events, err := h.inventory.ItemHistory(c.Request.Context(), c.Param("id"))
	h.reply(c, http.StatusOK, gin.H{"events": events}, err)
}

func (h *handler) updateItemDetails(c *gin.Context) {
	var in inventory.UpdateDetailsInput
	if err := bindJSON(c, &in); err != nil {
		h.abortWithError(c, err)
		return
	}
	in.ItemID = c.Param("id")
	item, err := h.inventory.UpdateDetails(c.Request.Context(), in)
	h.reply(c, http.StatusOK, item, err)
}

func (h *handler) changeItemPrice(c *gin.Context) {
	var in inventory.ChangePriceInput
	if err := bindJSON(c, &in); err != nil {
		h.abortWithError(c, err)
		return
	}
	in.ItemID = c.Param("id")
	item, err := h.inventory.ChangePrice(c.Request.Context(), in)
	h.reply(c, http.StatusOK, item, err)
}

func (h *handler) adjustStock(c *gin.Context) {
	var in inventory.AdjustStockInput
	if err := bindJSON(c, &in); err != nil {
		h.abortWithError(c, err)
		return
	}
	in.ItemID = c.Param("id")
	item, err := h.inventory.AdjustStock(c.Request.Context(), in)
	h.reply(c, http.StatusOK, item, err)
}

func (h *handler) reserveStock(c *gin.Context) {
	h.moveStock(c, h.inventory.ReserveStock)
}

func (h *handler) releaseStock(c *gin.Context) {
	h.moveStock(c, h.inventory.ReleaseStock)
}

func (h *handler) commitStock(c *gin.Context) {
	h.moveStock(c, h.inventory.CommitStock)
}

func (h *handler) moveStock(c *gin.Context, move func(ctx context.Context, in inventory.StockMovementInput) (inventory.ItemView, error)) {
	var in inventory.StockMovementInput
	if err := bindJSON(c, &in); err != nil {
		h.abortWithError(c, err)
		return
	}
	in.ItemID = c.Param("id")
	item, err := move(c.Request.Context(), in)
	h.reply(c, http.StatusOK, item, err)
}

func (h *handler) deactivateItem(c *gin.Context) {
	item, err := h.inventory.DeactivateItem(c.Request.Context(), inventory.ItemIDInput{ItemID: c.Param("id")})
	h.reply(c, http.StatusOK, item, err)
}

func (h *handler) activateItem(c *gin.Context) {
	item, err := h.inventory.ActivateItem(c.Request.Context(), inventory.ItemIDInput{ItemID: c.Param("id")})
	h.reply(c, http.StatusOK, item, err)
}

// --- orders ---

func (h *handler) createOrder(c *gin.Context) {
	var in ordering.CreateOrderInput
	if err := bindJSON(c, &in); err != nil {
		h.abortWithError(c, err)
		return
	}
	order, err := h.ordering.CreateOrder(c.Request.Context(), in)
	h.reply(c, http.StatusCreated, order, err)
}

func (h *handler) getOrder(c *gin.Context) {
	order, err := h.ordering.GetOrder(c.Request.Context(), c.Param("id"))
	h.reply(c, http.StatusOK, order, err)
}

func (h *handler) listOrders(c *gin.Context) {
	limit, offset, err := pageParams(c)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	orders, err := h.ordering.ListOrders(c.Request.Context(), ordering.ListOrdersQuery{
		CustomerID: c.Query("customer_id"),
		Status:     c.Query("status"),
		Limit:      limit,
		Offset:     offset,
	})
	h.reply(c, http.StatusOK, gin.H{"orders": orders}, err)
}

func (h *handler) orderHistory(c *gin.Context) {
	events, err := h.ordering.OrderHistory(c.Request.Context(), c.Param("id"))
	h.reply(c, http.StatusOK, gin.H{"events": events}, err)
}

func (h *handler) validateOrder(c *gin.Context) {
	h.transition(c, h.ordering.ValidateOrder)
}

func (h *handler) startPayment(c *gin.Context) {
	h.transition(c, h.ordering.StartPayment)
}

func (h *handler) completePayment(c *gin.Context) {
	h.transition(c, h.ordering.CompletePayment)
}

func (h *handler) shipOrder(c *gin.Context) {
	h.transition(c, h.ordering.ShipOrder)
}

func (h *handler) deliverOrder(c *gin.Context) {
	h.transition(c, h.ordering.DeliverOrder)
}

func (h *handler) deleteOrder(c *gin.Context) {
	h.transition(c, h.ordering.DeleteOrder)
}

func (h *handler) transition(c *gin.Context, apply func(ctx context.Context, in ordering.OrderIDInput) (ordering.OrderView, error)) {
	order, err := apply(c.Request.Context(), ordering.OrderIDInput{OrderID: c.Param("id")})
	h.reply(c, http.StatusOK, order, err)
}

func (h *handler) cancelOrder(c *gin.Context) {
	var in ordering.CancelOrderInput
	if err := bindOptionalJSON(c, &in); err != nil {
		h.abortWithError(c, err)
		return
	}
	in.OrderID = c.Param("id")
	order, err := h.ordering.CancelOrder(c.Request.Context(), in)
	h.reply(c, http.StatusOK, order, err)
}
