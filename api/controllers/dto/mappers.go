package dto

import (
	internalorders "github.com/angelmondragon/farmlane-backend/internal/orders"
	"github.com/angelmondragon/farmlane-backend/pkg/db/models"
)

func NewOrder(order *models.Order) Order {
	items := make([]OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItem{
			ID:                item.ID,
			ProductID:         item.ProductID,
			FarmerID:          item.FarmerID,
			ProductName:       item.ProductName,
			Quantity:          item.Quantity,
			UnitPriceCents:    item.UnitPriceCents,
			LineTotalCents:    item.LineTotalCents,
			FulfillmentStatus: item.FulfillmentStatus,
			TrackingNumber:    item.TrackingNumber,
		})
	}
	return Order{
		ID:                        order.ID,
		BuyerID:                   order.BuyerID,
		Status:                    order.Status,
		PaymentStatus:             order.PaymentStatus,
		SubtotalCents:             order.SubtotalCents,
		PlatformFeeCents:          order.PlatformFeeCents,
		ShippingFeeCents:          order.ShippingFeeCents,
		TaxCents:                  order.TaxCents,
		TotalCents:                order.TotalCents,
		RefundedCents:             order.RefundedCents,
		ShippingAddress:           order.ShippingAddress,
		CheckoutURL:               order.CheckoutURL,
		TrackingNumber:            order.TrackingNumber,
		CancellationReason:        order.CancellationReason,
		CancellationRequestedAt:   order.CancellationRequestedAt,
		CancellationRequestReason: order.CancellationRequestReason,
		DeliveredAt:               order.DeliveredAt,
		CancelledAt:               order.CancelledAt,
		Items:                     items,
		CreatedAt:                 order.CreatedAt,
		UpdatedAt:                 order.UpdatedAt,
	}
}

func NewOrderList(list *internalorders.OrderList) OrderList {
	out := OrderList{Orders: make([]Order, 0, len(list.Orders)), NextCursor: list.NextCursor}
	for i := range list.Orders {
		out.Orders = append(out.Orders, NewOrder(&list.Orders[i]))
	}
	return out
}

func NewStatusHistory(rows []models.OrderStatusHistory) []StatusHistoryEntry {
	out := make([]StatusHistoryEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, StatusHistoryEntry{
			Sequence:       row.Sequence,
			PreviousStatus: row.PreviousStatus,
			Status:         row.Status,
			ActorID:        row.ActorID,
			ActorRole:      row.ActorRole,
			Notes:          row.Notes,
			Metadata:       row.Metadata,
			CreatedAt:      row.CreatedAt,
		})
	}
	return out
}

func NewInventoryEntry(row *models.InventoryHistory) InventoryEntry {
	return InventoryEntry{
		ID:               row.ID,
		ProductID:        row.ProductID,
		Sequence:         row.Sequence,
		QuantityChange:   row.QuantityChange,
		PreviousQuantity: row.PreviousQuantity,
		NewQuantity:      row.NewQuantity,
		ChangeType:       row.ChangeType,
		Reason:           row.Reason,
		ReferenceID:      row.ReferenceID,
		ActorID:          row.ActorID,
		CreatedAt:        row.CreatedAt,
	}
}

func NewInventoryHistory(rows []models.InventoryHistory) []InventoryEntry {
	out := make([]InventoryEntry, 0, len(rows))
	for i := range rows {
		out = append(out, NewInventoryEntry(&rows[i]))
	}
	return out
}

func NewPaymentEvents(rows []models.PaymentEvent) []PaymentEvent {
	out := make([]PaymentEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, PaymentEvent{
			EventID:      row.EventID,
			EventType:    row.EventType,
			ProviderType: row.ProviderType,
			OrderID:      row.OrderID,
			Result:       row.Result,
			ProcessedAt:  row.ProcessedAt,
		})
	}
	return out
}
