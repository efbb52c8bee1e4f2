package domain

type EventType string

const (
	EventConnected     EventType = "connected"
	EventInitialOrders EventType = "initial-orders"
	EventNewOrder      EventType = "new-order"
	EventStatusUpdate  EventType = "order-status-update"
)

// Event is what the registry fans out and the push transport writes.
type Event struct {
	Type   EventType `json:"type"`
	ShopID string    `json:"shop_id"`
	Order  *Order    `json:"order,omitempty"`
	Orders []Order   `json:"orders,omitempty"`
}

func NewOrderEvent(o Order) Event {
	return Event{Type: EventNewOrder, ShopID: o.ShopID, Order: &o}
}

func StatusUpdateEvent(o Order) Event {
	return Event{Type: EventStatusUpdate, ShopID: o.ShopID, Order: &o}
}

func InitialOrdersEvent(shopID string, orders []Order) Event {
	if orders == nil {
		orders = []Order{}
	}
	return Event{Type: EventInitialOrders, ShopID: shopID, Orders: orders}
}
