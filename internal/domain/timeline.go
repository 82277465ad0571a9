package domain

import "time"

// Типы событий таймлайна заказа.
const (
	TimelineOrderCreated   = "OrderCreated"
	TimelineOrderConfirmed = "OrderConfirmed"
	TimelineOrderRejected  = "OrderRejected"
	TimelineOrderShipped   = "OrderShipped"
	TimelineOrderPaid      = "OrderPaid"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	ActorID  string
	Occurred time.Time
}
