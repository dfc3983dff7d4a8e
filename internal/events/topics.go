package events

// Topic constants for domain events emitted by the platform.
const (
	TopicOrderPlaced    = "order.placed"
	TopicOrderCanceled  = "order.canceled"
	TopicCouponRedeemed = "coupon.redeemed"
	TopicCouponReleased = "coupon.released"
	TopicCouponExpired  = "coupon.expired"
)
