package port

// Subscription is a live feed of events. Cancel stops delivery and never
// blocks; Events is closed once the feed has drained.
type Subscription[T any] interface {
	Events() <-chan T
	Cancel()
}
