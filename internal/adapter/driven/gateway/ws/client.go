package ws

type Client interface {
	ID() string
	SendState(state StateDTO) error
	Close() error
}
