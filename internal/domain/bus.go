package domain

// PostBus carries posts from the source listener to the forwarding loop.
type PostBus interface {
	Publish(post ChannelPost)
	Subscribe() <-chan ChannelPost
	Close()
}
