package broker

// Publisher is a topic-bound convenience handle returned by
// Endpoint.MakePublisher, grounded on go-mcast's pattern of handing a
// caller a narrow handle bound to one destination rather than making every
// call re-specify it (types.Partition bound once at NewTransport in
// pkg/mcast/core/transport.go).
type Publisher struct {
	topic    Topic
	endpoint *Endpoint
}

// MakePublisher returns a Publisher bound to topic.
func (e *Endpoint) MakePublisher(topic Topic) *Publisher {
	return &Publisher{topic: topic, endpoint: e}
}

// Publish sends d on the bound topic.
func (p *Publisher) Publish(d Data) error {
	return p.endpoint.Publish(p.topic, d)
}
