package xmlbroker

// DestinationKind tells queues and topics apart. They are separate namespaces.
type DestinationKind int

const (
	DestinationQueue DestinationKind = iota
	DestinationTopic
)

func (k DestinationKind) String() string {
	if k == DestinationTopic {
		return "topic"
	}
	return "queue"
}

// Destination is an addressable target on the broker. Two destinations are
// equal only when both name and kind match.
type Destination struct {
	Name string
	Kind DestinationKind
}

// Queue returns a point-to-point destination.
func Queue(name string) Destination {
	return Destination{Name: name, Kind: DestinationQueue}
}

// Topic returns a publish/subscribe destination.
func Topic(name string) Destination {
	return Destination{Name: name, Kind: DestinationTopic}
}

func (d Destination) IsQueue() bool { return d.Kind == DestinationQueue }
func (d Destination) IsTopic() bool { return d.Kind == DestinationTopic }

// String renders the destination as kind://name.
func (d Destination) String() string {
	return d.Kind.String() + "://" + d.Name
}
