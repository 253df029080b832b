package notify

import "context"

type NullNotifier struct {
	name string
}

func NewNullNotifier(name string) *NullNotifier {
	if name == "" {
		name = "null"
	}
	return &NullNotifier{name: name}
}

func (n *NullNotifier) Name() string {
	return n.name
}

func (n *NullNotifier) Notify(ctx context.Context, t Transfer) error {
	return nil
}

func (n *NullNotifier) Health(ctx context.Context) error {
	return nil
}
