package querystring

import "github.com/vango-dev/params/pkg/protocol"

// Navigator is a query string store bound to a live connection. Every
// SetAll updates the local copy and queues a url_replace message for the
// browser.
type Navigator struct {
	*Values
	queue func(*protocol.URLReplace)
}

// NewNavigator wraps values. The connection passes in a closure that appends
// to its outgoing message buffer; a nil queue only updates values.
func NewNavigator(values *Values, queue func(*protocol.URLReplace)) *Navigator {
	if values == nil {
		values = New(nil)
	}
	return &Navigator{Values: values, queue: queue}
}

// SetAll replaces the query string and queues the matching patch.
func (n *Navigator) SetAll(values map[string]string) {
	n.Values.SetAll(values)
	if n.queue == nil {
		return
	}
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	n.queue(protocol.NewURLReplace(copied, n.Values.Encode()))
}
