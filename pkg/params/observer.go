package params

// Observer receives notifications about registry activity.
// pkg/middleware provides a Prometheus implementation.
type Observer interface {
	// Registered is called once per newly inserted parameter.
	Registered(key string, kind Kind, fromQuery bool)

	// ConversionFailed is called when a query string value is rejected.
	ConversionFailed(key string, kind Kind)

	// Exported is called after each export with the number of keys written.
	Exported(count int)
}

type nopObserver struct{}

func (nopObserver) Registered(string, Kind, bool) {}
func (nopObserver) ConversionFailed(string, Kind) {}
func (nopObserver) Exported(int)                  {}
