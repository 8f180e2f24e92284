// Package middleware provides observability for a parameter page server.
//
// # Prometheus Metrics
//
// Metrics counts HTTP requests by chi route and doubles as a params.Observer:
//
//	metrics := middleware.NewMetrics(middleware.WithRegistry(reg))
//	router.Use(metrics.Handler)
//	registry, err := params.New(state, query, params.WithObserver(metrics))
//
// Then expose the registry:
//
//	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// # OpenTelemetry Tracing
//
// Tracer opens one server span per request and an internal span per render
// pass. It uses the global tracer provider unless WithTracerProvider is given:
//
//	tracer := middleware.NewTracer()
//	router.Use(tracer.Handler)
//
//	ctx, span := tracer.StartRenderSpan(r.Context(), sess.ID, "change")
//	// ... run the render pass ...
//	middleware.EndRenderSpan(span, len(exported), err)
package middleware
