package server

import (
	"context"

	"github.com/vango-dev/params/pkg/middleware"
	"github.com/vango-dev/params/pkg/params"
	"github.com/vango-dev/params/pkg/session"
)

// queryStore is the query string a render pass reads and exports to.
type queryStore interface {
	params.QueryStore
	Encode() string
}

// change is applied inside a render pass, after the page has registered
// its parameters and before the export.
type change func(reg *params.Registry, state *session.State) error

// setValue stores a widget's raw value in the session state and pushes it
// into the parameter, the way a widget change notification would.
func setValue(key, raw string) change {
	return func(reg *params.Registry, state *session.State) error {
		v, err := reg.Decode(key, raw)
		if err != nil {
			return err
		}
		state.Set(key, v)
		return reg.UpdateFromExternal(key)
	}
}

// setExportAll toggles the export mode.
func setExportAll(raw string) change {
	return func(reg *params.Registry, _ *session.State) error {
		all, err := params.BoolCodec.Parse(raw)
		if err != nil {
			return &params.ConversionError{Key: params.ExportAllKey, Kind: params.KindBool, Raw: raw, Err: err}
		}
		reg.SetExportAll(all)
		return nil
	}
}

// ParameterView is one parameter in a render response.
type ParameterView struct {
	Key     string `json:"key"`
	Kind    string `json:"kind"`
	Value   string `json:"value"`
	Touched bool   `json:"touched"`
	Display string `json:"display"`
}

// PageView is the result of a render pass.
type PageView struct {
	// Query is the exported query string, encoded.
	Query string `json:"query"`

	// Values maps each exported key to its serialized value.
	Values map[string]string `json:"values"`

	ExportAll  bool            `json:"export_all"`
	Parameters []ParameterView `json:"parameters"`
}

// render runs one pass for sess: the page registers its parameters against
// query, apply (if any) runs, and the parameters are exported back to query.
func (s *Server) render(ctx context.Context, sess *session.Session, query queryStore, trigger string, apply change) (view *PageView, err error) {
	if s.config.Tracer != nil {
		_, span := s.config.Tracer.StartRenderSpan(ctx, sess.ID, trigger)
		defer func() {
			exported := 0
			if view != nil {
				exported = len(view.Values)
			}
			middleware.EndRenderSpan(span, exported, err)
		}()
	}

	err = sess.Run(func(state *session.State) error {
		opts := []params.Option{params.WithLogger(s.config.Logger)}
		if s.config.Metrics != nil {
			opts = append(opts, params.WithObserver(s.config.Metrics))
		}
		reg, err := params.New(state, query, opts...)
		if err != nil {
			return err
		}
		if s.config.Page != nil {
			if err := s.config.Page(reg); err != nil {
				return err
			}
		}
		if apply != nil {
			if err := apply(reg, state); err != nil {
				return err
			}
		}
		view = newPageView(reg, reg.Export(), query.Encode())
		return nil
	})
	if err != nil {
		s.logger.Debug("render failed", "session", sess.ID, "trigger", trigger, "error", err)
		return nil, err
	}
	sess.SetQuery(view.Query)
	return view, nil
}

func newPageView(reg *params.Registry, values map[string]string, encoded string) *PageView {
	view := &PageView{
		Query:      encoded,
		Values:     values,
		ExportAll:  reg.IsExportAll(),
		Parameters: make([]ParameterView, 0, reg.Len()),
	}
	for _, key := range reg.Keys() {
		p, err := reg.Lookup(key)
		if err != nil {
			continue
		}
		view.Parameters = append(view.Parameters, ParameterView{
			Key:     p.Key,
			Kind:    p.Kind.String(),
			Value:   p.Serialize(),
			Touched: p.Touched,
			Display: p.String(),
		})
	}
	return view
}
