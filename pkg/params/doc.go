// Package params keeps page parameters in step across three places: the
// default chosen by the page, the session state shared with widgets, and the
// address bar's query string.
//
// On first load a parameter takes its value from the query string when the
// key is present there, and from the registered default otherwise. Widget
// edits flow back through UpdateFromExternal, and Export rewrites the query
// string so the current URL reproduces the page.
//
// A render pass looks like this:
//
//	reg, err := params.New(sess.State(), query)
//	if err != nil {
//	    return err
//	}
//	start, err := reg.RegisterDate("start_date", civil.DateOf(time.Now()).AddDays(-7))
//	if err != nil {
//	    return err // malformed shared link
//	}
//	// Bind a widget: initial value start.Default, identity start.Key,
//	// on change -> reg.UpdateFromExternal(start.Key).
//	reg.Export()
//
// Registration is idempotent: the parameter table lives in the session state,
// so running the same registration code on every render pass returns the
// existing parameter and never clobbers a value the user has since edited.
//
// # Export modes
//
// In partial mode (the default) only touched parameters are written to the
// query string: those that arrived in the URL and those the user changed.
// Setting export-all writes every parameter. The flag lives in the session
// state under ExportAllKey, so a checkbox widget bound with that key toggles
// it directly.
//
// # Query string encoding
//
//	bool         true, false (parses true|yes|t|y|on|1 and false|no|f|n|off|0)
//	int, float   decimal text
//	date         YYYY-MM-DD (parses most common date layouts)
//	string       verbatim
//	ranges       (lo,hi)
//	string list  ['a', 'b']
//	bool list    [true, false]
//
// Export always replaces the entire query string. Keys the registry does not
// know about are dropped.
package params
