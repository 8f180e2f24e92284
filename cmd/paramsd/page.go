package main

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/vango-dev/params/internal/config"
	"github.com/vango-dev/params/pkg/params"
	"github.com/vango-dev/params/pkg/server"
)

// buildPage returns the page the configuration declares, or the demo page
// when it declares none.
func buildPage(declared []config.ParameterConfig, today civil.Date) server.Page {
	if len(declared) == 0 {
		return demoPage(today)
	}
	return configuredPage(declared)
}

func configuredPage(declared []config.ParameterConfig) server.Page {
	return func(reg *params.Registry) error {
		for _, p := range declared {
			kind, err := params.ParseKind(p.Type)
			if err != nil {
				return fmt.Errorf("parameter %q: %w", p.Key, err)
			}
			if _, err := reg.RegisterKind(p.Key, kind, p.Default); err != nil {
				return err
			}
		}
		return nil
	}
}

// demoPage registers one parameter of every kind.
func demoPage(today civil.Date) server.Page {
	weekAgo := today.AddDays(-7)
	return func(reg *params.Registry) error {
		steps := []func() (*params.Parameter, error){
			func() (*params.Parameter, error) { return reg.RegisterBool("foo", false) },
			func() (*params.Parameter, error) { return reg.RegisterInt("bar", 5) },
			func() (*params.Parameter, error) { return reg.RegisterDate("start_date", weekAgo) },
			func() (*params.Parameter, error) { return reg.RegisterDate("end_date", today) },
			func() (*params.Parameter, error) { return reg.RegisterString("category", "carbonara") },
			func() (*params.Parameter, error) { return reg.RegisterFloat("floating", 5.0) },
			func() (*params.Parameter, error) {
				return reg.RegisterIntRange("int_range", params.NewRange(10, 20))
			},
			func() (*params.Parameter, error) {
				return reg.RegisterFloatRange("float_range", params.NewRange(0.1, 10.0))
			},
			func() (*params.Parameter, error) {
				return reg.RegisterStringList("string_list", []string{"flying", "spaghetti", "monster"})
			},
			func() (*params.Parameter, error) { return reg.RegisterBoolList("bool_list", []bool{true, false}) },
			func() (*params.Parameter, error) {
				return reg.RegisterDateRange("date_range", params.NewRange(weekAgo, today))
			},
		}
		for _, register := range steps {
			if _, err := register(); err != nil {
				return err
			}
		}
		return nil
	}
}

func localToday() civil.Date {
	return civil.DateOf(time.Now())
}
