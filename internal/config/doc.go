// Package config loads paramsd configuration.
//
// Configuration lives in paramsd.json, paramsd.yaml or paramsd.yml in the
// working directory. Values are layered, later layers winning:
//
//  1. built-in defaults
//  2. the config file
//  3. a .env file next to it
//  4. PARAMSD_* environment variables
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "host": "0.0.0.0",
//	    "port": 8080,
//	    "shutdownTimeout": "10s"
//	  },
//	  "log": {"level": "info", "format": "json"},
//	  "session": {
//	    "maxSessions": 10000,
//	    "maxSessionsPerIP": 100,
//	    "idleTimeout": "30m",
//	    "resumeWindow": "24h"
//	  },
//	  "store": {"driver": "sqlite", "dsn": "file:paramsd.db"},
//	  "metrics": {"enabled": true},
//	  "parameters": [
//	    {"key": "ratio", "type": "float", "default": "5.0"},
//	    {"key": "dates", "type": "date_range", "default": "2021-11-01,2021-11-03"}
//	  ]
//	}
//
// Durations are Go duration strings; bare numbers are seconds.
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    return err
//	}
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//	manager := session.NewManager(store, cfg.ManagerConfig(), logger)
package config
