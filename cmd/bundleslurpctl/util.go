package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/chtzvt/bundleslurp/cmd/bundleslurpd/config"
	"github.com/chtzvt/bundleslurp/internal/api"
)

func cliClient() *api.Client {
	c := api.NewClient(apiURL, apiToken)
	c.Client.Timeout = timeout
	return c
}

func outResult(v any, printer func(any)) {
	if outputJSON {
		b, _ := json.MarshalIndent(v, "", "  ")
		fmt.Println(string(b))
	} else {
		printer(v)
	}
}

func valOrDash(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func strOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func loadNodeConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}
