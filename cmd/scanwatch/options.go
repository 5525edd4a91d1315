package main

import (
	"fmt"
	"strings"

	"github.com/hakim/scanwatch/internal/models"
)

// parseOptionFlags turns repeated --opt values into ordered scan options.
// "-sV" is a boolean flag; "-p=22,80" or "-p 22,80" carries a value.
func parseOptionFlags(raw []string) (models.Options, error) {
	var opts models.Options
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		flag, value, hasValue := strings.Cut(item, "=")
		if !hasValue {
			flag, value, hasValue = strings.Cut(item, " ")
		}
		flag = strings.TrimSpace(flag)
		if !strings.HasPrefix(flag, "-") {
			return nil, fmt.Errorf("option %q must start with '-'", item)
		}

		if hasValue {
			v := strings.TrimSpace(value)
			opts = opts.Set(flag, &v)
		} else {
			opts = opts.Set(flag, nil)
		}
	}
	return opts, opts.Validate()
}
