package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/xhad/annotscan/pkg/processor"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate input and search
	if strings.TrimSpace(c.Input.Folder) == "" {
		errors = append(errors, ValidationError{
			Field:   "input.folder",
			Message: "input folder is required",
		})
	}

	if strings.ReplaceAll(c.Search.Term, " ", "") == "" {
		errors = append(errors, ValidationError{
			Field:   "search.term",
			Message: "search term must contain at least one non-space character",
		})
	} else if err := processor.ValidateTerm(c.Search.Term); err != nil {
		errors = append(errors, ValidationError{
			Field:   "search.term",
			Message: err.Error(),
		})
	}

	if strings.TrimSpace(c.Output.BaseDir) == "" {
		errors = append(errors, ValidationError{
			Field:   "output.base_dir",
			Message: "output base directory is required",
		})
	}

	// Validate highlight config
	if len(c.Highlight.Color) != 3 {
		errors = append(errors, ValidationError{
			Field:   "highlight.color",
			Message: "color must have exactly 3 components",
		})
	} else {
		for _, v := range c.Highlight.Color {
			if v < 0 || v > 1 {
				errors = append(errors, ValidationError{
					Field:   "highlight.color",
					Message: "color components must be between 0 and 1",
				})
				break
			}
		}
	}

	if c.Highlight.Opacity <= 0 || c.Highlight.Opacity > 1 {
		errors = append(errors, ValidationError{
			Field:   "highlight.opacity",
			Message: "opacity must be greater than 0 and at most 1",
		})
	}

	// Validate server config
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		errors = append(errors, ValidationError{
			Field:   "server.addr",
			Message: "invalid listen address",
		})
	}

	if c.Server.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "server.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Server.Burst < 1 {
		errors = append(errors, ValidationError{
			Field:   "server.burst",
			Message: "burst must be positive",
		})
	}

	return errors
}
