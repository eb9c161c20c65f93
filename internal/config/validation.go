package config

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	// Compare Duration fields as plain time.Duration values.
	validate.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(Duration); ok {
			return d.Duration
		}
		return nil
	}, Duration{})
}

// Validate checks struct tags and the rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	if cfg.Encryption.Type == "age" && cfg.Gateway.Type != "filesystem" {
		return fmt.Errorf("encryption: age requires the filesystem gateway (got %s)", cfg.Gateway.Type)
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics: listen address required when enabled")
	}
	if cfg.Upload.PartSize > cfg.Upload.MultipartThreshold {
		return fmt.Errorf("upload: part_size %d exceeds multipart_threshold %d",
			cfg.Upload.PartSize, cfg.Upload.MultipartThreshold)
	}
	if cfg.Gateway.Type == "s3" && cfg.Upload.PartURLExpiry.Hours() > 7*24 {
		return fmt.Errorf("upload: part_url_expiry %s exceeds the 7 day presign limit", cfg.Upload.PartURLExpiry)
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
