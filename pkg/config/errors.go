package config

import "github.com/culturalsoundlab/soundlab/pkg/errx"

var configErrors = errx.NewRegistry("CONFIG")

var (
	CodeMissingSetting = configErrors.Register("MISSING_SETTING", errx.TypeValidation, 500, "Required setting is missing")
	CodeInvalidSetting = configErrors.Register("INVALID_SETTING", errx.TypeValidation, 500, "Setting has an invalid value")
)

func ErrMissingSetting(key string) *errx.Error {
	return configErrors.New(CodeMissingSetting).WithDetail("key", key)
}

func ErrInvalidSetting(key string) *errx.Error {
	return configErrors.New(CodeInvalidSetting).WithDetail("key", key)
}
