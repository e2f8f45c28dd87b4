package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/interfaces/http/dto"
)

var currencyCode = regexp.MustCompile(`^[a-z0-9]{2,20}$`)

// SetupValidator registers JSON field names and the ledger specific tags on
// gin's validator:
//   - decimal: a decimal number string
//   - posdecimal: a strictly positive decimal number string
//   - txhash: a transaction hash accepted by ledger.NormalizeTxHash
//   - currency: a lower case gateway currency code
func SetupValidator() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator engine is not go-playground/validator")
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})
	tags := map[string]validator.Func{
		"decimal": func(fl validator.FieldLevel) bool {
			_, err := ledger.ParseAmount(fl.Field().String())
			return err == nil
		},
		"posdecimal": func(fl validator.FieldLevel) bool {
			_, err := ledger.ParsePositiveAmount(fl.Field().String())
			return err == nil
		},
		"txhash": func(fl validator.FieldLevel) bool {
			_, err := ledger.NormalizeTxHash(fl.Field().String())
			return err == nil
		},
		"currency": func(fl validator.FieldLevel) bool {
			return currencyCode.MatchString(fl.Field().String())
		},
	}
	for tag, fn := range tags {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	return nil
}

// HandleValidationError answers 400 with one detail per invalid field, or a
// plain bad request when the body could not be decoded at all
func HandleValidationError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(dto.ErrCodeBadRequest, "Malformed request body", GetRequestID(c)))
		return
	}
	details := make([]dto.ValidationDetail, 0, len(validationErrors))
	for _, e := range validationErrors {
		details = append(details, dto.ValidationDetail{Field: e.Field(), Message: validationMessage(e)})
	}
	c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse("Request validation failed", GetRequestID(c), details))
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "uuid":
		return "Invalid UUID format"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "min":
		if e.Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "decimal":
		return "Must be a decimal number"
	case "posdecimal":
		return "Must be a positive decimal number"
	case "txhash":
		return "Must be a transaction hash"
	case "currency":
		return "Must be a lower case currency code"
	default:
		return "Invalid value"
	}
}
