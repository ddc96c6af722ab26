package book

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks that the request carries both identity fields.
// The returned error lists every failing field.
func (r AddEntryRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	var details strings.Builder
	for _, fe := range verrs {
		if details.Len() > 0 {
			details.WriteString("; ")
		}
		switch fe.Tag() {
		case "required":
			details.WriteString(fmt.Sprintf("%s is required", fieldName(fe.Field())))
		default:
			details.WriteString(fmt.Sprintf("%s failed %s validation", fieldName(fe.Field()), fe.Tag()))
		}
	}
	return errors.New(details.String())
}

// fieldName maps struct field names to their JSON names so messages match
// what callers send.
func fieldName(field string) string {
	switch field {
	case "FEN":
		return "fen"
	case "UCIMove":
		return "uci_move"
	default:
		return strings.ToLower(field)
	}
}
