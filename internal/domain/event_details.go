package domain

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateLayout is the calendar-date format of EventDetails.Date
const DateLayout = "2006-01-02"

// OnsiteContact is the person on site during the event
type OnsiteContact struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone" validate:"required"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

// EventDetails are the descriptive fields captured on an inquiry and copied onto the Event
type EventDetails struct {
	Name          string        `json:"name" validate:"required"`
	Type          string        `json:"type" validate:"required"`
	GuestCount    int           `json:"guestCount" validate:"gte=1"`
	Date          string        `json:"date" validate:"required,datetime=2006-01-02"`
	TimeWindow    string        `json:"timeWindow,omitempty"`
	TimeZone      string        `json:"timeZone,omitempty" validate:"omitempty,timezone"`
	VenueName     string        `json:"venueName" validate:"required"`
	Address       string        `json:"address,omitempty"`
	City          string        `json:"city,omitempty"`
	State         string        `json:"state,omitempty"`
	Zip           string        `json:"zip,omitempty"`
	OnsiteContact OnsiteContact `json:"onsiteContact"`
	Notes         string        `json:"notes,omitempty"`
}

// ChangeableEventFields are the Event keys a host may propose to change
var ChangeableEventFields = map[string]struct{}{
	"name":          {},
	"type":          {},
	"guestCount":    {},
	"date":          {},
	"timeWindow":    {},
	"timeZone":      {},
	"venueName":     {},
	"address":       {},
	"city":          {},
	"state":         {},
	"zip":           {},
	"onsiteContact": {},
	"notes":         {},
}

// Location returns the event's time zone, UTC when unset or unknown
func (d EventDetails) Location() *time.Location {
	if d.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(d.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// EventDate returns midnight of the event date in the event's time zone
func (d EventDetails) EventDate() (time.Time, error) {
	return time.ParseInLocation(DateLayout, d.Date, d.Location())
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs struct tags and converts failures into a ValidationError.
// Field paths are rooted at prefix, e.g. "eventDraft.onsiteContact.phone".
func validateStruct(s interface{}, prefix string) *ValidationError {
	verr := &ValidationError{}
	err := validate.Struct(s)
	if err == nil {
		return verr
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.Add(prefix, err.Error())
		return verr
	}
	for _, fe := range fieldErrs {
		path := fe.Namespace()
		if i := strings.Index(path, "."); i >= 0 {
			path = path[i+1:]
		}
		if prefix != "" {
			path = prefix + "." + path
		}
		verr.Add(path, describe(fe))
	}
	return verr
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be at least " + fe.Param()
	case "min":
		return "must contain at least " + fe.Param() + " item(s)"
	case "email":
		return "must be a valid email address"
	case "datetime":
		return "must be a date formatted as YYYY-MM-DD"
	case "timezone":
		return "must be an IANA time zone"
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}

// Validate checks the descriptive fields
func (d EventDetails) Validate() error {
	return validateStruct(d, "").OrNil()
}
