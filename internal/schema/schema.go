package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Shapes crossing the wire from the identity backend. The backend is a
// separate deployable, so drift fails loudly here instead of leaking
// malformed state into consumers.

type User struct {
	ID        string  `json:"id" validate:"required"`
	Email     string  `json:"email" validate:"required,email"`
	Name      *string `json:"name"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,url"`
	Provider  *string `json:"provider"`
	CreatedAt *string `json:"created_at"`
	Role      string  `json:"role"`
}

type SessionResponse struct {
	Success bool `json:"success"`
	User    User `json:"user"`
}

type LogoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

const DefaultRole = "user"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// report violations under json names, not Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")

		if name == "" || name == "-" {
			return fld.Name
		}

		return name
	})

	return v
}

type FieldViolation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

type ValidationError struct {
	Fields []FieldViolation
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))

	for _, f := range e.Fields {
		names = append(names, f.Field)
	}

	return "schema validation failed: " + strings.Join(names, ", ")
}

// ParseUser decodes and checks a raw /me payload. Absent role falls
// back to the default, matching the backend contract.
func ParseUser(raw []byte) (User, error) {
	var u User

	if err := unmarshal(raw, &u); err != nil {
		return User{}, err
	}

	if u.Role == "" {
		u.Role = DefaultRole
	}

	if err := check(&u); err != nil {
		return User{}, err
	}

	return u, nil
}

func ParseSessionResponse(raw []byte) (SessionResponse, error) {
	var resp SessionResponse

	if err := unmarshal(raw, &resp); err != nil {
		return SessionResponse{}, err
	}

	if resp.User.Role == "" {
		resp.User.Role = DefaultRole
	}

	if err := check(&resp); err != nil {
		return SessionResponse{}, err
	}

	return resp, nil
}

func ParseLogoutResponse(raw []byte) (LogoutResponse, error) {
	var resp LogoutResponse

	if err := unmarshal(raw, &resp); err != nil {
		return LogoutResponse{}, err
	}

	if err := check(&resp); err != nil {
		return LogoutResponse{}, err
	}

	return resp, nil
}

// unmarshal keeps the error taxonomy honest: a payload that is not
// JSON at all propagates as-is (transport problem), while a JSON value
// of the wrong shape becomes a ValidationError.
func unmarshal(raw []byte, out any) error {
	err := json.Unmarshal(raw, out)

	if err == nil {
		return nil
	}

	var typeErr *json.UnmarshalTypeError

	if errors.As(err, &typeErr) {
		field := typeErr.Field

		if field == "" {
			field = "(root)"
		}

		return &ValidationError{Fields: []FieldViolation{
			{
				Field:   field,
				Rule:    "type",
				Message: fmt.Sprintf("must be of type %s", typeErr.Type.String()),
			},
		}}
	}

	return err
}

func check(out any) error {
	err := validate.Struct(out)

	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors

	if !errors.As(err, &verrs) {
		return err
	}

	fields := make([]FieldViolation, 0, len(verrs))

	for _, fe := range verrs {
		fields = append(fields, FieldViolation{
			Field:   fieldPath(fe),
			Rule:    fe.Tag(),
			Param:   fe.Param(),
			Message: violationMessage(fe.Tag(), fe.Param()),
		})
	}

	return &ValidationError{Fields: fields}
}

// fieldPath strips the root struct name from the namespace so nested
// violations read like "user.email".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()

	if ns == "" {
		return fe.Field()
	}

	parts := strings.Split(ns, ".")

	if len(parts) > 1 {
		return strings.Join(parts[1:], ".")
	}

	return fe.Field()
}

func violationMessage(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}
