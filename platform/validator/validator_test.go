package validator

import "testing"

type sample struct {
	Email  string `json:"email" validate:"required,email"`
	Status string `json:"status" validate:"omitempty,oneof=new contacted"`
}

func TestFieldErrorsUsesJSONNames(t *testing.T) {
	err := Validate.Struct(sample{Email: "nope", Status: "closed"})
	if err == nil {
		t.Fatal("expected validation error")
	}

	fields := FieldErrors(err)
	if fields["email"] != "email" {
		t.Fatalf("expected email rule, got %#v", fields)
	}
	if fields["status"] != "oneof=new contacted" {
		t.Fatalf("expected oneof rule, got %#v", fields)
	}
}

func TestFieldErrorsIgnoresOtherErrors(t *testing.T) {
	if FieldErrors(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}
