package security

import (
	"errors"
	"testing"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

func TestDefaultPasswordValidatorSuccess(t *testing.T) {
	validator := DefaultPasswordValidator()

	password := "green-dragon-ale-7"
	if strength := zxcvbn.PasswordStrength(password, nil); strength.Score < 2 {
		t.Fatalf("test password unexpectedly weak: score=%d", strength.Score)
	}
	if err := validator.Validate(password); err != nil {
		t.Fatalf("expected password to pass validation, got %v", err)
	}
}

func TestDefaultPasswordValidatorViolations(t *testing.T) {
	validator := DefaultPasswordValidator()

	assertViolation := func(password, expectedCode string) {
		t.Helper()
		err := validator.Validate(password)
		if err == nil {
			t.Fatalf("expected validation error for %s", expectedCode)
		}
		var vErr *PasswordValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected PasswordValidationError, got %T", err)
		}
		if vErr.Code != expectedCode {
			t.Fatalf("expected %s code, got %s", expectedCode, vErr.Code)
		}
	}

	assertViolation("abc", "min_length")
	assertViolation("password", "strength")
	assertViolation("12345678", "strength")
}

func TestCustomValidatorRuleOrder(t *testing.T) {
	validator := NewPasswordValidator(
		MinLengthRule(4),
		RequirePasswordStrengthRule(0),
	)

	if err := validator.Validate("abcd"); err != nil {
		t.Fatalf("disabled strength rule should accept any length-valid password, got %v", err)
	}

	var nilValidator *PasswordValidator
	if err := nilValidator.Validate("anything"); err == nil {
		t.Fatal("nil validator must refuse to validate")
	}
}
