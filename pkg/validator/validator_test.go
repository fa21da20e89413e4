package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Confirm  string `json:"confirmPassword" validate:"eqfield=Password"`
	Role     string `json:"role,omitempty" validate:"omitempty,oneof=USER ADMIN"`
}

func TestValidate_Success(t *testing.T) {
	s := signup{Name: "Alice", Email: "alice@example.com", Password: "12345678", Confirm: "12345678"}
	assert.NoError(t, Validate(s))
}

func TestValidate_FieldsUseJSONNames(t *testing.T) {
	s := signup{Email: "nope", Password: "short", Confirm: "other", Role: "ROOT"}
	err := Validate(s)
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()

	assert.Equal(t, []string{"is required"}, fields["name"])
	assert.Equal(t, []string{"must be a valid email address"}, fields["email"])
	assert.Equal(t, []string{"must be at least 8 characters"}, fields["password"])
	assert.Equal(t, []string{"must match Password"}, fields["confirmPassword"])
	assert.Equal(t, []string{"must be one of: USER ADMIN"}, fields["role"])
}

func TestValidationError_MessageIsSorted(t *testing.T) {
	err := Validate(signup{Password: "12345678", Confirm: "12345678"})
	require.Error(t, err)

	assert.Equal(t, "field 'email' is required; field 'name' is required", err.Error())
}
