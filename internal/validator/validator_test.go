package validator

import (
	"strings"
	"testing"

	govalidator "github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type setupForm struct {
	Role   string `json:"role" validate:"omitempty,notblank,max=120"`
	Resume string `json:"resume_text" validate:"maxrunes=5"`
}

func newValidate(t *testing.T) *govalidator.Validate {
	t.Helper()
	v := govalidator.New()
	register(v)
	return v
}

func TestNotBlank(t *testing.T) {
	v := newValidate(t)

	assert.NoError(t, v.Struct(setupForm{Role: "Backend Engineer"}))
	assert.NoError(t, v.Struct(setupForm{}))

	assert.Error(t, v.Struct(setupForm{Role: "\t\n "}))

	err := v.Struct(setupForm{Role: "   "})
	require.Error(t, err)
	fields := TranslateErrors(err)
	assert.Equal(t, "role must not be blank", fields["role"])
}

func TestMaxRunesCountsCharacters(t *testing.T) {
	v := newValidate(t)

	assert.NoError(t, v.Struct(setupForm{Resume: "ééééé"}))

	err := v.Struct(setupForm{Resume: strings.Repeat("a", 6)})
	require.Error(t, err)
	assert.Equal(t, "resume_text must be at most 5 characters", TranslateErrors(err)["resume_text"])
}

func TestTranslateErrorsNonValidation(t *testing.T) {
	fields := TranslateErrors(assert.AnError)
	assert.Equal(t, map[string]string{"detail": assert.AnError.Error()}, fields)
}
