package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Text  string `validate:"required_without=Image,max=10"`
	Image string `validate:"omitempty,datauri"`
}

func TestValidateStruct(t *testing.T) {
	assert.NoError(t, ValidateStruct(sample{Text: "hi"}))
	assert.NoError(t, ValidateStruct(sample{Image: "data:image/png;base64,iVBORw0KGgo="}))

	err := ValidateStruct(sample{})
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "text failed on required_without")

	err = ValidateStruct(sample{Text: "much too long for this"})
	assert.True(t, errors.Is(err, ErrValidation))

	err = ValidateStruct(sample{Image: "https://example.com/cat.png"})
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "image failed on datauri")
}
