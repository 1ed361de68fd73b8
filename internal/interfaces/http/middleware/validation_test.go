package middleware

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupValidator(t *testing.T) {
	SetupValidator()

	v, ok := binding.Validator.Engine().(*validator.Validate)
	require.True(t, ok)

	type payload struct {
		Slug string `json:"tenant_slug" binding:"omitempty,slug"`
	}

	assert.NoError(t, v.Struct(payload{Slug: "acme"}))
	assert.NoError(t, v.Struct(payload{Slug: "acme-2"}))
	assert.NoError(t, v.Struct(payload{}))
	assert.Error(t, v.Struct(payload{Slug: "Acme"}))
	assert.Error(t, v.Struct(payload{Slug: "-acme"}))
	assert.Error(t, v.Struct(payload{Slug: "a.b"}))
}
