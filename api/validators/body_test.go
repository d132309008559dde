package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
)

type adjustBody struct {
	Points int64  `json:"points" validate:"required,ne=0"`
	Reason string `json:"reason" validate:"required,max=8"`
	Kind   string `json:"kind" validate:"omitempty,oneof=manual refund"`
}

func decode(body string) (adjustBody, error) {
	var dest adjustBody
	r := httptest.NewRequest("POST", "/adjust", strings.NewReader(body))
	return dest, DecodeJSONBody(r, &dest)
}

func details(t *testing.T, err error) map[string]string {
	t.Helper()
	var typed *pkgerrors.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	out, _ := typed.Details().(map[string]string)
	return out
}

func TestDecodeJSONBodyAccepts(t *testing.T) {
	got, err := decode(`{"points":-5,"reason":"refund","kind":"refund"}`)
	require.NoError(t, err)
	assert.Equal(t, adjustBody{Points: -5, Reason: "refund", Kind: "refund"}, got)
}

func TestDecodeJSONBodyReportsFieldsByJSONName(t *testing.T) {
	_, err := decode(`{"points":0,"reason":"far too long","kind":"gift"}`)
	assert.Equal(t, map[string]string{
		"points": "is required",
		"reason": "must be at most 8",
		"kind":   "must be one of [manual refund]",
	}, details(t, err))
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	for name, body := range map[string]string{
		"empty":    ``,
		"unknown":  `{"points":1,"reason":"x","extra":true}`,
		"trailing": `{"points":1,"reason":"x"} {"points":2}`,
		"oversize": `{"reason":"` + strings.Repeat("a", MaxBodyBytes) + `"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := decode(body)
			var typed *pkgerrors.Error
			require.ErrorAs(t, err, &typed)
			assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
		})
	}
}
