package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "****4567", MaskSecret("+6281234567"))
	assert.Equal(t, "****@example.com", MaskSecret("jane@example.com"))
}

func TestMaskFieldsOnlyTouchesNamedKeys(t *testing.T) {
	input := map[string]any{
		"decision_id": "123",
		"recipients":  []string{"jane@example.com"},
		"delivery": map[string]any{
			"phone":   "+6281234567",
			"channel": "sms",
		},
	}

	masked := MaskFields(input, "recipients", "phone")

	assert.Equal(t, "123", masked["decision_id"])
	assert.Equal(t, []string{"****@example.com"}, masked["recipients"])
	delivery := masked["delivery"].(map[string]any)
	assert.Equal(t, "****4567", delivery["phone"])
	assert.Equal(t, "sms", delivery["channel"])
	assert.Equal(t, "+6281234567", input["delivery"].(map[string]any)["phone"])
}

func TestMaskFieldsEmpty(t *testing.T) {
	assert.Nil(t, MaskFields(nil, "phone"))
}
