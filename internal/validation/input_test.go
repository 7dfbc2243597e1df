package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("user@example.com"))
	assert.NoError(t, ValidateEmail("USER+tag@Example.COM"))

	err := ValidateEmail("")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "обязателен")

	assert.Error(t, ValidateEmail("без-собаки.example.com"))
	assert.Error(t, ValidateEmail("user@"))
	assert.Error(t, ValidateEmail("user@domain"))
	assert.Error(t, ValidateEmail("юзер@example.com"))
}

func TestValidateDisputeTitle(t *testing.T) {
	assert.NoError(t, ValidateDisputeTitle("Работа не сдана"))

	err := ValidateDisputeTitle("   ")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "пустым")

	err = ValidateDisputeTitle("ab")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "не менее")

	err = ValidateDisputeTitle(strings.Repeat("а", 201))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "не более")
}

func TestValidateDisputeDescription(t *testing.T) {
	assert.NoError(t, ValidateDisputeDescription("Исполнитель не выходит на связь неделю"))

	err := ValidateDisputeDescription("коротко")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "не менее")
}

func TestValidateLength_CountsRunes(t *testing.T) {
	// Длина считается в рунах, а не в байтах.
	assert.NoError(t, ValidateLength("поле", "тест!", 5, 5))
	assert.Error(t, ValidateLength("поле", "тест", 5, 0))
}

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, ValidateAmount("сумма", 100, 5, 50000))

	err := ValidateAmount("сумма", 1, 5, 50000)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "меньше")

	err = ValidateAmount("сумма", 60000, 5, 50000)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "превышать")
}
