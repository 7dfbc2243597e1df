package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Константы валидации
const (
	MinDisputeTitleLength       = 3
	MaxDisputeTitleLength       = 200
	MinDisputeDescriptionLength = 10
	MaxDisputeDescriptionLength = 5000
	MinMessageLength            = 1
	MaxMessageLength            = 5000
	MaxNotesLength              = 2000
	MaxEvidenceNameLength       = 255
)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

var (
	emailLocalRe  = regexp.MustCompile(`^[a-z0-9._+-]+$`)
	emailDomainRe = regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}$`)
)

// ValidateEmail проверяет формат email. Адрес нормализуется к нижнему
// регистру перед проверкой.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email обязателен")
	}

	email = strings.ToLower(strings.TrimSpace(email))

	local, domain, found := strings.Cut(email, "@")
	if !found || strings.Contains(domain, "@") {
		return fmt.Errorf("некорректный формат email")
	}

	if len(local) == 0 || len(local) > 64 {
		return fmt.Errorf("локальная часть email должна быть от 1 до 64 символов")
	}
	if len(domain) == 0 || len(domain) > 255 {
		return fmt.Errorf("доменная часть email должна быть от 1 до 255 символов")
	}

	if !emailLocalRe.MatchString(local) {
		return fmt.Errorf("локальная часть email содержит недопустимые символы")
	}
	if !emailDomainRe.MatchString(domain) {
		return fmt.Errorf("доменная часть email имеет некорректный формат")
	}

	return nil
}

// ValidateNonEmpty проверяет, что строка не пустая.
func ValidateNonEmpty(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s не может быть пустым", fieldName)
	}
	return nil
}

// ValidateDisputeTitle проверяет заголовок спора.
func ValidateDisputeTitle(title string) error {
	if err := ValidateNonEmpty("заголовок спора", title); err != nil {
		return err
	}
	return ValidateLength("заголовок спора", strings.TrimSpace(title), MinDisputeTitleLength, MaxDisputeTitleLength)
}

// ValidateDisputeDescription проверяет описание спора.
func ValidateDisputeDescription(description string) error {
	if err := ValidateNonEmpty("описание спора", description); err != nil {
		return err
	}
	return ValidateLength("описание спора", strings.TrimSpace(description), MinDisputeDescriptionLength, MaxDisputeDescriptionLength)
}

// ValidateMessage проверяет текст сообщения в споре.
func ValidateMessage(body string) error {
	if err := ValidateNonEmpty("сообщение", body); err != nil {
		return err
	}
	return ValidateLength("сообщение", strings.TrimSpace(body), MinMessageLength, MaxMessageLength)
}

// ValidateAmount проверяет денежную сумму в заданных границах.
func ValidateAmount(fieldName string, amount, min, max float64) error {
	if amount < min {
		return fmt.Errorf("%s не может быть меньше %.2f", fieldName, min)
	}
	if max > 0 && amount > max {
		return fmt.Errorf("%s не может превышать %.2f", fieldName, max)
	}
	return nil
}
